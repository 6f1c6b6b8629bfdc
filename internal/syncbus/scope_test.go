package syncbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedIsolatesScopes(t *testing.T) {
	bus := NewMemory()
	alice := Scoped(bus, "alice")
	bob := Scoped(bus, "bob")

	var got []Message
	cancel, err := alice.Subscribe(context.Background(), "tab-2", func(msg Message) {
		got = append(got, msg)
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bob.Publish(context.Background(), Message{Key: "cart", NewValue: "[]", Origin: "tab-9"}))
	require.NoError(t, alice.Publish(context.Background(), Message{Key: "cart", NewValue: "[1]", Origin: "tab-1"}))
	require.NoError(t, alice.Publish(context.Background(), Message{Key: "cart", NewValue: "[2]", Origin: "tab-2"}))

	require.Len(t, got, 1)
	assert.Equal(t, Message{Key: "cart", NewValue: "[1]", Origin: "tab-1"}, got[0])
}

func TestScopedCloseLeavesParentOpen(t *testing.T) {
	bus := NewMemory()
	require.NoError(t, Scoped(bus, "alice").Close())
	require.NoError(t, bus.Publish(context.Background(), Message{Key: "k"}))
}

func TestScopedLastStaysWithinScope(t *testing.T) {
	bus := NewMemory()
	ctx := context.Background()
	alice := Scoped(bus, "alice")
	bob := Scoped(bus, "bob")

	require.NoError(t, alice.Publish(ctx, Message{Key: "cart", NewValue: "[1]", Origin: "tab-1"}))

	msg, ok, err := alice.Last(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cart", msg.Key)
	assert.Equal(t, "[1]", msg.NewValue)

	_, ok, err = bob.Last(ctx, "cart")
	require.NoError(t, err)
	assert.False(t, ok)
}
