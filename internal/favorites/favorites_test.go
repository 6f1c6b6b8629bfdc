package favorites

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-storefront/internal/syncbus"
)

func TestToggle(t *testing.T) {
	s := New(nil, "tab-1")
	ctx := context.Background()

	on, err := s.Toggle(ctx, 3)
	require.NoError(t, err)
	assert.True(t, on)
	_, err = s.Toggle(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, s.List())

	on, err = s.Toggle(ctx, 3)
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, s.IsFavorite(3))
	assert.True(t, s.IsFavorite(5))

	_, err = s.Toggle(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidProduct)
}

func TestRecordSearchDedupesAndCaps(t *testing.T) {
	s := New(nil, "tab-1", WithHistoryLimit(3))
	ctx := context.Background()

	for _, q := range []string{"round", "square", "  ", "Round ", "oval", "gold"} {
		require.NoError(t, s.RecordSearch(ctx, q))
	}

	assert.Equal(t, []string{"gold", "oval", "Round"}, s.SearchHistory())

	require.NoError(t, s.ClearSearchHistory(ctx))
	assert.Empty(t, s.SearchHistory())
}

func TestDefaultHistoryLimit(t *testing.T) {
	s := New(nil, "tab-1")
	for i := 0; i < 15; i++ {
		require.NoError(t, s.RecordSearch(context.Background(), fmt.Sprintf("q%d", i)))
	}
	history := s.SearchHistory()
	assert.Len(t, history, DefaultHistoryLimit)
	assert.Equal(t, "q14", history[0])
}

func TestStoresStayInSyncAcrossOrigins(t *testing.T) {
	bus := syncbus.NewMemory()
	ctx := context.Background()
	first := New(bus, "tab-1")
	second := New(bus, "tab-2")
	for _, s := range []*Store{first, second} {
		cancel, err := s.Attach(ctx)
		require.NoError(t, err)
		t.Cleanup(cancel)
	}

	_, err := first.Toggle(ctx, 8)
	require.NoError(t, err)
	require.NoError(t, second.RecordSearch(ctx, "maple"))

	assert.True(t, second.IsFavorite(8))
	assert.Equal(t, []string{"maple"}, first.SearchHistory())
}

func TestMalformedPayloadIsIgnored(t *testing.T) {
	bus := syncbus.NewMemory()
	s := New(bus, "tab-1")
	cancel, err := s.Attach(context.Background())
	require.NoError(t, err)
	defer cancel()
	_, err = s.Toggle(context.Background(), 4)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), syncbus.Message{Key: FavoritesKey, NewValue: "{", Origin: "tab-2"}))

	assert.Equal(t, []int64{4}, s.List())
}

func TestLateSessionStartsFromSharedState(t *testing.T) {
	bus := syncbus.NewMemory()
	ctx := context.Background()
	first := New(bus, "tab-1")
	_, err := first.Toggle(ctx, 8)
	require.NoError(t, err)
	require.NoError(t, first.RecordSearch(ctx, "maple"))

	second := New(bus, "tab-2")
	cancel, err := second.Attach(ctx)
	require.NoError(t, err)
	defer cancel()

	assert.True(t, second.IsFavorite(8))
	assert.Equal(t, []string{"maple"}, second.SearchHistory())

	_, err = second.Toggle(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 9}, second.List())
}
