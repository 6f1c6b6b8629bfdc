package observability

import (
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/platform/requestctx"
)

const (
	routeLimit  = 180
	methodLimit = 10
	idLimit     = 64
)

// clean drops control characters so request data cannot forge log lines, then truncates
// to limit runes.
func clean(value string, limit int) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(out); len(runes) > limit {
		out = string(runes[:limit])
	}
	return out
}

// SanitizeRoute cleans a route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, routeLimit)
}

// SanitizeMethod cleans an HTTP method for logs.
func SanitizeMethod(method string) string {
	return clean(method, methodLimit)
}

// requestFields are attached to every log line written while serving r.
func requestFields(r *http.Request) []zap.Field {
	ctx := r.Context()
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("trace_id", requestctx.TraceID(ctx)),
	}
	if uid := requestctx.UserID(ctx); uid != "" {
		fields = append(fields, zap.String("user_id", clean(uid, idLimit)))
	}
	if ip := remoteIP(r); ip != "" {
		fields = append(fields, zap.String("remote_ip", ip))
	}
	return fields
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return clean(addr, idLimit)
}
