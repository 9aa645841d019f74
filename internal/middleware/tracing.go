package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tracing starts a server span per request. Once chi has routed the request the
// span is renamed to the matched pattern, e.g. "GET /api/v1/integrations/{id}".
func Tracing(operation string, opts ...otelhttp.Option) func(http.Handler) http.Handler {
	opts = append(opts, otelhttp.WithSpanNameFormatter(spanName))
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation, opts...)
	}
}

// spanName runs once before routing and again after the handler when chi has
// set r.Pattern.
func spanName(_ string, r *http.Request) string {
	if r.Pattern == "" {
		return r.Method + " " + r.URL.Path
	}
	// chi's raw pattern keeps "/*" segments from mounted subrouters.
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return r.Method + " " + p
		}
	}
	return r.Method + " " + r.Pattern
}
