package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracing() (func(http.Handler) http.Handler, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return Tracing("test", otelhttp.WithTracerProvider(tp)), recorder
}

func TestTracing_NamesSpanAfterRoutePattern(t *testing.T) {
	mw, recorder := newRecordingTracing()
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/api/v1/integrations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/integrations/abc-123", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/integrations/{id}", spans[0].Name())
}

func TestTracing_NamesSpanAfterNestedRoutePattern(t *testing.T) {
	mw, recorder := newRecordingTracing()
	r := chi.NewRouter()
	r.Use(mw)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/integrations", func(r chi.Router) {
			r.Post("/{id}/pause", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
	})

	for _, id := range []string{"a-1", "b-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/integrations/"+id+"/pause", nil))
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "POST /api/v1/integrations/{id}/pause", s.Name())
	}
}

func TestTracing_WithoutRouterUsesPath(t *testing.T) {
	mw, recorder := newRecordingTracing()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/unknown", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /unknown", spans[0].Name())
}

func TestTracing_PreservesResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
		{"409 Conflict", http.StatusConflict},
		{"502 Bad Gateway", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, _ := newRecordingTracing()
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"ok":true}`))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, `{"ok":true}`, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}
