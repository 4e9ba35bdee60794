package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/internal/metrics"
	"github.com/halvardsen/chunkvault/internal/tracing"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func traceID(ctx context.Context) string {
	return tracing.TraceID(ctx)
}

// RequestContext assigns (or propagates) a request id and records
// request-completion structured log events + the http_request_duration
// histogram, the Go analogue of main.py's request_context_and_logging
// middleware.
func RequestContext(log logging.Logger, m *metrics.Metrics, appVersion string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
			r = r.WithContext(ctx)

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			duration := time.Since(start)
			sw.Header().Set("X-Request-ID", reqID)
			sw.Header().Set("X-ChunkVault-App-Version", appVersion)

			routePattern := chi.RouteContext(r.Context()).RoutePattern()
			if routePattern == "" {
				routePattern = r.URL.Path
			}

			if m != nil {
				m.HTTPRequestDuration.WithLabelValues(r.Method, routePattern, strconv.Itoa(sw.status)).Observe(duration.Seconds())
			}

			log.Info("request completed",
				"event", "request_completed",
				"request_id", reqID,
				"upload_id", chi.URLParam(r, "uploadID"),
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", sw.status,
				"duration_ms", float64(duration.Microseconds())/1000.0,
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
