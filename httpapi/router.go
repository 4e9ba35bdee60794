package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/halvardsen/chunkvault/internal/health"
	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/internal/metrics"
)

// NewRouter assembles chunkvault's HTTP surface: health/version/metrics,
// the v1 upload/download routes behind authentication, and the admin
// cleanup trigger behind RequireAdmin. Grounded on main.py's route table
// and setup.go's otelgrpc.NewServerHandler (adapted to otelhttp for an
// HTTP transport).
func NewRouter(h *Handlers, auth *Authenticator, aggregator *health.Aggregator, m *metrics.Metrics, log logging.Logger, appVersion string) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestContext(log, m, appVersion))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "chunkvault")
	})

	r.Get("/health", h.Health(aggregator.Status))
	r.Get("/version", h.Version)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)

		r.Post("/v1/uploads/init", h.InitUpload)
		r.Put("/v1/uploads/{uploadID}/chunks/{chunkIndex}", h.UploadChunk)
		r.Post("/v1/uploads/{uploadID}/complete", h.CompleteUpload)
		r.Get("/v1/uploads/{uploadID}/missing-chunks", h.MissingChunks)
		r.Post("/v1/uploads/{uploadID}/abort", h.AbortUpload)
		r.Get("/v1/uploads/{uploadID}/download", h.Download)

		r.With(RequireAdmin).Post("/v1/admin/cleanup", h.RunCleanup)
	})

	return r
}
