package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/halvardsen/chunkvault/internal/apperror"
)

// backpressureRetryAfterSeconds is the hint clients get on a throttled
// request; chunkvault doesn't track per-limiter cooldowns, so this is a
// fixed, conservative value rather than a computed one.
const backpressureRetryAfterSeconds = "1"

// errorResponse is the JSON body chunkvault returns for any failed
// request, the Go analogue of original_source's ErrorResponse schema.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id,omitempty"`
	UploadID  string `json:"upload_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// writeError maps err to an HTTP status and JSON body, mirroring main.py's
// http_exception_handler/unhandled_exception_handler pair: typed
// apperror.Errors map to their Kind's status, everything else is an
// internal_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	detail := "internal server error"

	if appErr, ok := apperror.As(err); ok {
		status = apperror.StatusCode(appErr.Kind)
		code = appErr.Code
		detail = appErr.Msg

		if appErr.Kind == apperror.KindBackpressure {
			w.Header().Set("Retry-After", backpressureRetryAfterSeconds)
			if appErr.Reason != "" {
				w.Header().Set("X-RateLimit-Reason", appErr.Reason)
			}
		}
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Detail:    detail,
		ErrorCode: code,
		RequestID: requestID(r.Context()),
		UploadID:  chi.URLParam(r, "uploadID"),
		TraceID:   traceID(r.Context()),
	})
}
