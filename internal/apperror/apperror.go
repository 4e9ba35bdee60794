// Package apperror defines the typed error kinds shared across chunkvault's
// storage, queue, limiter, and HTTP layers (spec §7).
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP status mapping and client messaging.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuth               Kind = "auth"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindChecksum           Kind = "checksum"
	KindBackpressure       Kind = "backpressure"
	KindTransientStorage   Kind = "transient_storage"
	KindPermanentStorage   Kind = "permanent_storage"
	KindRange              Kind = "range"
	KindInternal           Kind = "internal"
)

// Error is a chunkvault error carrying a Kind, a stable code, and an
// optional refusal reason (used by backpressure errors to name which
// limiter refused admission).
type Error struct {
	Kind   Kind
	Code   string
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

// Backpressure builds a KindBackpressure error naming the limiter that
// refused admission (queue_full, global_inflight_limit, upload_inflight_limit,
// upload_fair_share_limit).
func Backpressure(reason, msg string) *Error {
	return &Error{Kind: KindBackpressure, Code: "throttled", Reason: reason, Msg: msg}
}

// As is a thin wrapper over errors.As for the common case of recovering
// the typed *Error from an error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Sentinel errors for conditions that are checked frequently enough to
// warrant errors.Is comparisons instead of kind inspection, mirroring the
// teacher's cerr.ErrSessionNotFound pattern.
var (
	ErrUploadNotFound     = New(KindNotFound, "upload_not_found", "upload not found")
	ErrChunkNotFound      = New(KindNotFound, "chunk_not_found", "chunk not found")
	ErrForbidden          = New(KindAuth, "forbidden", "forbidden for this upload owner")
	ErrUploadTerminal     = New(KindConflict, "upload_terminal", "upload is in a terminal state")
	ErrMissingChunks      = New(KindConflict, "missing_chunks", "cannot complete upload, missing chunks")
	ErrIdempotencyConflict = New(KindConflict, "idempotency_conflict", "idempotency key reused with a different payload")
)

// StatusCode maps a Kind to the HTTP status spec.md §6/§7 associates with it.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return 400
	case KindAuth:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindChecksum:
		return 422
	case KindBackpressure:
		return 429
	case KindRange:
		return 416
	case KindTransientStorage, KindPermanentStorage:
		return 500
	default:
		return 500
	}
}
