// Package logging wraps zerolog behind a small interface so call sites
// never import zerolog directly, mirroring the teacher's logger.Logger
// interface consumed by store/s3.go and store/session.go.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging contract used throughout chunkvault.
// Fields are passed as alternating key/value pairs, matching the shape the
// teacher's logger.Logger exposes to its store implementations.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type zeroLogger struct {
	l zerolog.Logger
}

// New builds a Logger writing JSON lines to w. level is one of
// debug/info/warn/error; an unrecognized level defaults to info.
func New(w io.Writer, level string) Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
	return &zeroLogger{l: l}
}

// NewDefault builds a Logger writing to stderr at info level, used by
// components constructed without an explicit logger (tests, one-offs).
func NewDefault() Logger {
	return New(os.Stderr, "info")
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (z *zeroLogger) Debug(msg string, kv ...any) { z.event(z.l.Debug(), kv).Msg(msg) }
func (z *zeroLogger) Info(msg string, kv ...any)  { z.event(z.l.Info(), kv).Msg(msg) }
func (z *zeroLogger) Warn(msg string, kv ...any)  { z.event(z.l.Warn(), kv).Msg(msg) }
func (z *zeroLogger) Error(msg string, kv ...any) { z.event(z.l.Error(), kv).Msg(msg) }

func (z *zeroLogger) With(kv ...any) Logger {
	ctx := z.l.With()
	ctx = applyContext(ctx, kv)
	return &zeroLogger{l: ctx.Logger()}
}

func (z *zeroLogger) event(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func applyContext(ctx zerolog.Context, kv []any) zerolog.Context {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return ctx
}

// Noop returns a Logger that discards everything, for tests that don't care
// about log output.
func Noop() Logger {
	return New(io.Discard, "error")
}
