// Package logging configures the structured logger used across chfs,
// per SPEC_FULL.md's AMBIENT STACK section: one *logrus.Entry carried per
// request via context, with fields request_id/method/path/ip attached by the
// access-log middleware and status/duration_ms/ua added when the request
// completes. Response bytes are not recorded, and "user" is present only
// when a handler calls middleware.WithPrincipal.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/chfs/chfs/internal/config"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// New builds a *logrus.Logger configured per the snapshot's LoggingConfig:
// JSON or text formatter, level, and an optional file sink alongside
// stderr.
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()

	if cfg.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	out := io.Writer(os.Stderr)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
	}
	log.SetOutput(out)

	return log, nil
}

// WithEntry attaches e to ctx for downstream retrieval via FromContext.
func WithEntry(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext retrieves the request-scoped logger, falling back to a
// standalone entry if none was attached.
func FromContext(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
