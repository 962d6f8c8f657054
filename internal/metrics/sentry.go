// Package metrics reports operation telemetry to Sentry. Reporting is
// optional: a nil *Reporter is valid and every method on it is a no-op,
// so callers never guard their call sites.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter wraps a configured Sentry client.
type Reporter struct{}

// Init configures Sentry and returns a Reporter. An empty DSN disables
// reporting and returns nil, which is safe to use.
func Init(dsn, environment string) (*Reporter, error) {
	if dsn == "" {
		return nil, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return &Reporter{}, nil
}

// StartOperation opens a span for one engine operation. The returned
// context carries the span; call finish when the operation completes.
func (r *Reporter) StartOperation(ctx context.Context, name, requestToken string) (context.Context, func()) {
	if r == nil {
		return ctx, func() {}
	}
	span := sentry.StartSpan(ctx, "engine.operation")
	span.Description = name
	span.SetTag("request_token", requestToken)
	return span.Context(), span.Finish
}

// CaptureWarning records an operation-level warning as a Sentry
// message tagged with its code.
func (r *Reporter) CaptureWarning(code, message string) {
	if r == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("warning_code", code)
		sentry.CaptureMessage(message)
	})
}

// Flush drains buffered events; call before process exit.
func (r *Reporter) Flush() {
	if r == nil {
		return
	}
	sentry.Flush(2 * time.Second)
}
