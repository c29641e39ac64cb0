package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"voicebroker/pkg/errors"
)

// Tracker reports errors and lifecycle breadcrumbs to Sentry
type Tracker struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

// New creates a new Sentry tracker
func New(dsn string, environment string, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
		// caller tokens travel in headers; never ship request data
		SendDefaultPII: false,
	})
	if err != nil {
		return nil, err
	}

	return &Tracker{
		hub:          sentry.CurrentHub(),
		flushTimeout: 2 * time.Second,
	}, nil
}

// CaptureError sends an error to Sentry
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.hub.Clone()

	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if code := errors.Kind(err).Code; code != "" {
			scope.SetTag("error_code", code)
		}
		if userID, ok := errors.UserIDFromContext(ctx); ok {
			scope.SetUser(sentry.User{ID: userID})
		}
	})

	hub.CaptureException(err)
	return nil
}

// CaptureMessage sends a message to Sentry
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.hub.Clone()

	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if userID, ok := errors.UserIDFromContext(ctx); ok {
			scope.SetUser(sentry.User{ID: userID})
		}
		scope.SetLevel(convertLevel(level))
	})

	hub.CaptureMessage(message)
	return nil
}

// AddBreadcrumb records a session lifecycle step
func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:   message,
		Category:  category,
		Level:     convertLevel(level),
		Data:      data,
		Timestamp: time.Now(),
	}, &sentry.BreadcrumbHint{})
}

// Flush waits for all pending events to be sent
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := t.flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if !sentry.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func convertLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelDebug:
		return sentry.LevelDebug
	case errors.LevelInfo:
		return sentry.LevelInfo
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	case errors.LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
