package noop

import (
	"context"
	"sync"

	"voicebroker/pkg/errors"
)

// Tracker is a no-op implementation of the error tracker.
// Used when error tracking is disabled. It counts captured errors so tests can assert on them.
type Tracker struct {
	mu       sync.Mutex
	captured []error
}

// New creates a new no-op tracker
func New() *Tracker {
	return &Tracker{}
}

// CaptureError remembers err and does nothing else
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	t.mu.Lock()
	t.captured = append(t.captured, err)
	t.mu.Unlock()
	return nil
}

// CaptureMessage does nothing
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	return nil
}

// AddBreadcrumb does nothing
func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
}

// Flush does nothing
func (t *Tracker) Flush(ctx context.Context) error {
	return nil
}

// Captured returns a copy of the errors passed to CaptureError
func (t *Tracker) Captured() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]error, len(t.captured))
	copy(out, t.captured)
	return out
}
