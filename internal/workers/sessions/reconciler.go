package sessions

import (
	"context"
	"time"

	"voicebroker/internal/workers"
)

// StaleReconciler is the lifecycle operation the reconciler drives
type StaleReconciler interface {
	ReconcileStale(ctx context.Context) (int, error)
}

// Reconciler closes durable sessions left open after their cache entry vanished,
// for example after a cache flush or a crash between create and end.
type Reconciler struct {
	*workers.BaseWorker
	sessions StaleReconciler
}

// NewReconciler creates the stale session reconciler
func NewReconciler(sessions StaleReconciler, interval time.Duration, enabled bool) *Reconciler {
	return &Reconciler{
		BaseWorker: workers.NewBaseWorker("session_reconciler", interval, enabled),
		sessions:   sessions,
	}
}

// Run executes one pass over the durable store
func (r *Reconciler) Run(ctx context.Context) error {
	ended, err := r.sessions.ReconcileStale(ctx)
	if err != nil {
		return err
	}

	if ended > 0 {
		r.Log().Warnw("Reconciled stale sessions missing from cache", "count", ended)
	}
	return nil
}
