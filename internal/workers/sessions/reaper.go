package sessions

import (
	"context"
	"time"

	"voicebroker/internal/workers"
)

// IdleReaper is the lifecycle operation the reaper drives
type IdleReaper interface {
	ReapIdleSessions(ctx context.Context) (int, error)
}

// Reaper force-ends cached sessions that outlived the idle ceiling.
// Clients that vanish without calling end are closed here, and their time is accounted.
type Reaper struct {
	*workers.BaseWorker
	sessions IdleReaper
}

// NewReaper creates the idle session reaper
func NewReaper(sessions IdleReaper, interval time.Duration, enabled bool) *Reaper {
	return &Reaper{
		BaseWorker: workers.NewBaseWorker("session_reaper", interval, enabled),
		sessions:   sessions,
	}
}

// Run executes one sweep
func (r *Reaper) Run(ctx context.Context) error {
	ended, err := r.sessions.ReapIdleSessions(ctx)
	if err != nil {
		return err
	}

	if ended > 0 {
		r.Log().Infow("Reaped idle sessions", "count", ended)
	}
	return nil
}
