package bootstrap

import (
	"voicebroker/internal/adapters/config"
	redisclient "voicebroker/internal/adapters/redis"
	sessionsvc "voicebroker/internal/services/session"
	"voicebroker/internal/workers"
	"voicebroker/internal/workers/sessions"
	"voicebroker/pkg/logger"
)

// provideWorkers registers the session sweeps. Each sweep holds a redis lock
// so that only one replica runs it per tick.
func provideWorkers(cfg *config.Config, svc *sessionsvc.Service, rdb *redisclient.Client, log *logger.Logger) *workers.Scheduler {
	scheduler := workers.NewScheduler(workers.DefaultShutdownTimeout)
	locker := workers.NewRedisLocker(rdb)

	reaper := sessions.NewReaper(svc, cfg.Session.ReaperInterval, true)
	scheduler.RegisterWorker(workers.SingleFlight(reaper, locker, cfg.Session.ReaperInterval))

	reconciler := sessions.NewReconciler(svc, cfg.Session.ReconcilerInterval, true)
	scheduler.RegisterWorker(workers.SingleFlight(reconciler, locker, cfg.Session.ReconcilerInterval))

	log.Infow("✓ Workers registered",
		"reaper_interval", cfg.Session.ReaperInterval,
		"reconciler_interval", cfg.Session.ReconcilerInterval,
	)
	return scheduler
}
