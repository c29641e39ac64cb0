package bootstrap

import (
	"context"
	"sync"

	chclient "voicebroker/internal/adapters/clickhouse"
	"voicebroker/internal/adapters/config"
	"voicebroker/internal/adapters/kafka"
	pgclient "voicebroker/internal/adapters/postgres"
	redisclient "voicebroker/internal/adapters/redis"
	"voicebroker/internal/adapters/voice"
	"voicebroker/internal/api"
	"voicebroker/internal/api/health"
	"voicebroker/internal/consumers"
	"voicebroker/internal/domain/agent"
	chrepo "voicebroker/internal/repository/clickhouse"
	pgrepo "voicebroker/internal/repository/postgres"
	redisrepo "voicebroker/internal/repository/redis"
	"voicebroker/internal/services/conversation"
	"voicebroker/internal/services/identity"
	sessionsvc "voicebroker/internal/services/session"
	usagesvc "voicebroker/internal/services/usage"
	"voicebroker/internal/workers"
	"voicebroker/pkg/crypto"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (data stores). CH is nil when analytics are disabled.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos      *Repositories
	Adapters   *Adapters
	Services   *Services
	Background *Background

	HTTPServer    *api.Server
	HealthHandler *health.Handler

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the stores behind the domain contracts
type Repositories struct {
	Sessions     *pgrepo.SessionRepository
	Usage        *pgrepo.UsageRepository
	SessionCache *redisrepo.SessionCache
	UsageCache   *redisrepo.UsageCache
	UserContexts *redisrepo.UserContextStore
	RateLimiter  *redisrepo.SessionRateLimiter
	Analytics    *chrepo.SessionAnalyticsRepository
}

// Adapters groups external clients
type Adapters struct {
	KafkaProducer   *kafka.Producer
	AnalyticsSource *kafka.Consumer
	Voice           *voice.Client
	Personalizer    *voice.Personalizer
	Encryptor       *crypto.Encryptor
}

// Services groups the application services
type Services struct {
	Agents        *agent.Directory
	Usage         *usagesvc.Service
	Sessions      *sessionsvc.Service
	Conversations *conversation.Service
	Identity      *identity.Resolver
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler   *workers.Scheduler
	AnalyticsConsumer *consumers.SessionAnalyticsConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:      &Repositories{},
		Adapters:   &Adapters{},
		Services:   &Services{},
		Background: &Background{},
		Lifecycle:  NewLifecycle(),
		WG:         &sync.WaitGroup{},
		Context:    ctx,
		Cancel:     cancel,
	}
}

// MustInit initializes all components in order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start launches the HTTP server, workers and consumers
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	if c.Background.AnalyticsConsumer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Background.AnalyticsConsumer.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Session analytics consumer failed", "error", err)
			}
		}()
		c.Log.Info("✓ Session analytics consumer started")
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel()
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:              c.WG,
		Cancel:          c.Cancel,
		HTTPServer:      c.HTTPServer,
		WorkerScheduler: c.Background.WorkerScheduler,
		KafkaProducer:   closerOrNil(c.Adapters.KafkaProducer),
		ErrorTracker:    c.ErrorTracker,
		Databases: map[string]Closer{
			"postgres":   closerOrNil(c.PG),
			"clickhouse": closerOrNil(c.CH),
			"redis":      closerOrNil(c.Redis),
		},
	}, c.Log)
}
