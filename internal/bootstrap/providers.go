package bootstrap

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	chclient "voicebroker/internal/adapters/clickhouse"
	"voicebroker/internal/adapters/config"
	"voicebroker/internal/adapters/errors/noop"
	"voicebroker/internal/adapters/errors/sentry"
	"voicebroker/internal/adapters/kafka"
	pgclient "voicebroker/internal/adapters/postgres"
	redisclient "voicebroker/internal/adapters/redis"
	"voicebroker/internal/adapters/voice"
	"voicebroker/internal/api"
	"voicebroker/internal/api/health"
	"voicebroker/internal/consumers"
	"voicebroker/internal/domain/agent"
	"voicebroker/internal/domain/usage"
	"voicebroker/internal/events"
	"voicebroker/internal/metrics"
	chrepo "voicebroker/internal/repository/clickhouse"
	pgrepo "voicebroker/internal/repository/postgres"
	redisrepo "voicebroker/internal/repository/redis"
	"voicebroker/internal/services/conversation"
	"voicebroker/internal/services/identity"
	sessionsvc "voicebroker/internal/services/session"
	usagesvc "voicebroker/internal/services/usage"
	"voicebroker/pkg/auth"
	"voicebroker/pkg/crypto"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
	"voicebroker/pkg/templates"
)

// MustInitConfig loads configuration and sets up logging and error tracking
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	c.Log = logger.Get()

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	c.Log.Infow("Starting voicebroker",
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"quota_timezone", cfg.Quota.Timezone,
	)
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled {
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnw("Failed to init Sentry, using noop tracker", "error", err)
		return noop.New()
	}
	log.Info("✓ Sentry error tracking enabled")
	return tracker
}

// MustInitInfrastructure connects to data stores and registers their health checks
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	metrics.Init()
	c.HealthHandler = health.New(c.Log, c.Config.App.Name, c.Config.App.Version)

	pg, err := pgclient.NewClient(ctx, c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect to postgres: %v", err)
	}
	c.PG = pg
	c.HealthHandler.Register("postgres", pg.Health, true)
	c.Log.Info("✓ Postgres connected")

	if c.Config.Postgres.RunMigrations {
		if err := pgrepo.RunMigrations(ctx, pg.DB()); err != nil {
			c.Log.Fatalf("failed to run migrations: %v", err)
		}
		c.Log.Info("✓ Migrations applied")
	}

	rdb, err := redisclient.NewClient(ctx, c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect to redis: %v", err)
	}
	c.Redis = rdb
	c.HealthHandler.Register("redis", rdb.Health, true)
	c.Log.Info("✓ Redis connected")

	if c.Config.ClickHouse.Enabled {
		ch, err := chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			// Analytics are optional; the control plane runs without them.
			c.Log.Warnw("ClickHouse unavailable, analytics disabled", "error", err)
		} else {
			c.CH = ch
			c.HealthHandler.Register("clickhouse", ch.Health, false)
			c.Log.Info("✓ ClickHouse connected")
		}
	}
}

// MustInitRepositories creates the durable stores and caches
func (c *Container) MustInitRepositories() {
	db := c.PG.DB()
	rdb := c.Redis.Client()

	c.Repos.Sessions = pgrepo.NewSessionRepository(db)
	c.Repos.Usage = pgrepo.NewUsageRepository(db)
	c.Repos.SessionCache = redisrepo.NewSessionCache(rdb)
	c.Repos.UsageCache = redisrepo.NewUsageCache(rdb)
	c.Repos.UserContexts = redisrepo.NewUserContextStore(rdb)
	c.Repos.RateLimiter = redisrepo.NewSessionRateLimiter(rdb, c.Config.RateLimit.SessionsPerMinute, c.Config.RateLimit.Burst)

	if c.CH != nil {
		repo := chrepo.NewSessionAnalyticsRepository(c.CH.Conn(), "")
		ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			c.Log.Warnw("Failed to ensure analytics schema, analytics disabled", "error", err)
		} else {
			c.Repos.Analytics = repo
		}
	}

	c.Log.Info("✓ Repositories initialized")
}

// MustInitAdapters creates the Kafka, voice provider and encryption adapters
func (c *Container) MustInitAdapters() {
	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      c.Config.Kafka.Brokers,
			WriteTimeout: 10 * time.Second,
		})
		c.Log.Infow("✓ Kafka producer initialized", "brokers", c.Config.Kafka.Brokers)

		if c.Repos.Analytics != nil {
			c.Adapters.AnalyticsSource = kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers: c.Config.Kafka.Brokers,
				GroupID: c.Config.Kafka.GroupID + "-analytics",
				Topic:   kafka.TopicSessionEnded,
			})
		}
	}

	if key := c.Config.Crypto.EncryptionKey; key != "" {
		enc, err := crypto.NewEncryptor(key)
		if err != nil {
			c.Log.Fatalf("failed to init encryptor: %v", err)
		}
		c.Adapters.Encryptor = enc
	} else {
		c.Log.Warn("ENCRYPTION_KEY not set, encrypted user context disabled")
	}

	c.Adapters.Voice = voice.NewClient(c.Config.Voice)
	c.Adapters.Personalizer = voice.NewPersonalizer(templates.Get(), c.Adapters.Encryptor)

	c.Log.Info("✓ Adapters initialized")
}

// MustInitServices wires the domain services
func (c *Container) MustInitServices() {
	cfg := c.Config

	c.Services.Agents = agent.NewDefaultDirectory(cfg.Agents.Overrides(), cfg.Agents.Disabled)

	calendar := usage.NewCalendar(cfg.Quota.Location(), time.Now)
	c.Services.Usage = usagesvc.NewService(
		c.Repos.Usage, c.Repos.UsageCache, calendar,
		cfg.Quota.DailyLimitSeconds, cfg.Quota.CacheTTL, c.Log,
	)

	var publisher sessionsvc.EventPublisher = events.NoopPublisher{}
	if c.Adapters.KafkaProducer != nil {
		publisher = events.NewSessionPublisher(c.Adapters.KafkaProducer)
	}

	c.Services.Sessions = sessionsvc.NewService(
		c.Repos.Sessions, c.Repos.SessionCache, c.Repos.UserContexts,
		c.Services.Agents, c.Services.Usage, publisher,
		sessionsvc.Config{
			CacheTTL:       cfg.Session.CacheTTL,
			IdleCeiling:    cfg.Session.IdleCeiling,
			EndClaimTTL:    cfg.Session.EndClaimTTL,
			UserContextTTL: cfg.UserContext.TTL,
			BatchSize:      cfg.Session.ReconcilerBatchSize,
		},
		c.Log,
	)

	var sealer conversation.Sealer
	if c.Adapters.Encryptor != nil {
		sealer = c.Adapters.Encryptor
	}
	c.Services.Conversations = conversation.NewService(
		c.Services.Sessions, c.Services.Agents, c.Adapters.Voice, c.Adapters.Personalizer,
		c.Repos.RateLimiter, c.Repos.UserContexts, sealer, c.Log,
	)

	// Tokens are minted by the identity system; the duration is unused here.
	validator := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, 0)
	c.Services.Identity = identity.NewResolver(validator, cfg.Auth.ProfileAPIURL, cfg.Auth.ProfileAPITimeout, c.Log)

	prometheus.MustRegister(metrics.NewSessionCollector(c.Repos.SessionCache, c.Services.Usage, calendar.Today))

	c.Log.Info("✓ Services initialized")
}

// MustInitApplication builds the HTTP surface
func (c *Container) MustInitApplication() {
	var reporting api.AgentAnalytics
	if c.Repos.Analytics != nil {
		reporting = c.Repos.Analytics
	}

	handlers := api.NewHandlers(c.Services.Conversations, c.Services.Sessions, c.Services.Agents, reporting, c.Log)
	router := api.NewRouter(
		api.RouterConfig{
			AdminAPIKey:           c.Config.HTTP.AdminAPIKey,
			ProviderWebhookSecret: c.Config.HTTP.ProviderWebhookSecret,
		},
		handlers,
		c.HealthHandler,
		c.Services.Identity,
		c.Log,
	)

	c.HTTPServer = api.NewServer(api.ServerConfig{
		Port:         c.Config.HTTP.Port,
		ReadTimeout:  c.Config.HTTP.ReadTimeout,
		WriteTimeout: c.Config.HTTP.WriteTimeout,
	}, router, c.Log)

	c.Log.Infow("✓ HTTP server configured", "port", c.Config.HTTP.Port)
}

// MustInitBackground creates workers and consumers
func (c *Container) MustInitBackground() {
	c.Background.WorkerScheduler = provideWorkers(c.Config, c.Services.Sessions, c.Redis, c.Log)

	if c.Adapters.AnalyticsSource != nil && c.Repos.Analytics != nil {
		c.Background.AnalyticsConsumer = consumers.NewSessionAnalyticsConsumer(c.Adapters.AnalyticsSource, c.Repos.Analytics)
	}

	c.Log.Info("✓ Background components initialized")
}
