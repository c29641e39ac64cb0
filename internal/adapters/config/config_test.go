package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/errors"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_USER", "voice")
	t.Setenv("POSTGRES_PASSWORD", "voice")
	t.Setenv("POSTGRES_DB", "voice")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("AUTH_JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Voice.TokenTimeout)
	assert.Equal(t, int64(600), cfg.Quota.DailyLimitSeconds)
	assert.Equal(t, 2*time.Hour, cfg.Session.CacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleCeiling)
	assert.Equal(t, 24*time.Hour, cfg.Session.EndedMarkerTTL)
	assert.Equal(t, time.Hour, cfg.UserContext.TTL)
	assert.Equal(t, "Europe/Paris", cfg.Quota.Location().String())
	assert.Empty(t, cfg.Agents.Overrides())
}

func TestLoad_AgentOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AGENT_2_ID", "agent_custom")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[int]string{2: "agent_custom"}, cfg.Agents.Overrides())
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) Config {
		setRequired(t)
		var cfg Config
		require.NoError(t, envconfig.Process("", &cfg))
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown timezone", func(c *Config) { c.Quota.Timezone = "Mars/Olympus" }, "QUOTA_TIMEZONE"},
		{"cache ttl below idle ceiling", func(c *Config) { c.Session.CacheTTL = 10 * time.Minute }, "SESSION_CACHE_TTL"},
		{"ended marker shorter than cache ttl", func(c *Config) { c.Session.EndedMarkerTTL = time.Hour }, "SESSION_ENDED_MARKER_TTL"},
		{"zero reaper interval", func(c *Config) { c.Session.ReaperInterval = 0 }, "SESSION_REAPER_INTERVAL"},
		{"bad encryption key", func(c *Config) { c.Crypto.EncryptionKey = "short" }, "ENCRYPTION_KEY"},
		{"zero quota", func(c *Config) { c.Quota.DailyLimitSeconds = 0 }, "QUOTA_DAILY_LIMIT_SECONDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
