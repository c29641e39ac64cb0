package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voicebroker/pkg/logger"
)

// ActiveCounter returns the cardinality of the live-session index
type ActiveCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// LimitCounter returns how many users exhausted their quota on a day
type LimitCounter interface {
	CountLimitReached(ctx context.Context, day string) (int64, error)
}

// SessionCollector reports gauges that are read from the stores at scrape time
type SessionCollector struct {
	log     *logger.Logger
	active  ActiveCounter
	limits  LimitCounter
	today   func() string
	timeout time.Duration

	activeSessions *prometheus.Desc
	usersAtLimit   *prometheus.Desc
}

// NewSessionCollector creates a new scrape-time collector
func NewSessionCollector(active ActiveCounter, limits LimitCounter, today func() string) *SessionCollector {
	return &SessionCollector{
		log:     logger.Get().With("component", "metrics_collector"),
		active:  active,
		limits:  limits,
		today:   today,
		timeout: 3 * time.Second,

		activeSessions: prometheus.NewDesc(
			"voicebroker_active_sessions",
			"Sessions currently in the shared active index",
			nil, nil,
		),
		usersAtLimit: prometheus.NewDesc(
			"voicebroker_users_at_daily_limit",
			"Users who have used up today's quota",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.usersAtLimit
}

// Collect implements prometheus.Collector
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if n, err := c.active.CountActive(ctx); err != nil {
		c.log.Warnw("Failed to collect active sessions", "error", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, float64(n))
	}

	if n, err := c.limits.CountLimitReached(ctx, c.today()); err != nil {
		c.log.Warnw("Failed to collect users at limit", "error", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.usersAtLimit, prometheus.GaugeValue, float64(n))
	}
}
