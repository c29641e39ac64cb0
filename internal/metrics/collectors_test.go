package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounts struct {
	active  int64
	reached int64
	err     error
	day     string
}

func (f *fixedCounts) CountActive(ctx context.Context) (int64, error) { return f.active, f.err }

func (f *fixedCounts) CountLimitReached(ctx context.Context, day string) (int64, error) {
	f.day = day
	return f.reached, nil
}

func gather(t *testing.T, c prometheus.Collector) map[string]float64 {
	t.Helper()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestSessionCollector_Collect(t *testing.T) {
	counts := &fixedCounts{active: 7, reached: 2}
	c := NewSessionCollector(counts, counts, func() string { return "2026-03-01" })

	values := gather(t, c)

	assert.Equal(t, 7.0, values["voicebroker_active_sessions"])
	assert.Equal(t, 2.0, values["voicebroker_users_at_daily_limit"])
	assert.Equal(t, "2026-03-01", counts.day)
}

func TestSessionCollector_SkipsFailedSource(t *testing.T) {
	counts := &fixedCounts{reached: 1, err: errors.New("redis down")}
	c := NewSessionCollector(counts, counts, func() string { return "2026-03-01" })

	values := gather(t, c)

	assert.NotContains(t, values, "voicebroker_active_sessions")
	assert.Equal(t, 1.0, values["voicebroker_users_at_daily_limit"])
}

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
