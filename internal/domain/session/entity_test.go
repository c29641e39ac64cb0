package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/errors"
)

func TestStatus_Transitions(t *testing.T) {
	all := []Status{StatusStarting, StatusActive, StatusEnding, StatusEnded, StatusError}

	for _, from := range all {
		for _, to := range all {
			allowed := from.CanTransitionTo(to)
			if from.IsTerminal() {
				assert.False(t, allowed, "%s is terminal, %s must be rejected", from, to)
			}
			if to == StatusStarting {
				assert.False(t, allowed, "nothing returns to starting (from %s)", from)
			}
		}
	}

	assert.True(t, StatusStarting.CanTransitionTo(StatusActive))
	assert.True(t, StatusActive.CanTransitionTo(StatusEnded))
	assert.True(t, StatusStarting.CanTransitionTo(StatusError))
	assert.False(t, StatusActive.CanTransitionTo(StatusStarting))
}

func TestDurationSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(42), DurationSeconds(start, start.Add(42*time.Second+900*time.Millisecond)))
	assert.Equal(t, int64(0), DurationSeconds(start, start.Add(-5*time.Second)))
	assert.Equal(t, int64(0), DurationSeconds(start, start))
}

func TestSession_Finish(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{ID: NewID(), UserID: "u1", Status: StatusActive, StartTime: start}

	require.NoError(t, s.Finish(start.Add(42*time.Second), StatusEnded))
	assert.Equal(t, StatusEnded, s.Status)
	assert.Equal(t, int64(42), s.DurationSeconds)
	require.NotNil(t, s.EndTime)
	assert.False(t, s.EndTime.Before(s.StartTime))

	err := s.Finish(start.Add(time.Minute), StatusEnded)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.Equal(t, int64(42), s.DurationSeconds)
}

func TestSession_FinishClockSkew(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{Status: StatusStarting, StartTime: start}

	require.NoError(t, s.Finish(start.Add(-3*time.Second), StatusError))
	assert.Equal(t, start, *s.EndTime)
	assert.Equal(t, int64(0), s.DurationSeconds)
}

func TestSession_FinishRejectsNonTerminal(t *testing.T) {
	s := &Session{Status: StatusStarting, StartTime: time.Now()}
	assert.ErrorIs(t, s.Finish(time.Now(), StatusActive), errors.ErrInvalidTransition)
}

func TestSession_Activate(t *testing.T) {
	s := &Session{Status: StatusStarting}
	s.Activate("conv_1")
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, "conv_1", *s.ProviderConversationID)

	ended := &Session{Status: StatusEnded}
	ended.Activate("conv_2")
	assert.Equal(t, StatusEnded, ended.Status)
}

func TestNewID_TimeOrdered(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestMetadata_ScanValue(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Scan([]byte(`{"app_version":"1.2.0"}`)))
	assert.Equal(t, "1.2.0", m["app_version"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	v, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestParseClientType(t *testing.T) {
	assert.Equal(t, ClientWeb, ParseClientType("web"))
	assert.Equal(t, ClientMobile, ParseClientType("mobile"))
	assert.Equal(t, ClientOther, ParseClientType("smart-speaker"))
	assert.Equal(t, ClientOther, ParseClientType(""))
}
