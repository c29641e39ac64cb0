package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
		clientSide bool
	}{
		{"agent not found", Wrap(ErrAgentNotFound, "agent nonexistent"), "AGENT_NOT_FOUND", http.StatusNotFound, true},
		{"agent inactive", ErrAgentInactive, "AGENT_INACTIVE", http.StatusBadRequest, true},
		{"quota", Wrapf(ErrQuotaExceeded, "user %s", "u1"), "QUOTA_EXCEEDED", http.StatusTooManyRequests, true},
		{"ownership", ErrAccessDenied, "ACCESS_DENIED", http.StatusForbidden, true},
		{"provider", Wrap(ErrProviderUnavailable, "status 503"), "PROVIDER_UNAVAILABLE", http.StatusBadGateway, false},
		{"validation", NewValidationError("agent_id", "required", ""), "INVALID_INPUT", http.StatusBadRequest, true},
		{"unknown", fmt.Errorf("dial tcp 10.0.0.1:5432: connection refused"), "INTERNAL", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := Kind(tt.err)
			assert.Equal(t, tt.wantCode, kind.Code)
			assert.Equal(t, tt.wantStatus, kind.Status)
			assert.Equal(t, tt.clientSide, kind.ClientSide)
		})
	}
}

func TestKind_MessageNeverLeaksDetail(t *testing.T) {
	err := Wrap(fmt.Errorf("postgres://admin:secret@db:5432 refused"), "failed to increment usage")

	kind := Kind(err)

	assert.Equal(t, "Internal error", kind.Message)
	assert.NotContains(t, kind.Message, "secret")
}

func TestKind_DomainErrorCodeWins(t *testing.T) {
	err := NewDomainError("SESSION_ALREADY_ENDED", "session already ended", ErrSessionNotFound)

	kind := Kind(err)

	assert.Equal(t, "SESSION_ALREADY_ENDED", kind.Code)
	assert.Equal(t, http.StatusNotFound, kind.Status)
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.NoError(t, m.ToError())

	m.Add(nil)
	m.Add(ErrSessionNotFound)
	m.Add(ErrAccessDenied)

	err := m.ToError()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "multiple errors (2)")
}
