package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

func render(t *testing.T, err error) (int, ErrorBody, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/x", nil), logger.Nop(), err)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body, rec.Body.String()
}

func TestError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota", errors.Wrap(errors.ErrQuotaExceeded, "user u1 used 610 of 600 seconds"), http.StatusTooManyRequests, "QUOTA_EXCEEDED"},
		{"provider", errors.Join(errors.ErrProviderUnavailable, errors.New("dial tcp 10.0.0.1:443")), http.StatusBadGateway, "PROVIDER_UNAVAILABLE"},
		{"denied", errors.ErrAccessDenied, http.StatusForbidden, "ACCESS_DENIED"},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, raw := render(t, tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
			assert.NotContains(t, raw, "610")
			assert.NotContains(t, raw, "10.0.0.1")
			assert.NotContains(t, raw, "pq:")
		})
	}
}

func TestError_ValidationNamesTheField(t *testing.T) {
	status, body, _ := render(t, errors.NewValidationError("agent_id", "required", ""))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", body.Error.Code)
	assert.Equal(t, "agent_id: required", body.Error.Message)
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
