package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/auth"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

const secret = "test-secret-key-for-identity-resolver"

func TestResolver_TokenOnly(t *testing.T) {
	jwtService := auth.NewJWTService(secret, "identity", time.Hour)
	token, err := jwtService.GenerateToken("user-1", "Jane Doe")
	require.NoError(t, err)

	id, err := NewResolver(jwtService, "", time.Second, logger.Nop()).Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "Jane Doe", id.Name)
}

func TestResolver_RejectsBadTokens(t *testing.T) {
	jwtService := auth.NewJWTService(secret, "identity", time.Hour)
	other := auth.NewJWTService("another-secret", "identity", time.Hour)
	forged, err := other.GenerateToken("user-1", "Mallory")
	require.NoError(t, err)

	expiredService := auth.NewJWTService(secret, "identity", -time.Minute)
	expired, err := expiredService.GenerateToken("user-1", "Jane")
	require.NoError(t, err)

	resolver := NewResolver(jwtService, "", time.Second, logger.Nop())

	for name, token := range map[string]string{"empty": "", "garbage": "not-a-jwt", "forged": forged, "expired": expired} {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), token)
			assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
		})
	}
}

func TestResolver_ProfileLookup(t *testing.T) {
	jwtService := auth.NewJWTService(secret, "", time.Hour)
	token, err := jwtService.GenerateToken("user-1", "")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"user-1","display_name":"Jane from Profile"}`))
	}))
	defer server.Close()

	id, err := NewResolver(jwtService, server.URL, time.Second, logger.Nop()).Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Jane from Profile", id.Name)
}

func TestResolver_ProfileFailureIsUnauthenticated(t *testing.T) {
	jwtService := auth.NewJWTService(secret, "", time.Hour)
	token, err := jwtService.GenerateToken("user-1", "Jane")
	require.NoError(t, err)

	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"other user": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"user-2","name":"Someone"}`))
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			_, err := NewResolver(jwtService, server.URL, 100*time.Millisecond, logger.Nop()).Resolve(context.Background(), token)
			assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
		})
	}
}
