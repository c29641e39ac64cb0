package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-min-32-characters-long"

func TestJWTService_ValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		userName string
		duration time.Duration
		wantErr  error
	}{
		{
			name:     "valid token",
			userID:   uuid.NewString(),
			userName: "Alice",
			duration: time.Hour,
		},
		{
			name:     "valid token without name",
			userID:   uuid.NewString(),
			duration: time.Hour,
		},
		{
			name:     "expired token",
			userID:   uuid.NewString(),
			userName: "Alice",
			duration: -time.Hour,
			wantErr:  ErrExpiredToken,
		},
		{
			name:     "missing subject",
			userID:   "",
			userName: "Alice",
			duration: time.Hour,
			wantErr:  ErrMissingClaims,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewJWTService(testSecret, "identity", tt.duration)

			token, err := service.GenerateToken(tt.userID, tt.userName)
			require.NoError(t, err)

			claims, err := service.ValidateToken(token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID())
			assert.Equal(t, tt.userName, claims.Name)
			assert.Equal(t, "identity", claims.Issuer)
		})
	}
}

func TestJWTService_ValidateToken_InvalidSecret(t *testing.T) {
	service1 := NewJWTService("secret-key-1-min-32-characters-long!!!", "identity", time.Hour)
	service2 := NewJWTService("secret-key-2-min-32-characters-long!!!", "identity", time.Hour)

	token, err := service1.GenerateToken(uuid.NewString(), "Bob")
	require.NoError(t, err)

	_, err = service2.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateToken_WrongIssuer(t *testing.T) {
	issuer := NewJWTService(testSecret, "someone-else", time.Hour)
	validator := NewJWTService(testSecret, "identity", time.Hour)

	token, err := issuer.GenerateToken(uuid.NewString(), "Bob")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateToken_MalformedToken(t *testing.T) {
	service := NewJWTService(testSecret, "identity", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "invalid format", token: "not.a.valid.token"},
		{name: "random string", token: "random-string-that-is-not-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc.def", want: "abc.def", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "Bearer   ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
