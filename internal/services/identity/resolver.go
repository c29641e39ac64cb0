package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"voicebroker/pkg/auth"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Name   string
	Token  string
}

// TokenValidator validates caller tokens minted by the identity system
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type profileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Resolver turns a caller token into an Identity. Tokens are only validated here, never minted.
type Resolver struct {
	validator  TokenValidator
	profileURL string
	httpClient *http.Client
	timeout    time.Duration
	log        *logger.Logger
}

// NewResolver creates a resolver. An empty profileURL skips the profile lookup and uses the
// token's name claim.
func NewResolver(validator TokenValidator, profileURL string, timeout time.Duration, log *logger.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		validator:  validator,
		profileURL: strings.TrimSpace(profileURL),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		log:        log.With("component", "identity_resolver"),
	}
}

// Resolve validates token and loads the caller's display name.
// Every failure is reported as errors.ErrUnauthenticated.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "missing caller token")
	}

	claims, err := r.validator.ValidateToken(token)
	if err != nil {
		return nil, errors.Join(errors.ErrUnauthenticated, err)
	}

	id := &Identity{
		UserID: claims.UserID(),
		Name:   claims.Name,
		Token:  token,
	}

	if r.profileURL == "" {
		return id, nil
	}

	name, err := r.fetchProfileName(ctx, id.UserID, token)
	if err != nil {
		r.log.Warnw("Profile lookup failed", "user_id", id.UserID, "error", err)
		return nil, errors.Join(errors.ErrUnauthenticated, err)
	}
	if name != "" {
		id.Name = name
	}

	return id, nil
}

func (r *Resolver) fetchProfileName(ctx context.Context, userID, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.profileURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "build profile request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "profile request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("profile api returned status %d", resp.StatusCode)
	}

	var profile profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&profile); err != nil {
		return "", errors.Wrap(err, "decode profile")
	}

	if profile.ID != "" && profile.ID != userID {
		return "", errors.Newf("profile belongs to another user")
	}

	if profile.DisplayName != "" {
		return profile.DisplayName, nil
	}
	return profile.Name, nil
}
