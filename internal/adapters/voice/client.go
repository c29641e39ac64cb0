package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"voicebroker/internal/adapters/config"
	"voicebroker/internal/domain/agent"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

const (
	apiKeyHeader    = "xi-api-key"
	maxResponseSize = 64 << 10
)

// Call outcomes reported to metrics
const (
	outcomeSuccess     = "success"
	outcomeTimeout     = "timeout"
	outcomeHTTPError   = "http_error"
	outcomeBadResponse = "bad_response"
	outcomeTransport   = "transport_error"
)

// Client fetches short-lived conversation tokens from the voice provider.
// One call is one HTTP request; there is no internal retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenPath  string
	apiKey     string
	timeout    time.Duration
	limiter    *rate.Limiter
	log        *logger.Logger
}

type tokenResponse struct {
	Token string `json:"token"`
}

// NewClient creates a provider client from configuration
func NewClient(cfg config.VoiceConfig) *Client {
	timeout := cfg.TokenTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 600
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Client{
		// The per-call context carries the deadline; the client timeout is only a backstop.
		httpClient: &http.Client{Timeout: timeout + time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokenPath:  cfg.TokenPath,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		log:        logger.Get().With("component", "voice_client"),
	}
}

// GetToken requests a conversation token for the persona's upstream agent.
// Any failure, including the deadline, maps to errors.ErrProviderUnavailable.
func (c *Client) GetToken(ctx context.Context, persona agent.Persona) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	token, outcome, err := c.fetchToken(ctx, persona)
	metrics.RecordProviderTokenCall(persona.ID, time.Since(start), outcome)

	if err != nil {
		c.log.Warnw("Voice provider token request failed",
			"agent_id", persona.ID,
			"outcome", outcome,
			"duration", time.Since(start),
			"error", err,
		)
		return "", errors.Join(errors.ErrProviderUnavailable, err)
	}

	return token, nil
}

func (c *Client) fetchToken(ctx context.Context, persona agent.Persona) (string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", outcomeTimeout, errors.Wrap(err, "rate limiter wait")
	}

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, c.tokenPath, url.Values{"agent_id": {persona.UpstreamAgentID}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", outcomeTransport, errors.Wrap(err, "build token request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", outcomeTimeout, errors.Wrap(errors.ErrTimeout, "token request deadline exceeded")
		}
		return "", outcomeTransport, errors.Wrap(err, "token request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", outcomeTransport, errors.Wrap(err, "read token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", outcomeHTTPError, errors.Newf("provider returned status %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", outcomeBadResponse, errors.Wrap(err, "decode token response")
	}
	if parsed.Token == "" {
		return "", outcomeBadResponse, errors.New("provider response has no token")
	}

	return parsed.Token, outcomeSuccess, nil
}
