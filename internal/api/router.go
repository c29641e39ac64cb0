package api

import (
	"net/http"

	"voicebroker/internal/api/health"
	"voicebroker/internal/api/middleware"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/logger"
)

// RouterConfig holds the shared secrets guarding non-caller routes
type RouterConfig struct {
	AdminAPIKey           string
	ProviderWebhookSecret string
}

// NewRouter wires every route behind its guard
func NewRouter(
	cfg RouterConfig,
	h *Handlers,
	healthHandler *health.Handler,
	authenticator middleware.Authenticator,
	log *logger.Logger,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	mux.HandleFunc("GET /live", healthHandler.HandleLiveness)
	mux.Handle("GET /metrics", metrics.Handler())

	caller := middleware.NewAuthMiddleware(authenticator, log).Handler
	mux.Handle("POST /api/v1/conversations", caller(http.HandlerFunc(h.StartConversation)))
	mux.Handle("POST /api/v1/conversations/{id}/provider", caller(http.HandlerFunc(h.AttachProvider)))
	mux.Handle("POST /api/v1/conversations/{id}/end", caller(http.HandlerFunc(h.EndConversation)))
	mux.Handle("GET /api/v1/conversations/{id}", caller(http.HandlerFunc(h.GetConversation)))
	mux.Handle("GET /api/v1/sessions", caller(http.HandlerFunc(h.ListSessions)))
	mux.Handle("GET /api/v1/usage", caller(http.HandlerFunc(h.GetUsage)))
	mux.HandleFunc("GET /api/v1/agents", h.ListAgents)

	webhook := middleware.RequireSecret(middleware.WebhookSecretHeader, cfg.ProviderWebhookSecret, log)
	mux.Handle("GET /api/v1/context/{conversationId}", webhook(http.HandlerFunc(h.GetContext)))

	admin := middleware.RequireSecret(middleware.AdminKeyHeader, cfg.AdminAPIKey, log)
	mux.Handle("GET /api/v1/admin/sessions", admin(http.HandlerFunc(h.AdminListSessions)))
	mux.Handle("POST /api/v1/admin/sessions/end-all", admin(http.HandlerFunc(h.AdminEndAll)))
	mux.Handle("GET /api/v1/admin/analytics/agents", admin(http.HandlerFunc(h.AdminAgentAnalytics)))

	return middleware.Chain(mux,
		middleware.Observe(log),
		middleware.Recover(log),
	)
}
