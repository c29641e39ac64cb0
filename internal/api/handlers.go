package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"voicebroker/internal/api/middleware"
	"voicebroker/internal/api/respond"
	"voicebroker/internal/domain/agent"
	"voicebroker/internal/domain/analytics"
	"voicebroker/internal/domain/session"
	"voicebroker/internal/domain/usage"
	"voicebroker/internal/services/conversation"
	sessionsvc "voicebroker/internal/services/session"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

const (
	maxBodyBytes        = 64 << 10
	defaultSessionLimit = 50
	maxSessionLimit     = 200
)

// Conversations starts conversations and serves provider context lookups
type Conversations interface {
	Start(ctx context.Context, p sessionsvc.CreateParams) (*conversation.StartResult, error)
	GetContext(ctx context.Context, conversationID string) (*conversation.ContextView, error)
}

// Sessions is the lifecycle manager surface exposed over HTTP
type Sessions interface {
	AttachProviderID(ctx context.Context, callerID, sessionID, providerConversationID string) error
	EndSession(ctx context.Context, callerID, sessionID string) (*session.Session, error)
	GetSession(ctx context.Context, callerID, sessionID string) (*session.Session, error)
	GetUserSessions(ctx context.Context, userID string, limit int) ([]*session.Session, error)
	GetUserDailyUsage(ctx context.Context, userID string) (*usage.DailyUsage, error)
	ListActiveSessions(ctx context.Context) ([]*session.Session, error)
	EndAllActiveSessions(ctx context.Context) (*sessionsvc.EndAllResult, error)
}

// Agents lists the personas a caller can pick
type Agents interface {
	ListActive() []agent.Persona
}

// AgentAnalytics reports per-agent usage
type AgentAnalytics interface {
	AgentUsage(ctx context.Context, from, to time.Time) ([]analytics.AgentUsage, error)
}

// Handlers maps HTTP requests onto the services. It holds no logic of its own.
type Handlers struct {
	conversations Conversations
	sessions      Sessions
	agents        Agents
	analytics     AgentAnalytics
	now           func() time.Time
	log           *logger.Logger
}

// NewHandlers creates the request handlers. analytics may be nil when reporting is disabled.
func NewHandlers(conversations Conversations, sessions Sessions, agents Agents, analytics AgentAnalytics, log *logger.Logger) *Handlers {
	return &Handlers{
		conversations: conversations,
		sessions:      sessions,
		agents:        agents,
		analytics:     analytics,
		now:           time.Now,
		log:           log.With("component", "api"),
	}
}

type startRequest struct {
	AgentID        string           `json:"agent_id"`
	ConversationID string           `json:"conversation_id"`
	ClientType     string           `json:"client_type"`
	Metadata       session.Metadata `json:"metadata"`
}

type attachRequest struct {
	ProviderConversationID string `json:"provider_conversation_id"`
}

type sessionsResponse struct {
	Sessions []*session.Session `json:"sessions"`
	Count    int                `json:"count"`
}

// StartConversation handles POST /api/v1/conversations
func (h *Handlers) StartConversation(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	var req startRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.AgentID == "" {
		h.fail(w, r, errors.NewValidationError("agent_id", "required", req.AgentID))
		return
	}

	res, err := h.conversations.Start(r.Context(), sessionsvc.CreateParams{
		UserID:         caller.UserID,
		UserName:       caller.Name,
		CallerToken:    caller.Token,
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
		ClientType:     session.ParseClientType(req.ClientType),
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, res)
}

// AttachProvider handles POST /api/v1/conversations/{id}/provider
func (h *Handlers) AttachProvider(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	var req attachRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.sessions.AttachProviderID(r.Context(), caller.UserID, r.PathValue("id"), req.ProviderConversationID); err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EndConversation handles POST /api/v1/conversations/{id}/end
func (h *Handlers) EndConversation(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	sess, err := h.sessions.EndSession(r.Context(), caller.UserID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, sess)
}

// GetConversation handles GET /api/v1/conversations/{id}
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	sess, err := h.sessions.GetSession(r.Context(), caller.UserID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, sess)
}

// ListSessions handles GET /api/v1/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	limit, err := queryLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.sessions.GetUserSessions(r.Context(), caller.UserID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, sessionsResponse{Sessions: list, Count: len(list)})
}

// GetUsage handles GET /api/v1/usage
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	u, err := h.sessions.GetUserDailyUsage(r.Context(), caller.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, struct {
		*usage.DailyUsage
		RemainingSeconds int64 `json:"remaining_seconds"`
	}{u, u.RemainingSeconds()})
}

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{"agents": h.agents.ListActive()})
}

// GetContext handles GET /api/v1/context/{conversationId}
func (h *Handlers) GetContext(w http.ResponseWriter, r *http.Request) {
	view, err := h.conversations.GetContext(r.Context(), r.PathValue("conversationId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, view)
}

// AdminListSessions handles GET /api/v1/admin/sessions
func (h *Handlers) AdminListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.ListActiveSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, sessionsResponse{Sessions: list, Count: len(list)})
}

// AdminEndAll handles POST /api/v1/admin/sessions/end-all
func (h *Handlers) AdminEndAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.EndAllActiveSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.log.Infow("Admin ended all active sessions", "count", res.Count, "failed", len(res.Failed))
	respond.JSON(w, http.StatusOK, res)
}

// AdminAgentAnalytics handles GET /api/v1/admin/analytics/agents?from=&to=
// Dates are YYYY-MM-DD or RFC3339; the default window is the last seven days.
func (h *Handlers) AdminAgentAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		h.fail(w, r, errors.Wrap(errors.ErrUnavailable, "analytics disabled"))
		return
	}

	to := h.now().UTC()
	from := to.Add(-7 * 24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseTime("from", v); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseTime("to", v); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if !from.Before(to) {
		h.fail(w, r, errors.NewValidationError("from", "must be before to", from))
		return
	}

	rows, err := h.analytics.AgentUsage(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, errors.Join(errors.ErrUnavailable, err))
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"from":   from,
		"to":     to,
		"agents": rows,
	})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Error(w, r, h.log, err)
}

// decode reads an optional JSON body into v
func decode(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && err != io.EOF {
		return errors.NewValidationError("body", "malformed JSON", nil)
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultSessionLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewValidationError("limit", "must be a positive integer", raw)
	}
	return min(n, maxSessionLimit), nil
}

func parseTime(field, raw string) (time.Time, error) {
	if t, err := time.Parse(usage.DayLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, "expected YYYY-MM-DD or RFC3339", raw)
	}
	return t, nil
}
