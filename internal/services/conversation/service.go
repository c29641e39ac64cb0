package conversation

import (
	"context"
	"encoding/json"
	"time"

	"voicebroker/internal/adapters/voice"
	"voicebroker/internal/domain/agent"
	"voicebroker/internal/domain/session"
	"voicebroker/internal/domain/usercontext"
	"voicebroker/internal/events"
	"voicebroker/internal/metrics"
	sessionsvc "voicebroker/internal/services/session"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Sessions is the subset of the lifecycle manager used to open and abort conversations
type Sessions interface {
	CreateSession(ctx context.Context, p sessionsvc.CreateParams) (*session.Session, error)
	FailSession(ctx context.Context, sessionID, reason string) (*session.Session, error)
}

// Agents resolves persona ids
type Agents interface {
	Resolve(id string) (agent.Persona, error)
}

// TokenProvider issues a short-lived client token for a persona
type TokenProvider interface {
	GetToken(ctx context.Context, persona agent.Persona) (string, error)
}

// Personalizer builds the provider override for a conversation
type Personalizer interface {
	BuildEncrypted(persona agent.Persona, uc *usercontext.UserContext) (*voice.Override, error)
}

// RateLimiter throttles session starts per user
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// StartResult is everything a client needs to open the voice connection
type StartResult struct {
	Session  *session.Session `json:"session"`
	Token    string           `json:"token"`
	Override *voice.Override  `json:"override"`
}

// ContextView is the provider-facing view of a user context
type ContextView struct {
	usercontext.Public
	EncryptedContext string `json:"encrypted_context,omitempty"`
}

// Sealer encrypts a user context for the provider
type Sealer interface {
	EncryptToString(plaintext []byte) (string, error)
}

// Service starts conversations: throttle, open a session, fetch a provider token, personalize.
type Service struct {
	sessions     Sessions
	agents       Agents
	provider     TokenProvider
	personalizer Personalizer
	limiter      RateLimiter
	contexts     usercontext.Store
	sealer       Sealer
	log          *logger.Logger
}

// NewService creates a conversation service. limiter and sealer may be nil.
func NewService(
	sessions Sessions,
	agents Agents,
	provider TokenProvider,
	personalizer Personalizer,
	limiter RateLimiter,
	contexts usercontext.Store,
	sealer Sealer,
	log *logger.Logger,
) *Service {
	return &Service{
		sessions:     sessions,
		agents:       agents,
		provider:     provider,
		personalizer: personalizer,
		limiter:      limiter,
		contexts:     contexts,
		sealer:       sealer,
		log:          log.With("component", "conversation_service"),
	}
}

// Start opens a session and returns the provider token and override.
// When the provider or personalization fails after the session exists, the session is
// failed so its elapsed time is still accounted.
func (s *Service) Start(ctx context.Context, p sessionsvc.CreateParams) (*StartResult, error) {
	if p.UserID == "" {
		return nil, errors.NewValidationError("user_id", "required", p.UserID)
	}

	if err := s.throttle(ctx, p.UserID); err != nil {
		return nil, err
	}

	persona, err := s.agents.Resolve(p.AgentID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.CreateSession(ctx, p)
	if err != nil {
		return nil, err
	}

	token, err := s.provider.GetToken(ctx, persona)
	if err != nil {
		s.abort(ctx, sess, err)
		return nil, err
	}

	override, err := s.personalizer.BuildEncrypted(persona, &usercontext.UserContext{
		ConversationID: sess.ConversationID,
		UserID:         sess.UserID,
		Name:           sess.UserName,
		CallerToken:    p.CallerToken,
		BearerAuth:     bearer(p.CallerToken),
		CreatedAt:      sess.StartTime,
	})
	if err != nil {
		s.abort(ctx, sess, err)
		return nil, errors.Wrap(err, "build personalization")
	}

	return &StartResult{Session: sess, Token: token, Override: override}, nil
}

// GetContext returns the stored user context for a conversation.
// Credentials are only included sealed.
func (s *Service) GetContext(ctx context.Context, conversationID string) (*ContextView, error) {
	if conversationID == "" {
		return nil, errors.NewValidationError("conversation_id", "required", conversationID)
	}

	uc, err := s.contexts.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	view := &ContextView{Public: uc.Public()}
	if s.sealer == nil {
		return view, nil
	}

	raw, err := json.Marshal(uc)
	if err != nil {
		return nil, errors.Wrap(err, "marshal user context")
	}
	view.EncryptedContext, err = s.sealer.EncryptToString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "seal user context")
	}
	return view, nil
}

func (s *Service) throttle(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}

	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// Limiter errors fail open.
		s.log.Warnw("Rate limiter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if !allowed {
		metrics.RecordRateLimited()
		return errors.Wrapf(errors.ErrRateLimitExceeded, "user %s", userID)
	}
	return nil
}

func (s *Service) abort(ctx context.Context, sess *session.Session, cause error) {
	// The session must be closed even when the request was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := s.sessions.FailSession(ctx, sess.ID, events.ReasonProviderError); err != nil {
		s.log.Errorw("Failed to close session after provider failure",
			"session_id", sess.ID,
			"cause", cause,
			"error", err,
		)
		return
	}

	s.log.Warnw("Conversation start aborted", "session_id", sess.ID, "error", cause)
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
