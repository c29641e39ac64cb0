package session

import (
	"context"
	"time"

	"voicebroker/internal/domain/agent"
	"voicebroker/internal/domain/session"
	"voicebroker/internal/domain/usage"
	"voicebroker/internal/domain/usercontext"
	"voicebroker/internal/events"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Agents resolves persona ids, failing with ErrAgentNotFound or ErrAgentInactive
type Agents interface {
	Resolve(id string) (agent.Persona, error)
}

// Quota gates session starts and accounts finished sessions
type Quota interface {
	GetDailyUsage(ctx context.Context, userID string) (*usage.DailyUsage, error)
	CheckQuota(ctx context.Context, userID string) (*usage.DailyUsage, error)
	Record(ctx context.Context, userID string, at time.Time, seconds int64) (*usage.DailyUsage, error)
	Calendar() *usage.Calendar
}

// EventPublisher receives lifecycle events; implementations must not block on failure
type EventPublisher interface {
	PublishSessionStarted(ctx context.Context, s *session.Session)
	PublishSessionEnded(ctx context.Context, s *session.Session, reason, usageDate string)
}

// Config holds lifecycle timings.
// EndedMarkerTTL bounds how long an accounted session is remembered after its end claim expires;
// it must outlast any window in which the durable row can still be seen as open.
type Config struct {
	CacheTTL       time.Duration
	IdleCeiling    time.Duration
	EndClaimTTL    time.Duration
	EndedMarkerTTL time.Duration
	UserContextTTL time.Duration
	BatchSize      int
}

const defaultEndedMarkerTTL = 24 * time.Hour

// CreateParams describes a session start request after authentication
type CreateParams struct {
	UserID         string
	UserName       string
	CallerToken    string
	ConversationID string
	AgentID        string
	ClientType     session.ClientType
	Metadata       session.Metadata
}

// EndAllResult summarizes an end-all sweep
type EndAllResult struct {
	Count    int      `json:"count"`
	EndedIDs []string `json:"ended_ids"`
	Failed   []string `json:"failed,omitempty"`
}

// Service is the session lifecycle manager. It holds no cross-request state of its own:
// correctness under concurrency comes from the end claim in the cache and the atomic
// usage upsert in the store.
type Service struct {
	repo         session.Repository
	cache        session.Cache
	userContexts usercontext.Store
	agents       Agents
	quota        Quota
	events       EventPublisher
	cfg          Config
	now          func() time.Time
	log          *logger.Logger
}

// NewService creates a new session lifecycle service
func NewService(
	repo session.Repository,
	cache session.Cache,
	userContexts usercontext.Store,
	agents Agents,
	quota Quota,
	publisher EventPublisher,
	cfg Config,
	log *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.EndedMarkerTTL <= 0 {
		cfg.EndedMarkerTTL = defaultEndedMarkerTTL
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		userContexts: userContexts,
		agents:       agents,
		quota:        quota,
		events:       publisher,
		cfg:          cfg,
		now:          quota.Calendar().Now,
		log:          log.With("component", "session_service"),
	}
}

// CreateSession opens a session after the agent and quota checks.
// Nothing is written when either check fails. A failed durable insert is logged and swallowed.
func (s *Service) CreateSession(ctx context.Context, p CreateParams) (*session.Session, error) {
	if p.UserID == "" {
		return nil, errors.NewValidationError("user_id", "required", p.UserID)
	}

	persona, err := s.agents.Resolve(p.AgentID)
	if err != nil {
		return nil, err
	}

	if _, err := s.quota.CheckQuota(ctx, p.UserID); err != nil {
		if errors.Is(err, errors.ErrQuotaExceeded) {
			metrics.RecordQuotaRejection(persona.ID)
			s.log.Infow("Session refused, daily quota used up", "user_id", p.UserID, "agent_id", persona.ID)
		}
		return nil, err
	}

	id := session.NewID()
	conversationID := p.ConversationID
	if conversationID == "" {
		conversationID = id
	}
	clientType := p.ClientType
	if clientType == "" {
		clientType = session.ClientOther
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = session.Metadata{}
	}

	sess := &session.Session{
		ID:             id,
		UserID:         p.UserID,
		UserName:       p.UserName,
		ConversationID: conversationID,
		AgentID:        persona.ID,
		Status:         session.StatusStarting,
		ClientType:     clientType,
		StartTime:      s.now().UTC(),
		Metadata:       metadata,
	}

	if err := s.cache.Put(ctx, sess, s.cfg.CacheTTL); err != nil {
		return nil, errors.Join(errors.ErrUnavailable, errors.Wrap(err, "cache new session"))
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		s.degraded("session.create", sess.ID, err)
	}

	if p.CallerToken != "" {
		uc := &usercontext.UserContext{
			ConversationID: conversationID,
			UserID:         p.UserID,
			Name:           p.UserName,
			CallerToken:    p.CallerToken,
			BearerAuth:     "Bearer " + p.CallerToken,
			CreatedAt:      sess.StartTime,
		}
		if err := s.userContexts.Save(ctx, uc, s.cfg.UserContextTTL); err != nil {
			s.log.Warnw("Failed to store user context", "session_id", sess.ID, "error", err)
		}
	}

	metrics.RecordSessionStarted(persona.ID, string(clientType))
	s.events.PublishSessionStarted(ctx, sess)

	s.log.Infow("Session created",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"agent_id", sess.AgentID,
		"client_type", sess.ClientType,
	)

	return sess, nil
}

// AttachProviderID records the provider's conversation id and promotes starting to active.
// A missing session is not an error. A non-empty callerID must own a cached session.
func (s *Service) AttachProviderID(ctx context.Context, callerID, sessionID, providerConversationID string) error {
	if providerConversationID == "" {
		return errors.NewValidationError("provider_conversation_id", "required", providerConversationID)
	}

	cached, err := s.cache.Get(ctx, sessionID)
	switch {
	case err == nil:
		if callerID != "" && !cached.OwnedBy(callerID) {
			return errors.Wrapf(errors.ErrAccessDenied, "session %s", sessionID)
		}
		if cached.Status.IsTerminal() {
			break
		}
		cached.Activate(providerConversationID)
		written, err := s.cache.Refresh(ctx, cached, s.cfg.CacheTTL)
		if err != nil {
			s.log.Warnw("Failed to refresh cached session", "session_id", sessionID, "error", err)
		} else if !written {
			s.log.Debugw("Session ended during attach, cache left untouched", "session_id", sessionID)
		}
	case !errors.Is(err, errors.ErrSessionNotFound):
		s.log.Warnw("Session cache read failed during attach", "session_id", sessionID, "error", err)
	}

	if err := s.repo.UpdateProviderID(ctx, sessionID, providerConversationID); err != nil {
		s.degraded("session.update_provider", sessionID, err)
	}

	return nil
}

// EndSession closes a session owned by callerID and accounts its duration.
// A session that was already ended, or is being ended concurrently, is reported as not found.
func (s *Service) EndSession(ctx context.Context, callerID, sessionID string) (*session.Session, error) {
	return s.end(ctx, callerID, sessionID, session.StatusEnded, events.ReasonClient)
}

// FailSession moves a live session to error. Elapsed time is accounted like a normal end.
func (s *Service) FailSession(ctx context.Context, sessionID, reason string) (*session.Session, error) {
	return s.end(ctx, "", sessionID, session.StatusError, reason)
}

func (s *Service) end(ctx context.Context, callerID, sessionID string, status session.Status, reason string) (*session.Session, error) {
	sess, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if callerID != "" && !sess.OwnedBy(callerID) {
		return nil, errors.Wrapf(errors.ErrAccessDenied, "session %s", sessionID)
	}

	if sess.Status.IsTerminal() {
		s.evict(ctx, sess)
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s already %s", sessionID, sess.Status)
	}

	claimed, err := s.cache.ClaimEnd(ctx, sessionID, s.cfg.EndClaimTTL)
	if err != nil {
		return nil, errors.Join(errors.ErrUnavailable, errors.Wrap(err, "claim session end"))
	}
	if !claimed {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s is already ending", sessionID)
	}

	accounted, err := s.cache.GetEnded(ctx, sessionID)
	switch {
	case err == nil:
		// usage was counted by an earlier end whose row update did not land
		s.persistEnd(ctx, accounted)
		s.evict(ctx, accounted)
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s already %s", sessionID, accounted.Status)
	case !errors.Is(err, errors.ErrSessionNotFound):
		s.releaseClaim(ctx, sessionID)
		return nil, errors.Join(errors.ErrUnavailable, errors.Wrap(err, "read session end marker"))
	}

	now := s.now()
	if err := sess.Finish(now, status); err != nil {
		s.releaseClaim(ctx, sessionID)
		return nil, err
	}

	// usage first: the session row must never show ended for time that was not counted
	day := s.quota.Calendar().Day(now)
	if _, err := s.quota.Record(ctx, sess.UserID, now, sess.DurationSeconds); err != nil {
		s.releaseClaim(ctx, sessionID)
		s.log.Errorw("Failed to account session usage", "session_id", sessionID, "user_id", sess.UserID, "error", err)
		return nil, err
	}

	if err := s.cache.MarkEnded(ctx, sess, s.cfg.EndedMarkerTTL); err != nil {
		s.log.Errorw("Failed to mark session accounted, only the end claim guards it now",
			"session_id", sessionID, "error", err)
	}

	s.persistEnd(ctx, sess)
	s.evict(ctx, sess)

	if err := s.userContexts.Delete(ctx, sess.ConversationID); err != nil {
		s.log.Warnw("Failed to purge user context", "session_id", sessionID, "error", err)
	}

	metrics.RecordSessionEnded(sess.AgentID, string(sess.ClientType), reason, sess.DurationSeconds)
	s.events.PublishSessionEnded(ctx, sess, reason, day)

	s.log.Infow("Session ended",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"status", sess.Status,
		"reason", reason,
		"duration_seconds", sess.DurationSeconds,
	)

	return sess, nil
}

// persistEnd writes the end fields. A row that is missing because its insert was degraded is
// created now in its final state.
func (s *Service) persistEnd(ctx context.Context, sess *session.Session) {
	updated, err := s.repo.UpdateEnd(ctx, sess)
	if err != nil {
		s.degraded("session.update_end", sess.ID, err)
		return
	}
	if updated {
		return
	}

	if _, err := s.repo.GetByID(ctx, sess.ID); errors.Is(err, errors.ErrSessionNotFound) {
		if err := s.repo.Create(ctx, sess); err != nil {
			s.degraded("session.create", sess.ID, err)
		}
		return
	}

	s.log.Warnw("Session row was already terminal", "session_id", sess.ID)
}

// GetSession returns a session owned by callerID from the cache or the durable store
func (s *Service) GetSession(ctx context.Context, callerID, sessionID string) (*session.Session, error) {
	sess, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.OwnedBy(callerID) {
		return nil, errors.Wrapf(errors.ErrAccessDenied, "session %s", sessionID)
	}
	return sess, nil
}

// GetUserDailyUsage returns today's usage for userID
func (s *Service) GetUserDailyUsage(ctx context.Context, userID string) (*usage.DailyUsage, error) {
	return s.quota.GetDailyUsage(ctx, userID)
}

// GetUserSessions returns the caller's live sessions, or its recent sessions from the
// durable store when none are live
func (s *Service) GetUserSessions(ctx context.Context, userID string, limit int) ([]*session.Session, error) {
	list, err := s.cache.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warnw("Session cache read failed, using store", "user_id", userID, "error", err)
	}
	if len(list) > 0 {
		return list, nil
	}

	list, err = s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list user sessions")
	}
	return list, nil
}

// ListActiveSessions snapshots the active index, scanning the durable store when it is empty
func (s *Service) ListActiveSessions(ctx context.Context) ([]*session.Session, error) {
	list, err := s.cache.ListActive(ctx)
	if err != nil {
		s.log.Warnw("Active index read failed, using store", "error", err)
	}
	if len(list) > 0 {
		return list, nil
	}

	list, err = s.repo.ListNotEnded(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions not ended")
	}
	return list, nil
}

// EndAllActiveSessions force-ends every live session. Sessions ended concurrently by
// someone else are skipped silently.
func (s *Service) EndAllActiveSessions(ctx context.Context) (*EndAllResult, error) {
	list, err := s.ListActiveSessions(ctx)
	if err != nil {
		return nil, err
	}

	result := &EndAllResult{EndedIDs: make([]string, 0, len(list))}
	for _, sess := range list {
		if _, err := s.end(ctx, "", sess.ID, session.StatusEnded, events.ReasonAdmin); err != nil {
			if errors.Is(err, errors.ErrSessionNotFound) {
				continue
			}
			s.log.Errorw("Failed to end session", "session_id", sess.ID, "error", err)
			result.Failed = append(result.Failed, sess.ID)
			continue
		}
		result.EndedIDs = append(result.EndedIDs, sess.ID)
	}
	result.Count = len(result.EndedIDs)

	s.log.Infow("Ended all active sessions", "count", result.Count, "failed", len(result.Failed))
	return result, nil
}

// ReapIdleSessions force-ends cached sessions open longer than the idle ceiling
func (s *Service) ReapIdleSessions(ctx context.Context) (int, error) {
	list, err := s.cache.ListActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list active sessions")
	}

	return s.forceEnd(ctx, list, events.ReasonReaper), nil
}

// ReconcileStale force-ends durable sessions that are still open past the idle ceiling
// but no longer tracked by the cache
func (s *Service) ReconcileStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.IdleCeiling)

	list, err := s.repo.ListStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list stale sessions")
	}

	return s.forceEnd(ctx, list, events.ReasonReconciler), nil
}

func (s *Service) forceEnd(ctx context.Context, list []*session.Session, reason string) int {
	now := s.now()
	ended := 0

	for _, sess := range list {
		if ctx.Err() != nil {
			break
		}
		if sess.Age(now) <= s.cfg.IdleCeiling {
			continue
		}

		if _, err := s.end(ctx, "", sess.ID, session.StatusEnded, reason); err != nil {
			if !errors.Is(err, errors.ErrSessionNotFound) {
				s.log.Errorw("Failed to force-end idle session", "session_id", sess.ID, "reason", reason, "error", err)
			}
			continue
		}
		ended++
	}

	return ended
}

// resolve loads a session from the cache, then from the durable store
func (s *Service) resolve(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.cache.Get(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, errors.ErrSessionNotFound) {
		s.log.Warnw("Session cache read failed, using store", "session_id", sessionID, "error", err)
	}

	sess, err = s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			return nil, err
		}
		return nil, errors.Join(errors.ErrUnavailable, errors.Wrap(err, "load session"))
	}
	return sess, nil
}

func (s *Service) evict(ctx context.Context, sess *session.Session) {
	if err := s.cache.Evict(ctx, sess); err != nil {
		s.log.Warnw("Failed to evict session from cache", "session_id", sess.ID, "error", err)
	}
}

func (s *Service) releaseClaim(ctx context.Context, sessionID string) {
	if err := s.cache.ReleaseEnd(ctx, sessionID); err != nil {
		s.log.Warnw("Failed to release end claim", "session_id", sessionID, "error", err)
	}
}

// degraded logs a swallowed durable write failure
func (s *Service) degraded(operation, sessionID string, err error) {
	metrics.RecordPersistenceDegraded(operation)
	s.log.Errorw("Durable write failed, continuing on cache",
		"operation", operation,
		"session_id", sessionID,
		"error", errors.Join(errors.ErrPersistenceDegraded, err),
	)
}
