package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"voicebroker/internal/domain/session"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/errors"
)

// Compile-time check
var _ session.Repository = (*SessionRepository)(nil)

const sessionColumns = `
	id, user_id, user_name, conversation_id, agent_id, provider_conversation_id,
	status, client_type, start_time, end_time, duration_seconds, metadata,
	created_at, updated_at`

// SessionRepository implements session.Repository using PostgreSQL
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// track starts timing a query; call the returned func with the final error
func track(operation string) func(*error) {
	start := time.Now()
	return func(err *error) {
		metrics.RecordDBQuery("postgres", operation, time.Since(start), *err)
	}
}

// Create inserts a new session row
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) (err error) {
	defer track("sessions.create")(&err)

	if s.Metadata == nil {
		s.Metadata = session.Metadata{}
	}

	query := `
		INSERT INTO sessions (
			id, user_id, user_name, conversation_id, agent_id, provider_conversation_id,
			status, client_type, start_time, end_time, duration_seconds, metadata
		) VALUES (
			:id, :user_id, :user_name, :conversation_id, :agent_id, :provider_conversation_id,
			:status, :client_type, :start_time, :end_time, :duration_seconds, :metadata
		)`

	if _, err = r.db.NamedExecContext(ctx, query, s); err != nil {
		return errors.Wrap(err, "insert session")
	}
	return nil
}

// GetByID retrieves a session by id
func (r *SessionRepository) GetByID(ctx context.Context, id string) (_ *session.Session, err error) {
	defer track("sessions.get")(&err)

	var s session.Session
	err = r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	return &s, nil
}

// UpdateProviderID attaches the provider conversation id; starting is promoted to active
func (r *SessionRepository) UpdateProviderID(ctx context.Context, id, providerConversationID string) (err error) {
	defer track("sessions.update_provider")(&err)

	query := `
		UPDATE sessions
		SET provider_conversation_id = $2,
			status = CASE WHEN status = 'starting' THEN 'active' ELSE status END,
			updated_at = now()
		WHERE id = $1`

	if _, err = r.db.ExecContext(ctx, query, id, providerConversationID); err != nil {
		return errors.Wrap(err, "update provider id")
	}
	return nil
}

// UpdateEnd writes the end fields of a session still in a non-terminal status
func (r *SessionRepository) UpdateEnd(ctx context.Context, s *session.Session) (_ bool, err error) {
	defer track("sessions.update_end")(&err)

	query := `
		UPDATE sessions
		SET end_time = $2,
			duration_seconds = $3,
			status = $4,
			provider_conversation_id = COALESCE($5, provider_conversation_id),
			updated_at = now()
		WHERE id = $1 AND status = ANY($6)`

	res, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.EndTime,
		s.DurationSeconds,
		s.Status,
		s.ProviderConversationID,
		pq.Array(session.NonTerminalStatuses()),
	)
	if err != nil {
		return false, errors.Wrap(err, "update session end")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// ListByUser returns a user's sessions, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) (_ []*session.Session, err error) {
	defer track("sessions.list_by_user")(&err)

	var out []*session.Session
	err = r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions by user")
	}
	return out, nil
}

// ListNotEnded returns non-terminal sessions, oldest first
func (r *SessionRepository) ListNotEnded(ctx context.Context, limit int) (_ []*session.Session, err error) {
	defer track("sessions.list_not_ended")(&err)

	var out []*session.Session
	err = r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = ANY($1)
		ORDER BY start_time
		LIMIT $2`, pq.Array(session.NonTerminalStatuses()), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list open sessions")
	}
	return out, nil
}

// ListStale returns non-terminal sessions started before olderThan, oldest first
func (r *SessionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) (_ []*session.Session, err error) {
	defer track("sessions.list_stale")(&err)

	var out []*session.Session
	err = r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = ANY($1) AND start_time < $2
		ORDER BY start_time
		LIMIT $3`, pq.Array(session.NonTerminalStatuses()), olderThan, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list stale sessions")
	}
	return out, nil
}
