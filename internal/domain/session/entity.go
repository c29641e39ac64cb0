package session

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voicebroker/pkg/errors"
)

// Status is the session state machine: starting -> active -> ended,
// with error reachable from any non-terminal state.
type Status string

const (
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusEnding   Status = "ending"
	StatusEnded    Status = "ended"
	StatusError    Status = "error"
)

var transitions = map[Status][]Status{
	StatusStarting: {StatusActive, StatusEnding, StatusEnded, StatusError},
	StatusActive:   {StatusEnding, StatusEnded, StatusError},
	StatusEnding:   {StatusEnded, StatusError},
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusError
}

// CanTransitionTo reports whether s -> next is allowed
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NonTerminalStatuses lists the statuses of sessions that still count as live
func NonTerminalStatuses() []string {
	return []string{string(StatusStarting), string(StatusActive), string(StatusEnding)}
}

// ClientType tags the kind of app that started the session
type ClientType string

const (
	ClientWeb    ClientType = "web"
	ClientMobile ClientType = "mobile"
	ClientOther  ClientType = "other"
)

// ParseClientType maps free-form input to a known client type; unknown values become "other"
func ParseClientType(raw string) ClientType {
	switch ClientType(raw) {
	case ClientWeb, ClientMobile:
		return ClientType(raw)
	default:
		return ClientOther
	}
}

// Metadata is a free-form map stored as JSONB
type Metadata map[string]any

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(data, m)
}

// Session is one voice-conversation attempt by a user with a chosen agent persona
type Session struct {
	ID                     string     `db:"id" json:"id"`
	UserID                 string     `db:"user_id" json:"user_id"`
	UserName               string     `db:"user_name" json:"user_name"`
	ConversationID         string     `db:"conversation_id" json:"conversation_id"`
	AgentID                string     `db:"agent_id" json:"agent_id"`
	ProviderConversationID *string    `db:"provider_conversation_id" json:"provider_conversation_id,omitempty"`
	Status                 Status     `db:"status" json:"status"`
	ClientType             ClientType `db:"client_type" json:"client_type"`
	StartTime              time.Time  `db:"start_time" json:"start_time"`
	EndTime                *time.Time `db:"end_time" json:"end_time,omitempty"`
	DurationSeconds        int64      `db:"duration_seconds" json:"duration_seconds"`
	Metadata               Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"-"`
	UpdatedAt              time.Time  `db:"updated_at" json:"-"`
}

// NewID returns a time-ordered identifier that is never reused
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// OwnedBy reports whether userID owns the session
func (s *Session) OwnedBy(userID string) bool {
	return userID != "" && s.UserID == userID
}

// Age returns how long the session has been open at now
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Activate attaches the provider conversation id and promotes starting -> active.
// Other statuses keep their value.
func (s *Session) Activate(providerConversationID string) {
	s.ProviderConversationID = &providerConversationID
	if s.Status == StatusStarting {
		s.Status = StatusActive
	}
}

// Finish closes the session at now with the given terminal status and fixes its duration
func (s *Session) Finish(now time.Time, status Status) error {
	if !status.IsTerminal() {
		return errors.Wrapf(errors.ErrInvalidTransition, "%s is not terminal", status)
	}
	if !s.Status.CanTransitionTo(status) {
		return errors.Wrapf(errors.ErrInvalidTransition, "%s -> %s", s.Status, status)
	}

	end := now
	if end.Before(s.StartTime) {
		end = s.StartTime
	}

	s.EndTime = &end
	s.DurationSeconds = DurationSeconds(s.StartTime, end)
	s.Status = status
	return nil
}

// DurationSeconds returns floor(end-start) in whole seconds, clamped at zero
func DurationSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
