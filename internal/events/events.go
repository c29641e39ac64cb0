package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"voicebroker/internal/domain/session"
)

// Event types
const (
	TypeSessionStarted = "session.started"
	TypeSessionEnded   = "session.ended"
)

// End reasons carried on SessionEndedEvent
const (
	ReasonClient        = "client"
	ReasonReaper        = "reaper"
	ReasonReconciler    = "reconciler"
	ReasonAdmin         = "admin"
	ReasonProviderError = "provider_error"
)

const eventVersion = "1.0"

// BaseEvent carries the fields shared by every published event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	UserID    string    `json:"user_id"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, source, userID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		UserID:    userID,
		Version:   eventVersion,
	}
}

// SessionStartedEvent is published after a session is created
type SessionStartedEvent struct {
	BaseEvent
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	ClientType     string    `json:"client_type"`
	StartTime      time.Time `json:"start_time"`
}

// SessionEndedEvent is published once per session after its usage is accounted
type SessionEndedEvent struct {
	BaseEvent
	SessionID       string    `json:"session_id"`
	ConversationID  string    `json:"conversation_id"`
	AgentID         string    `json:"agent_id"`
	ClientType      string    `json:"client_type"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	UsageDate       string    `json:"usage_date"`
}

// NewSessionStartedEvent builds the started event for s
func NewSessionStartedEvent(s *session.Session) *SessionStartedEvent {
	return &SessionStartedEvent{
		BaseEvent:      NewBaseEvent(TypeSessionStarted, source, s.UserID),
		SessionID:      s.ID,
		ConversationID: SanitizeUTF8(s.ConversationID),
		AgentID:        s.AgentID,
		ClientType:     string(s.ClientType),
		StartTime:      s.StartTime,
	}
}

// NewSessionEndedEvent builds the ended event for a finished session
func NewSessionEndedEvent(s *session.Session, reason, usageDate string) *SessionEndedEvent {
	ev := &SessionEndedEvent{
		BaseEvent:       NewBaseEvent(TypeSessionEnded, source, s.UserID),
		SessionID:       s.ID,
		ConversationID:  SanitizeUTF8(s.ConversationID),
		AgentID:         s.AgentID,
		ClientType:      string(s.ClientType),
		Status:          string(s.Status),
		Reason:          reason,
		StartTime:       s.StartTime,
		DurationSeconds: s.DurationSeconds,
		UsageDate:       usageDate,
	}
	if s.EndTime != nil {
		ev.EndTime = *s.EndTime
	}
	return ev
}

// SanitizeUTF8 drops invalid UTF-8 sequences from client-supplied strings
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
