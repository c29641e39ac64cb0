package kafka

// Topic definitions for session lifecycle events
const (
	TopicSessionStarted = "voice.sessions.started"
	TopicSessionEnded   = "voice.sessions.ended"
)

// SessionTopics lists every topic this service produces to
var SessionTopics = []string{TopicSessionStarted, TopicSessionEnded}
