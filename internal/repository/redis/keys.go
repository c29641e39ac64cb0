package redis

import (
	"time"

	"voicebroker/internal/metrics"
)

const (
	sessionKeyPrefix     = "voice:session:"
	activeSessionsKey    = "voice:sessions:active"
	userSessionsPrefix   = "voice:sessions:user:"
	usageKeyPrefix       = "voice:usage:"
	userContextKeyPrefix = "voice:user_context:"
	sessionRateKeyPrefix = "rate_limit:sessions:"
)

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func endClaimKey(id string) string {
	return sessionKeyPrefix + id + ":end"
}

func endedKey(id string) string {
	return sessionKeyPrefix + id + ":ended"
}

func userSessionsKey(userID string) string {
	return userSessionsPrefix + userID
}

func usageKey(userID, day string) string {
	return usageKeyPrefix + userID + ":" + day
}

func userContextKey(conversationID string) string {
	return userContextKeyPrefix + conversationID
}

// track starts timing a redis operation; call the returned func with the final error
func track(operation string) func(*error) {
	start := time.Now()
	return func(err *error) {
		metrics.RecordDBQuery("redis", operation, time.Since(start), *err)
	}
}
