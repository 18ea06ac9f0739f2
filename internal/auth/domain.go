package auth

import "time"

// SessionRecord mirrors the sessions table row kept for login auditing. The
// authoritative session state lives in Redis; this row answers "who was
// signed in from where" after the Redis entry expired.
type SessionRecord struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
