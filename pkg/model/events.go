package model

import "time"

// SessionEventType enumerates session lifecycle events.
type SessionEventType string

const (
	SessionStarted    SessionEventType = "session.started"
	SessionRefreshed  SessionEventType = "session.refreshed"
	SessionTerminated SessionEventType = "session.terminated"
	StatsRefreshed    SessionEventType = "stats.refreshed"
)

// SessionEvent captures one lifecycle transition for the audit trail and the
// event stream.
type SessionEvent struct {
	Type      SessionEventType  `json:"type"`
	UserEmail string            `json:"user_email,omitempty"`
	Reason    TerminationReason `json:"reason,omitempty"`
	Remember  bool              `json:"remember,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Severity classifies a notification for display purposes.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is a single user-facing message emitted by the session layer.
// The session layer guarantees at most one notification per failure event.
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"` // operation that produced it
	Timestamp time.Time `json:"timestamp"`
}
