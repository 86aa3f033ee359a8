package model

import "time"

// TokenPair is an access/refresh credential pair. The two tokens are only
// meaningful together and are always replaced as a unit.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the pair carries no credentials at all.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// UserProfile is the authenticated platform user as cached locally.
type UserProfile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// TerminationReason identifies why a session was force-closed.
type TerminationReason string

const (
	ReasonRefreshRejected    TerminationReason = "refresh_rejected"
	ReasonRefreshUnavailable TerminationReason = "refresh_unavailable"
	ReasonNoRefreshToken     TerminationReason = "no_refresh_token"
	ReasonRepeatedAuthFail   TerminationReason = "repeated_auth_failure"
	ReasonServerError        TerminationReason = "server_error"
	ReasonUserLogout         TerminationReason = "user_logout"
)

// Message returns the user-facing text for the reason.
func (r TerminationReason) Message() string {
	switch r {
	case ReasonUserLogout:
		return "You have been signed out."
	case ReasonServerError:
		return "The study planner service is unavailable. Please sign in again later."
	default:
		return "Your session has expired. Please log in again."
	}
}

// SessionState is the adapter's view of its own session, as reported to
// service API consumers.
type SessionState struct {
	Authenticated bool         `json:"authenticated"`
	User          *UserProfile `json:"user,omitempty"`
}
