package api

// LoginRequest is the payload to open a platform session.
type LoginRequest struct {
	Email    string `json:"email" example:"amelia@example.com"`
	Password string `json:"password"`
	Remember bool   `json:"remember" example:"true"`
}

// RegisterRequest is the payload to create a platform account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty" example:"Amelia Reyes"`
}

// EngagementPingRequest records one interaction with a piece of content.
type EngagementPingRequest struct {
	ContentType string `json:"content_type" example:"chapter"`
	ContentID   string `json:"content_id"`
	Action      string `json:"action" example:"like"`
	Value       int    `json:"value" example:"1"`
	Comment     string `json:"comment,omitempty"`
}

// ChatSendRequest relays one message to the platform assistant.
type ChatSendRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}
