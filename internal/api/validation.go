package api

import (
	"fmt"
	"strings"
)

// maxChatMessageLen matches the platform's limit; longer messages would be
// rejected upstream with a validation error anyway.
const maxChatMessageLen = 2000

func (r LoginRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.Password) == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

func (r RegisterRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	// The platform enforces the same minimum on its side.
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

func (r EngagementPingRequest) Validate() error {
	if strings.TrimSpace(r.ContentType) == "" {
		return fmt.Errorf("content_type is required")
	}
	if strings.TrimSpace(r.ContentID) == "" {
		return fmt.Errorf("content_id is required")
	}
	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case "like", "dislike", "rate":
	default:
		return fmt.Errorf("action must be 'like', 'dislike' or 'rate'")
	}
	return nil
}

func (r ChatSendRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if len(r.Message) > maxChatMessageLen {
		return fmt.Errorf("message must be at most %d characters", maxChatMessageLen)
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email is invalid")
	}
	return nil
}
