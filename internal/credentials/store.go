package credentials

import (
	"context"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// Store persists the credentials and cached profile of one user session.
// Implementations must replace the token pair atomically: a reader never
// observes the access token of one login paired with the refresh token of
// another.
type Store interface {
	// Get returns the current pair. ok is false when no session is stored.
	Get(ctx context.Context) (pair model.TokenPair, ok bool, err error)

	// Set replaces the stored pair as a unit.
	Set(ctx context.Context, pair model.TokenPair) error

	// GetUser returns the cached profile, or nil when absent.
	GetUser(ctx context.Context) (*model.UserProfile, error)

	// SetUser caches the profile alongside the credentials.
	SetUser(ctx context.Context, user model.UserProfile) error

	// Clear removes tokens and cached profile together.
	Clear(ctx context.Context) error
}
