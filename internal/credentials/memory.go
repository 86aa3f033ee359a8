package credentials

import (
	"context"
	"sync"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// MemoryStore is the non-persistent credential namespace, used when the user
// declines to be remembered. Everything here is lost on process exit.
type MemoryStore struct {
	mu   sync.RWMutex
	pair model.TokenPair
	has  bool
	user *model.UserProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (model.TokenPair, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.has {
		return model.TokenPair{}, false, nil
	}
	return s.pair, true, nil
}

func (s *MemoryStore) Set(_ context.Context, pair model.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.has = true
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, nil
	}
	u := *s.user
	return &u, nil
}

func (s *MemoryStore) SetUser(_ context.Context, user model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = model.TokenPair{}
	s.has = false
	s.user = nil
	return nil
}
