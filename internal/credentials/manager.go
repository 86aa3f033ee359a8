package credentials

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/model"
	"github.com/studyforge/planner-adapter/pkg/utils"
)

// Manager owns both credential namespaces and routes every read and write to
// the one chosen at login. The choice is fixed for the lifetime of that
// session; only the next Activate (a new login) can move it.
type Manager struct {
	durable   Store
	ephemeral Store
	logger    *zap.Logger

	mu     sync.RWMutex
	active Store
}

// NewManager wires the durable (Redis) and ephemeral (memory) namespaces.
// Until a login or hydration happens, the ephemeral namespace is active and
// empty, so reads report no session.
func NewManager(durable, ephemeral Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		durable:   durable,
		ephemeral: ephemeral,
		logger:    logger,
		active:    ephemeral,
	}
}

// Activate selects the namespace for a new login session.
func (m *Manager) Activate(remember bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remember {
		m.active = m.durable
	} else {
		m.active = m.ephemeral
	}
	m.logger.Info("credentials.namespace_activated", zap.Bool("remember", remember))
}

// Hydrate restores a previous session from the durable namespace, if one was
// persisted. On success the durable namespace becomes active.
func (m *Manager) Hydrate(ctx context.Context) (model.TokenPair, bool, error) {
	pair, ok, err := m.durable.Get(ctx)
	if err != nil || !ok {
		return model.TokenPair{}, false, err
	}

	m.mu.Lock()
	m.active = m.durable
	m.mu.Unlock()

	m.logger.Info("credentials.session_hydrated",
		zap.String("access_token", utils.MaskToken(pair.AccessToken)))
	return pair, true, nil
}

func (m *Manager) current() Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Get returns the active namespace's pair.
func (m *Manager) Get(ctx context.Context) (model.TokenPair, bool, error) {
	return m.current().Get(ctx)
}

// Set atomically replaces the pair in the active namespace.
func (m *Manager) Set(ctx context.Context, pair model.TokenPair) error {
	return m.current().Set(ctx, pair)
}

// GetUser returns the cached profile from the active namespace.
func (m *Manager) GetUser(ctx context.Context) (*model.UserProfile, error) {
	return m.current().GetUser(ctx)
}

// SetUser caches the profile in the active namespace.
func (m *Manager) SetUser(ctx context.Context, user model.UserProfile) error {
	return m.current().SetUser(ctx, user)
}

// ClearAll wipes both namespaces regardless of which is active. Used on
// session termination so no stale credentials survive anywhere.
func (m *Manager) ClearAll(ctx context.Context) error {
	var firstErr error
	if err := m.durable.Clear(ctx); err != nil {
		firstErr = err
	}
	if err := m.ephemeral.Clear(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
