package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgsecrets "github.com/studyforge/planner-adapter/pkg/secrets"
)

// ServiceAccount is the platform login used for unattended operation. The
// adapter signs in with it at boot when AUTO_LOGIN is enabled.
type ServiceAccount struct {
	Email    string
	Password string
}

// Resolver fetches the service-account credentials from a secrets backend,
// caching the result locally so routine re-logins do not hammer the backend.
type Resolver struct {
	logger   *zap.Logger
	name     string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[ServiceAccount]
}

// NewResolver constructs a resolver for the named secret, e.g.
// "planner/service-account".
func NewResolver(
	logger *zap.Logger,
	name string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[ServiceAccount],
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger:   logger,
		name:     name,
		provider: provider,
		cache:    cache,
	}
}

// Resolve fetches or returns the cached service account. The secret must be
// a JSON map carrying email and password.
func (r *Resolver) Resolve(ctx context.Context) (ServiceAccount, error) {
	if acct, ok := r.cache.Get(r.name); ok {
		return acct, nil
	}

	secretMap, err := r.provider.GetSecret(ctx, r.name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("name", r.name),
			zap.Error(err))
		return ServiceAccount{}, fmt.Errorf("resolve service account %q: %w", r.name, err)
	}

	acct, err := parseServiceAccount(secretMap)
	if err != nil {
		return ServiceAccount{}, fmt.Errorf("parse secret %q: %w", r.name, err)
	}

	r.cache.Put(r.name, acct)
	r.logger.Info("secrets.service_account_resolved", zap.String("name", r.name))
	return acct, nil
}

// Invalidate drops the cached account so the next Resolve refetches. Called
// after a login rejection, which usually means the secret was rotated.
func (r *Resolver) Invalidate() {
	r.cache.Bust(r.name)
	r.logger.Info("secrets.cache_busted", zap.String("name", r.name))
}

func parseServiceAccount(m map[string]string) (ServiceAccount, error) {
	acct := ServiceAccount{
		Email:    m["email"],
		Password: m["password"],
	}
	if acct.Email == "" {
		return ServiceAccount{}, fmt.Errorf("missing required field email")
	}
	if acct.Password == "" {
		return ServiceAccount{}, fmt.Errorf("missing required field password")
	}
	return acct, nil
}
