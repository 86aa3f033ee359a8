package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider defines a generic secrets manager interface.
// Concrete implementations (AWS, env, etc.) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns a key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}

// EnvProvider resolves secrets from environment variables, for local
// development without AWS access. A secret named "planner/service-account"
// maps to variables prefixed PLANNER_SERVICE_ACCOUNT_ (e.g.
// PLANNER_SERVICE_ACCOUNT_EMAIL, PLANNER_SERVICE_ACCOUNT_PASSWORD).
type EnvProvider struct{}

// GetSecret builds a key-value map from the environment.
func (EnvProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	prefix := envPrefix(key)
	result := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		field := strings.ToLower(strings.TrimPrefix(name, prefix))
		result[field] = value
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no environment variables with prefix %s", prefix)
	}
	return result, nil
}

// envPrefix maps a secret path to an env var prefix:
// "planner/service-account" -> "PLANNER_SERVICE_ACCOUNT_".
func envPrefix(key string) string {
	mapped := strings.NewReplacer("/", "_", "-", "_").Replace(key)
	return strings.ToUpper(mapped) + "_"
}
