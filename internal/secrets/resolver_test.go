package secrets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgsecrets "github.com/studyforge/planner-adapter/pkg/secrets"
)

// --- Mock Provider ---

type mockProvider struct {
	secrets map[string]map[string]string
	err     error
	calls   int
}

func (m *mockProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.secrets[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("secret not found: %s", key)
}

const secretName = "planner/service-account"

func newCache(ttl time.Duration) *pkgsecrets.Cache[ServiceAccount] {
	return pkgsecrets.NewCache[ServiceAccount](ttl)
}

// --- Tests ---

func TestResolver_Resolve_CacheHit(t *testing.T) {
	cache := newCache(5 * time.Minute)
	cache.Put(secretName, ServiceAccount{
		Email:    "cached@studyforge.io",
		Password: "cached-pw",
	})

	mock := &mockProvider{}
	r := NewResolver(zap.NewNop(), secretName, mock, cache)

	acct, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "cached@studyforge.io", acct.Email)
	assert.Equal(t, 0, mock.calls, "should not call provider on cache hit")
}

func TestResolver_Resolve_CacheMiss_FetchFromProvider(t *testing.T) {
	cache := newCache(5 * time.Minute)
	mock := &mockProvider{
		secrets: map[string]map[string]string{
			secretName: {
				"email":    "svc@studyforge.io",
				"password": "pw-123",
			},
		},
	}
	r := NewResolver(zap.NewNop(), secretName, mock, cache)

	acct, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "svc@studyforge.io", acct.Email)
	assert.Equal(t, "pw-123", acct.Password)
	assert.Equal(t, 1, mock.calls)

	// Second call should hit cache — no additional provider call
	acct2, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "svc@studyforge.io", acct2.Email)
	assert.Equal(t, 1, mock.calls, "should not call provider again on cache hit")
}

func TestResolver_Resolve_ProviderError(t *testing.T) {
	mock := &mockProvider{err: fmt.Errorf("aws: access denied")}
	r := NewResolver(zap.NewNop(), secretName, mock, newCache(5*time.Minute))

	_, err := r.Resolve(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestResolver_Resolve_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		secret  map[string]string
		errText string
	}{
		{
			name:    "missing email",
			secret:  map[string]string{"password": "pw"},
			errText: "email",
		},
		{
			name:    "missing password",
			secret:  map[string]string{"email": "svc@studyforge.io"},
			errText: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockProvider{
				secrets: map[string]map[string]string{secretName: tt.secret},
			}
			r := NewResolver(zap.NewNop(), secretName, mock, newCache(5*time.Minute))

			_, err := r.Resolve(context.Background())
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestResolver_Resolve_CacheExpiration(t *testing.T) {
	cache := newCache(10 * time.Millisecond) // very short TTL
	mock := &mockProvider{
		secrets: map[string]map[string]string{
			secretName: {"email": "svc@studyforge.io", "password": "pw-123"},
		},
	}
	r := NewResolver(zap.NewNop(), secretName, mock, cache)

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls)

	time.Sleep(20 * time.Millisecond)

	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, mock.calls, "should call provider again after cache expiry")
}

func TestResolver_Invalidate(t *testing.T) {
	cache := newCache(5 * time.Minute)
	mock := &mockProvider{
		secrets: map[string]map[string]string{
			secretName: {"email": "svc@studyforge.io", "password": "pw-123"},
		},
	}
	r := NewResolver(zap.NewNop(), secretName, mock, cache)

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls)

	// A rotated secret invalidates the cache; the next resolve refetches.
	r.Invalidate()
	mock.secrets[secretName]["password"] = "pw-rotated"

	acct, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pw-rotated", acct.Password)
	assert.Equal(t, 2, mock.calls)
}
