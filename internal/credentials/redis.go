package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/model"
)

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	userKey         = "user"
)

// RedisStore is the durable credential namespace. Sessions stored here
// survive process restarts ("remember me").
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a credential store on an existing Redis client.
// All keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(field string) string {
	return s.prefix + ":" + field
}

// Get reads both tokens in a single MGET so the pair is a consistent snapshot.
func (s *RedisStore) Get(ctx context.Context) (model.TokenPair, bool, error) {
	vals, err := s.client.MGet(ctx, s.key(accessTokenKey), s.key(refreshTokenKey)).Result()
	if err != nil {
		return model.TokenPair{}, false, fmt.Errorf("credentials: read pair: %w", err)
	}

	var pair model.TokenPair
	if v, ok := vals[0].(string); ok {
		pair.AccessToken = v
	}
	if v, ok := vals[1].(string); ok {
		pair.RefreshToken = v
	}
	if pair.Empty() {
		return model.TokenPair{}, false, nil
	}
	return pair, true, nil
}

// Set writes both tokens in one transactional pipeline. MULTI/EXEC keeps the
// replace atomic for concurrent readers.
func (s *RedisStore) Set(ctx context.Context, pair model.TokenPair) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(accessTokenKey), pair.AccessToken, 0)
		pipe.Set(ctx, s.key(refreshTokenKey), pair.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("credentials: write pair: %w", err)
	}
	return nil
}

func (s *RedisStore) GetUser(ctx context.Context) (*model.UserProfile, error) {
	data, err := s.client.Get(ctx, s.key(userKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("credentials: read user: %w", err)
	}

	var user model.UserProfile
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("credentials: decode user: %w", err)
	}
	return &user, nil
}

func (s *RedisStore) SetUser(ctx context.Context, user model.UserProfile) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userKey), data, 0).Err(); err != nil {
		return fmt.Errorf("credentials: write user: %w", err)
	}
	return nil
}

// Clear removes tokens and cached profile in a single DEL.
func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.client.Del(ctx,
		s.key(accessTokenKey),
		s.key(refreshTokenKey),
		s.key(userKey),
	).Err()
	if err != nil {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}
