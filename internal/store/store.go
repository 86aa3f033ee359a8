package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// statsKey holds the latest study-stats snapshot.
const statsKey = "planner:stats:last"

// Store defines the contract for the session audit trail and cached study
// snapshots.
type Store interface {
	RecordSessionEvent(ctx context.Context, ev model.SessionEvent) error
	SessionEvents(ctx context.Context, limit int) ([]model.SessionEvent, error)
	CacheStats(ctx context.Context, stats model.StudyStats, ttl time.Duration) error
	CachedStats(ctx context.Context) (*model.StudyStats, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore keeps hot snapshots in Redis and the audit trail in Postgres.
// Postgres is optional: without it the audit writes become no-ops and only
// the read-back reports unavailability.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid builds the store on an existing Redis client (shared with the
// credential store) and an optional Postgres pool.
func NewHybrid(rdb *redis.Client, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordSessionEvent inserts an immutable lifecycle event into
// auth.session_event.
func (s *HybridStore) RecordSessionEvent(ctx context.Context, ev model.SessionEvent) error {
	if s.PG == nil {
		return nil
	}
	occurred := ev.Timestamp
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO auth.session_event (
			event_type, user_email, reason, remember, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5)
	`, string(ev.Type), ev.UserEmail, string(ev.Reason), ev.Remember, occurred)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed", zap.Error(err))
	}
	return err
}

// SessionEvents returns the most recent lifecycle events, newest first.
func (s *HybridStore) SessionEvents(ctx context.Context, limit int) ([]model.SessionEvent, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.PG.Query(ctx, `
		SELECT event_type, user_email, reason, remember, occurred_at
		FROM auth.session_event
		ORDER BY occurred_at DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.SessionEvent
	for rows.Next() {
		var (
			eventType string
			reason    string
			ev        model.SessionEvent
		)
		if err := rows.Scan(&eventType, &ev.UserEmail, &reason, &ev.Remember, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Type = model.SessionEventType(eventType)
		ev.Reason = model.TerminationReason(reason)
		results = append(results, ev)
	}
	return results, rows.Err()
}

// CacheStats stores the latest study-stats snapshot with a TTL so consumers
// never read an arbitrarily stale dashboard.
func (s *HybridStore) CacheStats(ctx context.Context, stats model.StudyStats, ttl time.Duration) error {
	return s.SetJSON(ctx, statsKey, stats, ttl)
}

// CachedStats returns the cached snapshot, or nil when none is cached.
func (s *HybridStore) CachedStats(ctx context.Context) (*model.StudyStats, error) {
	data, err := s.redis.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var stats model.StudyStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

// Close releases the Postgres pool. The Redis client is shared with the
// credential store and stays open; its owner closes it.
func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	return nil
}
