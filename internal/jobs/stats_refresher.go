package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// StatsSource is the slice of the planner client the refresher pulls from.
type StatsSource interface {
	Stats(ctx context.Context) (model.StudyStats, error)
}

// SessionGate reports whether a session is currently active.
type SessionGate interface {
	Armed() bool
}

// StatsCache persists the latest snapshot for dashboard reads.
type StatsCache interface {
	CacheStats(ctx context.Context, stats model.StudyStats, ttl time.Duration) error
}

// EventSink emits the refreshed snapshot to the event stream.
type EventSink interface {
	PublishStatsRefreshed(ctx context.Context, stats model.StudyStats) error
}

// StatsRefresher periodically pulls the study aggregates through the
// resilient client, caches the snapshot and emits a refresh event.
type StatsRefresher struct {
	logger   *zap.Logger
	source   StatsSource
	gate     SessionGate
	cache    StatsCache
	sink     EventSink
	interval time.Duration
	stopCh   chan struct{}
}

// NewStatsRefresher constructs a background job that runs periodically.
func NewStatsRefresher(logger *zap.Logger, source StatsSource, gate SessionGate, cache StatsCache, sink EventSink, interval time.Duration) *StatsRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsRefresher{
		logger:   logger,
		source:   source,
		gate:     gate,
		cache:    cache,
		sink:     sink,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the refresh loop (typically every 15 min).
func (r *StatsRefresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("stats_refresher.started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("stats_refresher.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("stats_refresher.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the refresher.
func (r *StatsRefresher) Stop() {
	close(r.stopCh)
}

// runOnce executes one refresh cycle. Cycles without an active session are
// skipped; a request here would fail on the missing credential anyway.
func (r *StatsRefresher) runOnce(ctx context.Context) {
	if !r.gate.Armed() {
		r.logger.Debug("stats_refresher.skipped_no_session")
		return
	}

	start := time.Now()
	r.logger.Debug("stats_refresher.running")

	stats, err := r.source.Stats(ctx)
	if err != nil {
		r.logger.Error("stats_refresher.fetch_failed", zap.Error(err))
		return
	}

	// The snapshot outlives one missed cycle.
	if err := r.cache.CacheStats(ctx, stats, 2*r.interval); err != nil {
		r.logger.Warn("stats_refresher.cache_failed", zap.Error(err))
	}

	if err := r.sink.PublishStatsRefreshed(ctx, stats); err != nil {
		r.logger.Warn("stats_refresher.publish_failed", zap.Error(err))
	}

	r.logger.Info("stats_refresher.success",
		zap.Int("streak_days", stats.StreakDays),
		zap.Duration("duration", time.Since(start)))
}
