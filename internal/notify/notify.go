// Package notify delivers user-facing notifications emitted by the session
// layer. Delivery is fan-out: the log always gets one, the in-process bus
// feeds the websocket stream, and AMQP carries them to external consumers
// when configured. At-most-once-per-failure is the caller's guarantee, not
// this package's.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/metrics"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// Notifier delivers one notification to one sink.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n model.Notification) {
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("severity", string(n.Severity)),
		zap.String("message", n.Message),
		zap.String("source", n.Source),
	}
	if n.Severity == model.SeverityError {
		l.logger.Warn("notify.user", fields...)
		return
	}
	l.logger.Info("notify.user", fields...)
}

// BusNotifier republishes notifications on the in-process bus so outbound
// surfaces (the push hub) can pick them up.
type BusNotifier struct {
	bus *eventbus.EventBus
}

func NewBusNotifier(bus *eventbus.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (b *BusNotifier) Notify(_ context.Context, n model.Notification) {
	b.bus.Publish(n)
}

// Multi fans one notification out to every sink and counts it once.
type Multi struct {
	sinks []Notifier
}

func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, n model.Notification) {
	metrics.IncNotification(string(n.Severity))
	for _, s := range m.sinks {
		s.Notify(ctx, n)
	}
}
