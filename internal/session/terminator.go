package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/credentials"
	"github.com/studyforge/planner-adapter/internal/metrics"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// Notifier delivers one user-facing notification. The session layer calls it
// at most once per failure event.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Recorder persists session lifecycle events for the audit trail.
type Recorder interface {
	RecordSessionEvent(ctx context.Context, ev model.SessionEvent) error
}

// Terminator force-closes the session: it wipes credentials from every
// namespace, tells the user once why, and announces the transition to the
// rest of the process. It is armed by a successful login or hydration and
// fires at most once per armed session, no matter how many failures race
// into it.
type Terminator struct {
	logger   *zap.Logger
	creds    *credentials.Manager
	notifier Notifier
	recorder Recorder
	bus      *eventbus.EventBus

	mu    sync.Mutex
	armed bool
}

func NewTerminator(
	logger *zap.Logger,
	creds *credentials.Manager,
	notifier Notifier,
	recorder Recorder,
	bus *eventbus.EventBus,
) *Terminator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Terminator{
		logger:   logger,
		creds:    creds,
		notifier: notifier,
		recorder: recorder,
		bus:      bus,
	}
}

// Arm enables termination. Called after a successful login or after boot
// hydration finds a persisted session.
func (t *Terminator) Arm() {
	t.mu.Lock()
	t.armed = true
	t.mu.Unlock()
}

// Armed reports whether an authenticated session is live.
func (t *Terminator) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Terminate closes the session for the given reason. Only the first caller
// per armed session acts; later and concurrent callers are no-ops. Returns
// whether this call performed the termination.
func (t *Terminator) Terminate(ctx context.Context, reason model.TerminationReason) bool {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return false
	}
	t.armed = false
	t.mu.Unlock()

	user, _ := t.creds.GetUser(ctx)

	if err := t.creds.ClearAll(ctx); err != nil {
		// Keep going: the session is over even if a namespace wipe failed.
		t.logger.Error("session.terminate_clear_failed", zap.Error(err))
	}

	severity := model.SeverityError
	if reason == model.ReasonUserLogout {
		severity = model.SeverityInfo
	}
	if t.notifier != nil {
		t.notifier.Notify(ctx, model.Notification{
			ID:        uuid.NewString(),
			Severity:  severity,
			Message:   reason.Message(),
			Source:    "session",
			Timestamp: time.Now().UTC(),
		})
	}

	ev := model.SessionEvent{
		Type:      model.SessionTerminated,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if user != nil {
		ev.UserEmail = user.Email
	}
	if t.recorder != nil {
		if err := t.recorder.RecordSessionEvent(ctx, ev); err != nil {
			t.logger.Warn("session.terminate_audit_failed", zap.Error(err))
		}
	}
	if t.bus != nil {
		t.bus.PublishSync(ev)
	}

	metrics.IncTermination(string(reason))
	t.logger.Info("session.terminated", zap.String("reason", string(reason)))
	return true
}
