package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

type capturingSink struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (c *capturingSink) Notify(_ context.Context, n model.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

func (c *capturingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

func sampleNotification(severity model.Severity) model.Notification {
	return model.Notification{
		ID:        "n-1",
		Severity:  severity,
		Message:   "Your session has expired. Please log in again.",
		Source:    "session",
		Timestamp: time.Now().UTC(),
	}
}

func TestMulti_FansOutToEverySink(t *testing.T) {
	a, b := &capturingSink{}, &capturingSink{}
	multi := NewMulti(a, b)

	multi.Notify(context.Background(), sampleNotification(model.SeverityError))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestBusNotifier_PublishesOnBus(t *testing.T) {
	bus := eventbus.New()
	got := make(chan model.Notification, 1)
	bus.Subscribe(model.Notification{}, func(ev interface{}) {
		if n, ok := ev.(model.Notification); ok {
			select {
			case got <- n:
			default:
			}
		}
	})

	NewBusNotifier(bus).Notify(context.Background(), sampleNotification(model.SeverityInfo))

	select {
	case n := <-got:
		assert.Equal(t, "n-1", n.ID)
		assert.Equal(t, model.SeverityInfo, n.Severity)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never reached the bus")
	}
}

func TestLogNotifier_BothSeverities(t *testing.T) {
	l := NewLogNotifier(zap.NewNop())
	l.Notify(context.Background(), sampleNotification(model.SeverityInfo))
	l.Notify(context.Background(), sampleNotification(model.SeverityError))

	// nil logger defaults to nop
	NewLogNotifier(nil).Notify(context.Background(), sampleNotification(model.SeverityInfo))
}
