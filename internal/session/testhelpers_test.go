package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/credentials"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// writeJSON encodes v as JSON into w.
func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic("test helper writeJSON: " + err.Error())
	}
}

// capturingNotifier records every notification the session layer emits.
type capturingNotifier struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (n *capturingNotifier) Notify(_ context.Context, note model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

func (n *capturingNotifier) last() model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notes) == 0 {
		return model.Notification{}
	}
	return n.notes[len(n.notes)-1]
}

// capturingRecorder records session audit events in memory.
type capturingRecorder struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (r *capturingRecorder) RecordSessionEvent(_ context.Context, ev model.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *capturingRecorder) byType(t model.SessionEventType) []model.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SessionEvent
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fixture is the session layer wired against a fake platform, with an armed
// terminator and a remembered credential namespace backed by miniredis.
type fixture struct {
	creds *credentials.Manager
	term  *Terminator
	coord *Coordinator
	disp  *Dispatcher
	notes *capturingNotifier
	audit *capturingRecorder
	bus   *eventbus.EventBus
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T, baseURL string, fatal5xx bool) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	durable := credentials.NewRedisStore(rdb, "planner:session", zap.NewNop())
	creds := credentials.NewManager(durable, credentials.NewMemoryStore(), zap.NewNop())
	creds.Activate(true)

	notes := &capturingNotifier{}
	audit := &capturingRecorder{}
	bus := eventbus.New()

	term := NewTerminator(zap.NewNop(), creds, notes, audit, bus)
	term.Arm()

	coord := NewCoordinator(zap.NewNop(), creds, term, audit, bus, baseURL, 5*time.Second)
	disp := NewDispatcher(zap.NewNop(), creds, coord, term, notes, nil, baseURL, 10*time.Second, fatal5xx)

	return &fixture{
		creds: creds,
		term:  term,
		coord: coord,
		disp:  disp,
		notes: notes,
		audit: audit,
		bus:   bus,
		mr:    mr,
	}
}

// seedPair stores a known credential pair in the active namespace.
func (f *fixture) seedPair(t *testing.T) model.TokenPair {
	t.Helper()
	pair := model.TokenPair{
		AccessToken:  "stale-access-token",
		RefreshToken: "valid-refresh-token",
	}
	require.NoError(t, f.creds.Set(context.Background(), pair))
	return pair
}

// getDescriptor is a plain authenticated GET used by most dispatcher tests.
func getDescriptor(path string) Descriptor {
	return Descriptor{Op: "test", Method: http.MethodGet, Path: path}
}
