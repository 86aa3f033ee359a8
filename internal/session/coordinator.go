package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/credentials"
	"github.com/studyforge/planner-adapter/internal/metrics"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// refreshOp is one renewal cycle. Followers block on done and then read err;
// err is written before done closes.
type refreshOp struct {
	done chan struct{}
	err  error
}

// Coordinator serialises token renewal. Any number of concurrent triggers
// collapse into a single network call whose outcome every waiter shares; a
// new cycle can only start after the previous one fully resolved.
type Coordinator struct {
	logger   *zap.Logger
	creds    *credentials.Manager
	term     *Terminator
	recorder Recorder
	bus      *eventbus.EventBus
	client   *http.Client
	baseURL  string
	timeout  time.Duration

	mu       sync.Mutex
	inflight *refreshOp
}

// NewCoordinator creates the renewal coordinator. The renewal call runs on
// its own short budget, detached from whichever request triggered it, so a
// canceled caller never aborts a renewal other callers are waiting on.
func NewCoordinator(
	logger *zap.Logger,
	creds *credentials.Manager,
	term *Terminator,
	recorder Recorder,
	bus *eventbus.EventBus,
	baseURL string,
	timeout time.Duration,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		logger:   logger,
		creds:    creds,
		term:     term,
		recorder: recorder,
		bus:      bus,
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		timeout:  timeout,
	}
}

// Refresh renews the credential pair, or joins the renewal already in
// flight. On success the new pair is durably stored before any waiter is
// released, so a released caller always reads fresh credentials. On failure
// the session has already been terminated by the time this returns.
//
// ctx only bounds how long this caller waits; it does not bound the renewal
// itself.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if op := c.inflight; op != nil {
		c.mu.Unlock()
		metrics.IncRefreshJoined()
		c.logger.Debug("session.refresh_joined")
		select {
		case <-op.done:
			return op.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	op := &refreshOp{done: make(chan struct{})}
	c.inflight = op
	c.mu.Unlock()

	op.err = c.renew()

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(op.done)

	return op.err
}

// renew performs exactly one renewal network call per cycle.
func (c *Coordinator) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	pair, ok, err := c.creds.Get(ctx)
	if err != nil {
		c.fail(ctx, model.ReasonRefreshUnavailable)
		return fmt.Errorf("session: read credentials: %w", err)
	}
	if !ok || pair.RefreshToken == "" {
		// Nothing to renew with; skip the network entirely.
		c.logger.Warn("session.refresh_no_token")
		c.fail(ctx, model.ReasonNoRefreshToken)
		return ErrNoRefreshToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, nil)
	if err != nil {
		c.fail(ctx, model.ReasonRefreshUnavailable)
		return fmt.Errorf("session: build renewal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("session.refresh_unreachable", zap.Error(err))
		c.fail(ctx, model.ReasonRefreshUnavailable)
		return fmt.Errorf("session: renewal call: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)
	metrics.IncPlannerRequest("refresh", http.MethodPost, resp.StatusCode)
	metrics.ObserveDuration(metrics.PlannerRequestDuration, start, "refresh", http.MethodPost)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("session.refresh_rejected",
			zap.Int("status", resp.StatusCode))
		c.fail(ctx, refreshFailureReason(resp.StatusCode))
		return &HTTPError{Op: "refresh", Status: resp.StatusCode, Body: body}
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		c.fail(ctx, model.ReasonRefreshUnavailable)
		return fmt.Errorf("session: decode renewal response: %w", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		c.fail(ctx, model.ReasonRefreshUnavailable)
		return fmt.Errorf("session: renewal returned incomplete pair")
	}

	// The pair must be durably replaced before any waiter is released;
	// replays read the store, not this cycle's local state.
	if err := c.creds.Set(ctx, model.TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}); err != nil {
		c.fail(ctx, model.ReasonRefreshUnavailable)
		return fmt.Errorf("session: store renewed pair: %w", err)
	}

	metrics.IncRefresh("success")
	c.logger.Info("session.refresh_success",
		zap.Duration("elapsed", time.Since(start)))

	ev := model.SessionEvent{
		Type:      model.SessionRefreshed,
		Timestamp: time.Now().UTC(),
	}
	if user, err := c.creds.GetUser(ctx); err == nil && user != nil {
		ev.UserEmail = user.Email
	}
	if c.recorder != nil {
		if err := c.recorder.RecordSessionEvent(ctx, ev); err != nil {
			c.logger.Warn("session.refresh_audit_failed", zap.Error(err))
		}
	}
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	return nil
}

// fail ends the session after a renewal could not produce a new pair. The
// terminator handles everything downstream of the decision: store wipe,
// the single notification, audit and broadcast.
func (c *Coordinator) fail(ctx context.Context, reason model.TerminationReason) {
	metrics.IncRefresh("failure")
	c.term.Terminate(ctx, reason)
}

// refreshFailureReason distinguishes a rejected refresh token from a renewal
// endpoint that could not answer.
func refreshFailureReason(status int) model.TerminationReason {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return model.ReasonRefreshRejected
	}
	return model.ReasonRefreshUnavailable
}
