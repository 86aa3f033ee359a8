package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/credentials"
	"github.com/studyforge/planner-adapter/internal/metrics"
	"github.com/studyforge/planner-adapter/internal/rate"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// maxReplays bounds how many times a failed request may be re-sent after a
// successful renewal. The classifier enforces the same bound; this constant
// only names it.
const maxReplays = 1

// Response is the decoded-enough result of a dispatched request. Callers
// unmarshal Body themselves; the dispatcher never interprets success payloads.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Dispatcher sends platform requests with the session credential attached and
// recovers transparently from an expired access token: classify the failure,
// renew through the coordinator, replay the original request once. Every call
// resolves with a response or an error, exactly once.
type Dispatcher struct {
	logger   *zap.Logger
	creds    *credentials.Manager
	coord    *Coordinator
	term     *Terminator
	notifier Notifier
	rateMgr  *rate.Manager
	client   *http.Client
	baseURL  string
	timeout  time.Duration
	fatal5xx bool
}

// NewDispatcher wires the request pipeline. timeout is the general per-request
// budget; descriptors may override it (chat generation runs for minutes, so
// the default is generous). fatal5xx selects whether upstream 5xx and
// transport failures end the session or only surface a notification.
func NewDispatcher(
	logger *zap.Logger,
	creds *credentials.Manager,
	coord *Coordinator,
	term *Terminator,
	notifier Notifier,
	rateMgr *rate.Manager,
	baseURL string,
	timeout time.Duration,
	fatal5xx bool,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Dispatcher{
		logger:   logger,
		creds:    creds,
		coord:    coord,
		term:     term,
		notifier: notifier,
		rateMgr:  rateMgr,
		client:   &http.Client{},
		baseURL:  baseURL,
		timeout:  timeout,
		fatal5xx: fatal5xx,
	}
}

// Do sends the descriptor and returns the first successful response. A 401 on
// the first attempt triggers one renewal and one replay; the replay reads the
// credential store again, so it always carries the post-renewal token.
func (dp *Dispatcher) Do(ctx context.Context, d Descriptor) (*Response, error) {
	if dp.rateMgr != nil {
		if err := dp.rateMgr.Wait(ctx, d.Op); err != nil {
			return nil, fmt.Errorf("session: rate limit wait: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		resp, err := dp.send(ctx, d, attempt)
		if err != nil {
			return nil, dp.transportFailure(ctx, d, err)
		}

		if resp.Status >= 200 && resp.Status < 300 {
			if attempt > 0 {
				dp.logger.Info("dispatch.replay_recovered",
					zap.String("op", d.Op),
					zap.String("path", d.Path))
			}
			return resp, nil
		}

		httpErr := &HTTPError{Op: d.Op, Status: resp.Status, Body: resp.Body}

		switch verdict := Classify(d, resp.Status, attempt); verdict {
		case VerdictRetryableAuth:
			dp.logger.Info("dispatch.auth_expired",
				zap.String("op", d.Op),
				zap.String("path", d.Path))
			if err := dp.coord.Refresh(ctx); err != nil {
				// The coordinator already terminated the session and
				// notified; the caller gets its own call's failure.
				return nil, httpErr
			}
			if attempt < maxReplays {
				continue
			}
			return nil, httpErr

		case VerdictAlreadyRetried:
			dp.logger.Warn("dispatch.replay_rejected",
				zap.String("op", d.Op),
				zap.String("path", d.Path))
			dp.term.Terminate(ctx, model.ReasonRepeatedAuthFail)
			return nil, httpErr

		case VerdictRefreshEndpointFailure:
			dp.logger.Warn("dispatch.refresh_endpoint_failed",
				zap.String("op", d.Op),
				zap.Int("status", resp.Status))
			dp.term.Terminate(ctx, refreshFailureReason(resp.Status))
			return nil, httpErr

		default:
			return nil, dp.plainFailure(ctx, d, httpErr)
		}
	}
}

// send performs one network attempt. The body is rebuilt from the descriptor
// each time so a replay re-sends it byte for byte.
func (dp *Dispatcher) send(ctx context.Context, d Descriptor, attempt int) (*Response, error) {
	budget := dp.timeout
	if d.Timeout > 0 {
		budget = d.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(reqCtx, d.Method, dp.baseURL+d.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if len(d.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if err := dp.attachCredential(reqCtx, d, req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := dp.client.Do(req)
	if err != nil {
		dp.logger.Warn("dispatch.transport_failed",
			zap.String("op", d.Op),
			zap.String("path", d.Path),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return nil, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	metrics.IncPlannerRequest(d.Op, d.Method, resp.StatusCode)
	metrics.ObserveDuration(metrics.PlannerRequestDuration, start, d.Op, d.Method)

	dp.logger.Debug("dispatch.response",
		zap.String("op", d.Op),
		zap.String("path", d.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int("attempt", attempt),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// attachCredential injects the bearer access token. Renewal requests carry
// the refresh token, set by the coordinator itself, and descriptors with an
// explicit Authorization header keep it.
func (dp *Dispatcher) attachCredential(ctx context.Context, d Descriptor, req *http.Request) error {
	if d.IsRefresh() || req.Header.Get("Authorization") != "" {
		return nil
	}
	pair, ok, err := dp.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	if ok && pair.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	return nil
}

// transportFailure resolves a request the upstream never answered. Under the
// strict policy an unreachable platform ends the session; otherwise the
// caller is told once and the session stays alive.
func (dp *Dispatcher) transportFailure(ctx context.Context, d Descriptor, err error) error {
	wrapped := fmt.Errorf("session: %s call: %w", d.Op, err)
	if dp.fatal5xx {
		dp.term.Terminate(ctx, model.ReasonServerError)
		return wrapped
	}
	dp.notify(ctx, d, genericFailureMessage)
	return wrapped
}

// plainFailure resolves a non-auth upstream error: 5xx follows the session
// policy, everything else surfaces the platform's own wording once.
func (dp *Dispatcher) plainFailure(ctx context.Context, d Descriptor, httpErr *HTTPError) error {
	if httpErr.Status >= 500 {
		dp.logger.Warn("dispatch.server_error",
			zap.String("op", d.Op),
			zap.Int("status", httpErr.Status))
		if dp.fatal5xx {
			dp.term.Terminate(ctx, model.ReasonServerError)
			return httpErr
		}
		dp.notify(ctx, d, genericFailureMessage)
		return httpErr
	}

	dp.logger.Info("dispatch.rejected",
		zap.String("op", d.Op),
		zap.Int("status", httpErr.Status),
		zap.String("detail", httpErr.Detail()))
	dp.notify(ctx, d, httpErr.Detail())
	return httpErr
}

func (dp *Dispatcher) notify(ctx context.Context, d Descriptor, message string) {
	if dp.notifier == nil {
		return
	}
	dp.notifier.Notify(ctx, model.Notification{
		ID:        uuid.NewString(),
		Severity:  model.SeverityError,
		Message:   message,
		Source:    d.Op,
		Timestamp: time.Now().UTC(),
	})
}
