package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/credentials"
	"github.com/studyforge/planner-adapter/internal/session"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// Platform endpoints, relative to the configured base URL (which includes
// the /api prefix).
const (
	profilePath      = "/auth/profile"
	statsPath        = "/analytics/stats"
	plansPath        = "/study-plan/"
	quizHistoryPath  = "/quiz/history"
	chatMessagePath  = "/chat/message"
	engagementPath   = "/engagement/"
	engagementMePath = "/engagement/me"
)

// chatTimeout overrides the dispatcher budget for assistant calls, which can
// run for minutes while the platform generates an answer.
const chatTimeout = 5 * time.Minute

// ErrNoSession is returned by operations that need an authenticated session
// when none is active.
var ErrNoSession = errors.New("planner: no active session")

// Client is the typed interface to the Study Planner platform. All calls go
// through the session dispatcher, so credential attachment, renewal and
// replay are invisible here; this layer only shapes payloads.
type Client struct {
	logger *zap.Logger
	disp   *session.Dispatcher
	creds  *credentials.Manager
	term   *session.Terminator
	bus    *eventbus.EventBus
	audit  session.Recorder
}

func NewClient(
	logger *zap.Logger,
	disp *session.Dispatcher,
	creds *credentials.Manager,
	term *session.Terminator,
	bus *eventbus.EventBus,
	audit session.Recorder,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger: logger,
		disp:   disp,
		creds:  creds,
		term:   term,
		bus:    bus,
		audit:  audit,
	}
}

// Login authenticates against the platform and installs the session. The
// remember flag fixes the credential namespace for the session's lifetime:
// durable sessions survive a restart, ephemeral ones do not.
func (c *Client) Login(ctx context.Context, email, password string, remember bool) (model.SessionState, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return model.SessionState{}, fmt.Errorf("planner: encode login request: %w", err)
	}

	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "login",
		Method: http.MethodPost,
		Path:   session.LoginPath,
		Body:   body,
	})
	if err != nil {
		return model.SessionState{}, err
	}

	var tr tokenResponse
	if err := decodeBody(resp, &tr, "login"); err != nil {
		return model.SessionState{}, err
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return model.SessionState{}, fmt.Errorf("planner: login returned incomplete token pair")
	}

	// A fresh login supersedes whatever session existed before, in either
	// namespace. Wipe both before installing the new pair so exactly one
	// persisted session can exist at a time.
	if err := c.creds.ClearAll(ctx); err != nil {
		c.logger.Warn("planner.login_clear_failed", zap.Error(err))
	}
	c.creds.Activate(remember)
	if err := c.creds.Set(ctx, model.TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}); err != nil {
		return model.SessionState{}, fmt.Errorf("planner: store credentials: %w", err)
	}
	c.term.Arm()

	state := model.SessionState{Authenticated: true}
	// Best effort: a session without a cached profile is still a session.
	if profile, err := c.Profile(ctx); err != nil {
		c.logger.Warn("planner.login_profile_failed", zap.Error(err))
	} else {
		state.User = &profile
	}

	ev := model.SessionEvent{
		Type:      model.SessionStarted,
		UserEmail: email,
		Remember:  remember,
		Timestamp: time.Now().UTC(),
	}
	if c.audit != nil {
		if err := c.audit.RecordSessionEvent(ctx, ev); err != nil {
			c.logger.Warn("planner.login_audit_failed", zap.Error(err))
		}
	}
	if c.bus != nil {
		c.bus.Publish(ev)
	}

	c.logger.Info("planner.login_success",
		zap.String("email", email),
		zap.Bool("remember", remember))
	return state, nil
}

// Register creates a platform account. It does not log the new user in;
// callers follow up with Login.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (model.UserProfile, error) {
	body, err := json.Marshal(registerRequest{Email: email, Password: password, FullName: fullName})
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("planner: encode register request: %w", err)
	}

	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "register",
		Method: http.MethodPost,
		Path:   session.RegisterPath,
		Body:   body,
	})
	if err != nil {
		return model.UserProfile{}, err
	}

	var user model.UserProfile
	if err := decodeBody(resp, &user, "register"); err != nil {
		return model.UserProfile{}, err
	}
	c.logger.Info("planner.registered", zap.String("email", user.Email))
	return user, nil
}

// Profile fetches the authenticated user and refreshes the cached copy.
func (c *Client) Profile(ctx context.Context) (model.UserProfile, error) {
	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "profile",
		Method: http.MethodGet,
		Path:   profilePath,
	})
	if err != nil {
		return model.UserProfile{}, err
	}

	var user model.UserProfile
	if err := decodeBody(resp, &user, "profile"); err != nil {
		return model.UserProfile{}, err
	}
	if err := c.creds.SetUser(ctx, user); err != nil {
		c.logger.Warn("planner.profile_cache_failed", zap.Error(err))
	}
	return user, nil
}

// Stats fetches the dashboard aggregates. AsOf is stamped here; the platform
// payload has no timestamp of its own.
func (c *Client) Stats(ctx context.Context) (model.StudyStats, error) {
	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "stats",
		Method: http.MethodGet,
		Path:   statsPath,
	})
	if err != nil {
		return model.StudyStats{}, err
	}

	var sr statsResponse
	if err := decodeBody(resp, &sr, "stats"); err != nil {
		return model.StudyStats{}, err
	}
	return model.StudyStats{
		StreakDays:      sr.StreakDays,
		HoursStudied:    sr.HoursStudied,
		TopicsCompleted: sr.TopicsCompleted,
		TopicsTotal:     sr.TopicsTotal,
		QuizAverage:     sr.QuizAverage,
		AsOf:            time.Now().UTC(),
	}, nil
}

// StudyPlans lists the user's plans with chapter counts.
func (c *Client) StudyPlans(ctx context.Context) ([]model.StudyPlanSummary, error) {
	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "plans",
		Method: http.MethodGet,
		Path:   plansPath,
	})
	if err != nil {
		return nil, err
	}

	var plans []studyPlanResponse
	if err := decodeBody(resp, &plans, "plans"); err != nil {
		return nil, err
	}
	out := make([]model.StudyPlanSummary, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.toModel())
	}
	return out, nil
}

// QuizHistory lists the user's completed quiz attempts, newest first.
func (c *Client) QuizHistory(ctx context.Context) ([]model.QuizAttempt, error) {
	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "quiz_history",
		Method: http.MethodGet,
		Path:   quizHistoryPath,
	})
	if err != nil {
		return nil, err
	}

	var entries []quizHistoryEntry
	if err := decodeBody(resp, &entries, "quiz_history"); err != nil {
		return nil, err
	}
	out := make([]model.QuizAttempt, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toModel())
	}
	return out, nil
}

// Engagement returns the user's latest recorded interaction, or nil when
// there is none yet.
func (c *Client) Engagement(ctx context.Context) (*model.Engagement, error) {
	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "engagement",
		Method: http.MethodGet,
		Path:   engagementMePath,
	})
	if err != nil {
		return nil, err
	}

	var er *engagementResponse
	if err := decodeBody(resp, &er, "engagement"); err != nil {
		return nil, err
	}
	if er == nil {
		return nil, nil
	}
	out := er.toModel()
	return &out, nil
}

// RecordEngagement reports one content interaction to the platform.
func (c *Client) RecordEngagement(ctx context.Context, req EngagementRequest) (model.Engagement, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.Engagement{}, fmt.Errorf("planner: encode engagement request: %w", err)
	}

	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:     "engagement_record",
		Method: http.MethodPost,
		Path:   engagementPath,
		Body:   body,
	})
	if err != nil {
		return model.Engagement{}, err
	}

	var er engagementResponse
	if err := decodeBody(resp, &er, "engagement_record"); err != nil {
		return model.Engagement{}, err
	}
	return er.toModel(), nil
}

// SendChatMessage relays one message to the platform assistant. Generation
// can take minutes, so the call runs on its own extended budget.
func (c *Client) SendChatMessage(ctx context.Context, req ChatRequest) (model.ChatReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.ChatReply{}, fmt.Errorf("planner: encode chat request: %w", err)
	}

	resp, err := c.disp.Do(ctx, session.Descriptor{
		Op:      "chat",
		Method:  http.MethodPost,
		Path:    chatMessagePath,
		Body:    body,
		Timeout: chatTimeout,
	})
	if err != nil {
		return model.ChatReply{}, err
	}

	var cr chatResponse
	if err := decodeBody(resp, &cr, "chat"); err != nil {
		return model.ChatReply{}, err
	}
	return model.ChatReply{
		SessionID: cr.SessionID,
		Message:   cr.Message,
		Sources:   cr.Sources,
	}, nil
}

// Logout ends the session locally. The platform keeps no session state worth
// revoking; clearing credentials and announcing the transition is the whole
// operation.
func (c *Client) Logout(ctx context.Context) error {
	if !c.term.Armed() {
		return ErrNoSession
	}
	c.term.Terminate(ctx, model.ReasonUserLogout)
	return nil
}

// Session reports the current session state without touching the network.
func (c *Client) Session(ctx context.Context) model.SessionState {
	state := model.SessionState{Authenticated: c.term.Armed()}
	if !state.Authenticated {
		return state
	}
	if user, err := c.creds.GetUser(ctx); err == nil {
		state.User = user
	}
	return state
}

// RestoreSession re-installs a persisted session at boot. Returns false when
// no durable session exists. The cached profile is refreshed best effort; a
// stale access token in the restored pair heals itself on the first call.
func (c *Client) RestoreSession(ctx context.Context) (model.SessionState, bool, error) {
	_, ok, err := c.creds.Hydrate(ctx)
	if err != nil {
		return model.SessionState{}, false, fmt.Errorf("planner: hydrate session: %w", err)
	}
	if !ok {
		return model.SessionState{}, false, nil
	}
	c.term.Arm()

	state := model.SessionState{Authenticated: true}
	if profile, err := c.Profile(ctx); err != nil {
		c.logger.Warn("planner.restore_profile_failed", zap.Error(err))
		// Termination during the profile call means the restored pair was
		// beyond saving; report that honestly.
		if !c.term.Armed() {
			return model.SessionState{}, false, nil
		}
	} else {
		state.User = &profile
	}

	c.logger.Info("planner.session_restored")
	return state, true, nil
}

// decodeBody unmarshals a successful response payload.
func decodeBody(resp *session.Response, v any, op string) error {
	if len(resp.Body) == 0 {
		return fmt.Errorf("planner: %s returned empty body", op)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("planner: decode %s response: %w", op, err)
	}
	return nil
}
