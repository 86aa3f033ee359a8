package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/planner"
	"github.com/studyforge/planner-adapter/internal/session"
	"github.com/studyforge/planner-adapter/pkg/model"
)

// PlannerService defines the session and read operations the handlers expose.
type PlannerService interface {
	Login(ctx context.Context, email, password string, remember bool) (model.SessionState, error)
	Register(ctx context.Context, email, password, fullName string) (model.UserProfile, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) model.SessionState
	Profile(ctx context.Context) (model.UserProfile, error)
	Stats(ctx context.Context) (model.StudyStats, error)
	StudyPlans(ctx context.Context) ([]model.StudyPlanSummary, error)
	QuizHistory(ctx context.Context) ([]model.QuizAttempt, error)
	Engagement(ctx context.Context) (*model.Engagement, error)
	RecordEngagement(ctx context.Context, req planner.EngagementRequest) (model.Engagement, error)
	SendChatMessage(ctx context.Context, req planner.ChatRequest) (model.ChatReply, error)
}

// StatsCache serves the last good aggregate snapshot when the platform is
// unreachable.
type StatsCache interface {
	CachedStats(ctx context.Context) (*model.StudyStats, error)
}

// AuditReader lists recorded session lifecycle events.
type AuditReader interface {
	SessionEvents(ctx context.Context, limit int) ([]model.SessionEvent, error)
}

// PlannerHandler handles HTTP API requests against the platform session.
type PlannerHandler struct {
	logger  *zap.Logger
	service PlannerService
	cache   StatsCache
	audit   AuditReader
}

// NewPlannerHandler creates a new PlannerHandler.
// cache and audit are optional — nil disables the stats fallback and the
// session event listing respectively.
func NewPlannerHandler(logger *zap.Logger, service PlannerService, cache StatsCache, audit AuditReader) *PlannerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlannerHandler{
		logger:  logger,
		service: service,
		cache:   cache,
		audit:   audit,
	}
}

// LoginHandler opens a session against the platform.
func (h *PlannerHandler) LoginHandler(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	state, err := h.service.Login(c.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		return h.upstreamError(c, "login", err)
	}
	return c.Status(fiber.StatusOK).JSON(state)
}

// RegisterHandler creates a platform account. The new user is not signed in;
// consumers follow up with a login call.
func (h *PlannerHandler) RegisterHandler(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := h.service.Register(c.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		return h.upstreamError(c, "register", err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// LogoutHandler ends the active session.
func (h *PlannerHandler) LogoutHandler(c *fiber.Ctx) error {
	if err := h.service.Logout(c.Context()); err != nil {
		return h.upstreamError(c, "logout", err)
	}
	return c.Status(fiber.StatusOK).JSON(StatusResponse{Status: "signed_out"})
}

// SessionHandler reports the current session state without touching the
// platform.
func (h *PlannerHandler) SessionHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.service.Session(c.Context()))
}

// ProfileHandler returns the authenticated user.
func (h *PlannerHandler) ProfileHandler(c *fiber.Ctx) error {
	user, err := h.service.Profile(c.Context())
	if err != nil {
		return h.upstreamError(c, "profile", err)
	}
	return c.Status(fiber.StatusOK).JSON(user)
}

// StatsHandler returns the study aggregates. When the platform is down the
// last cached snapshot is served instead; its as_of field carries the age.
func (h *PlannerHandler) StatsHandler(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err == nil {
		return c.Status(fiber.StatusOK).JSON(stats)
	}

	if h.cache != nil {
		if cached, cacheErr := h.cache.CachedStats(c.Context()); cacheErr == nil && cached != nil {
			h.logger.Warn("api.stats_served_from_cache", zap.Error(err))
			return c.Status(fiber.StatusOK).JSON(cached)
		}
	}
	return h.upstreamError(c, "stats", err)
}

// PlansHandler lists the user's study plans.
func (h *PlannerHandler) PlansHandler(c *fiber.Ctx) error {
	plans, err := h.service.StudyPlans(c.Context())
	if err != nil {
		return h.upstreamError(c, "plans", err)
	}
	return c.Status(fiber.StatusOK).JSON(plans)
}

// QuizHistoryHandler lists completed quiz attempts, newest first.
func (h *PlannerHandler) QuizHistoryHandler(c *fiber.Ctx) error {
	attempts, err := h.service.QuizHistory(c.Context())
	if err != nil {
		return h.upstreamError(c, "quiz_history", err)
	}
	return c.Status(fiber.StatusOK).JSON(attempts)
}

// EngagementHandler returns the latest recorded interaction, or null when
// there is none yet.
func (h *PlannerHandler) EngagementHandler(c *fiber.Ctx) error {
	latest, err := h.service.Engagement(c.Context())
	if err != nil {
		return h.upstreamError(c, "engagement", err)
	}
	return c.Status(fiber.StatusOK).JSON(latest)
}

// EngagementPingHandler records one content interaction.
func (h *PlannerHandler) EngagementPingHandler(c *fiber.Ctx) error {
	var req EngagementPingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rec, err := h.service.RecordEngagement(c.Context(), toEngagementRequest(req))
	if err != nil {
		return h.upstreamError(c, "engagement_ping", err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// ChatMessageHandler relays one message to the platform assistant. The call
// can run for minutes; the service layer carries the extended budget.
func (h *PlannerHandler) ChatMessageHandler(c *fiber.Ctx) error {
	var req ChatSendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reply, err := h.service.SendChatMessage(c.Context(), planner.ChatRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Context:   req.Context,
	})
	if err != nil {
		return h.upstreamError(c, "chat", err)
	}
	return c.Status(fiber.StatusOK).JSON(reply)
}

// SessionEventsHandler lists the recorded session lifecycle events.
func (h *PlannerHandler) SessionEventsHandler(c *fiber.Ctx) error {
	if h.audit == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "audit trail not configured"})
	}

	limit := c.QueryInt("limit", 50)
	events, err := h.audit.SessionEvents(c.Context(), limit)
	if err != nil {
		h.logger.Error("api.session_events_failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(events)
}

// upstreamError maps a failed platform call onto the response. Platform
// rejections keep their status and human-readable detail; a missing session
// is 401; anything else is a gateway failure.
func (h *PlannerHandler) upstreamError(c *fiber.Ctx, op string, err error) error {
	var httpErr *session.HTTPError
	if errors.As(err, &httpErr) {
		h.logger.Warn("api.upstream_rejection",
			zap.String("op", op),
			zap.Int("status", httpErr.Status))
		return c.Status(httpErr.Status).JSON(fiber.Map{"error": httpErr.Detail()})
	}

	if errors.Is(err, planner.ErrNoSession) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no active session"})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Error("api.upstream_timeout", zap.String("op", op), zap.Error(err))
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "platform request timed out"})
	}

	h.logger.Error("api.upstream_failure", zap.String("op", op), zap.Error(err))
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
}

// toEngagementRequest converts an API request to the platform wire shape.
func toEngagementRequest(req EngagementPingRequest) planner.EngagementRequest {
	return planner.EngagementRequest{
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		Action:      req.Action,
		Value:       req.Value,
		Comment:     req.Comment,
	}
}
