package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/studyforge/planner-adapter/internal/store"
)

func RegisterRoutes(app *fiber.App, nc *nats.Conn, st store.Store, h *PlannerHandler) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/v1")
	v1.Post("/login", h.LoginHandler)
	v1.Post("/register", h.RegisterHandler)
	v1.Post("/logout", h.LogoutHandler)
	v1.Get("/session", h.SessionHandler)
	v1.Get("/session/events", h.SessionEventsHandler)
	v1.Get("/profile", h.ProfileHandler)
	v1.Get("/stats", h.StatsHandler)
	v1.Get("/plans", h.PlansHandler)
	v1.Get("/quizzes/history", h.QuizHistoryHandler)
	v1.Get("/engagement/latest", h.EngagementHandler)
	v1.Post("/engagement/ping", h.EngagementPingHandler)
	v1.Post("/chat/message", h.ChatMessageHandler)
}
