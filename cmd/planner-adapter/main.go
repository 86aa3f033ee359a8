package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/internal/api"
	"github.com/studyforge/planner-adapter/internal/credentials"
	"github.com/studyforge/planner-adapter/internal/jobs"
	"github.com/studyforge/planner-adapter/internal/metrics"
	"github.com/studyforge/planner-adapter/internal/notify"
	"github.com/studyforge/planner-adapter/internal/planner"
	"github.com/studyforge/planner-adapter/internal/publisher"
	"github.com/studyforge/planner-adapter/internal/push"
	"github.com/studyforge/planner-adapter/internal/rate"
	intsecrets "github.com/studyforge/planner-adapter/internal/secrets"
	"github.com/studyforge/planner-adapter/internal/session"
	"github.com/studyforge/planner-adapter/internal/store"
	"github.com/studyforge/planner-adapter/pkg/config"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/logger"
	pkgsecrets "github.com/studyforge/planner-adapter/pkg/secrets"
	"github.com/studyforge/planner-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [planner-adapter]...")
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- Shared Redis client (credential store + cache) ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPass,
	})

	// --- Store (Redis cache + optional Postgres audit trail) ---
	st, err := store.NewHybrid(rdb, cfg.DatabaseURL, store.PGPoolConfig{}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Credential namespaces ---
	durable := credentials.NewRedisStore(rdb, cfg.RedisKeyPrefix, logg.Desugar())
	ephemeral := credentials.NewMemoryStore()
	creds := credentials.NewManager(durable, ephemeral, logg.Desugar())

	// --- In-process event bus ---
	bus := eventbus.New()

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher (session lifecycle events) ---
	pub, err := publisher.New(nc, cfg.SubjectPrefix, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}
	pub.Bridge(bus)

	// --- Notification sinks ---
	sinks := []notify.Notifier{
		notify.NewLogNotifier(logg.Desugar()),
		notify.NewBusNotifier(bus),
	}
	var amqpNotifier *notify.AMQPNotifier
	if cfg.RabbitURL != "" {
		amqpNotifier, err = notify.NewAMQPNotifier(cfg.RabbitURL, cfg.NotifyQueue, logg.Desugar())
		if err != nil {
			logg.Warnw("rabbitmq unavailable; notifications stay local", "error", err)
		} else {
			sinks = append(sinks, amqpNotifier)
		}
	}
	notifier := notify.NewMulti(sinks...)

	// --- Session layer ---
	term := session.NewTerminator(logg.Desugar(), creds, notifier, st, bus)
	coord := session.NewCoordinator(logg.Desugar(), creds, term, st, bus, cfg.PlannerBaseURL, cfg.RefreshTimeout)
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	})
	disp := session.NewDispatcher(logg.Desugar(), creds, coord, term, notifier, rateMgr,
		cfg.PlannerBaseURL, cfg.RequestTimeout, cfg.FatalServerErrors)

	// --- Planner client ---
	client := planner.NewClient(logg.Desugar(), disp, creds, term, bus, st)

	// --- Websocket push hub + ops server (metrics, /ws) ---
	hub := push.NewHub(logg.Desugar())
	hub.Bridge(bus)
	http.Handle("/ws", hub)
	metrics.StartServer(fmt.Sprintf(":%d", cfg.OpsPort))

	// --- Restore a persisted session, or sign the service account in ---
	restored := false
	if state, ok, err := client.RestoreSession(ctx); err != nil {
		logg.Warnw("session restore failed", "error", err)
	} else if ok {
		restored = true
		email := ""
		if state.User != nil {
			email = state.User.Email
		}
		logg.Infow("session restored", "user", email)
	}

	if cfg.AutoLogin && !restored {
		acctCache := pkgsecrets.NewCache[intsecrets.ServiceAccount](cfg.CacheTTL)
		go acctCache.StartCleaner(cfg.CleanupFreq, ctx.Done())
		autoLogin(ctx, cfg, client, acctCache, logg)
	}

	// --- Background stats refresher ---
	refresher := jobs.NewStatsRefresher(logg.Desugar(), client, term, st, pub, cfg.StatsRefreshInterval)
	go refresher.Start(ctx)

	// --- Fiber HTTP server ---
	app := fiber.New()
	handler := api.NewPlannerHandler(logg.Desugar(), client, st, st)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[planner-adapter] running",
		"planner", cfg.PlannerBaseURL,
		"nats", cfg.NATSURL,
		"env", cfg.Env)

	<-ctx.Done()
	logg.Info("shutting down [planner-adapter]...")

	refresher.Stop()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	pub.Close()
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if amqpNotifier != nil {
		if err := amqpNotifier.Close(); err != nil {
			logg.Warnw("amqp.close_failed", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
	if err := rdb.Close(); err != nil {
		logg.Warnw("redis.close_failed", "error", err)
	}
	logger.Sync()
}

// autoLogin signs the configured service account in. Credentials come from
// AWS Secrets Manager when reachable, with an environment fallback for local
// development.
func autoLogin(ctx context.Context, cfg *config.Config, client *planner.Client, cache *pkgsecrets.Cache[intsecrets.ServiceAccount], logg *zap.SugaredLogger) {
	var provider pkgsecrets.Provider = pkgsecrets.EnvProvider{}
	if awsProvider, err := pkgsecrets.NewAWSProvider(cfg.AWSRegion); err != nil {
		logg.Warnw("aws secrets manager unavailable, reading environment", "error", err)
	} else {
		provider = awsProvider
	}

	resolver := intsecrets.NewResolver(logg.Desugar(), cfg.SecretName, provider, cache)
	acct, err := resolver.Resolve(ctx)
	if err != nil {
		logg.Errorw("service account resolution failed", "error", err)
		return
	}

	if _, err := client.Login(ctx, acct.Email, acct.Password, cfg.RememberSession); err != nil {
		// A rejected login usually means the secret was rotated; drop the
		// cached copy so the next attempt refetches.
		resolver.Invalidate()
		logg.Errorw("auto login failed", "error", err)
		return
	}
	logg.Infow("service account signed in", "email", acct.Email)
}
