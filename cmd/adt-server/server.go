package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/adt/internal/config"
	"github.com/ehr/adt/internal/domain/adt"
	"github.com/ehr/adt/internal/domain/assignment"
	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/domain/identity"
	"github.com/ehr/adt/internal/platform/db"
	"github.com/ehr/adt/internal/platform/events"
	"github.com/ehr/adt/internal/platform/hl7v2"
	"github.com/ehr/adt/internal/platform/middleware"
	"github.com/ehr/adt/internal/platform/telemetry"
	"github.com/ehr/adt/internal/platform/websocket"
)

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// buildPublisher fans events out to the log, to extra (the websocket hub when
// enabled) and to every configured destination. The returned closer releases
// the Redis client, if any.
func buildPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger, extra ...events.Publisher) (*events.MultiPublisher, func(), error) {
	pubs := append([]events.Publisher{events.NewLogPublisher(logger)}, extra...)
	closer := func() {}

	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closer = func() { _ = client.Close() }
		pubs = append(pubs, events.NewRedisStreamPublisher(client, cfg.EventStream, cfg.EventStreamMaxLen))
		logger.Info().Str("stream", cfg.EventStream).Msg("publishing events to redis stream")
	}
	if cfg.WebhookURL != "" {
		pubs = append(pubs, events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret))
		logger.Info().Str("url", cfg.WebhookURL).Msg("publishing events to webhook")
	}
	return events.NewMultiPublisher(pubs...), closer, nil
}

type services struct {
	registry  *bed.Registry
	encounter *encounter.Manager
	resolver  *identity.Resolver
	orch      *adt.Orchestrator
}

// newServices wires repositories, data components and the orchestrator.
// metrics and pub may be nil. When an MLLP address is configured the HL7
// feed is added to pub.
func newServices(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics, pub *events.MultiPublisher) *services {
	registry := bed.NewRegistry(bed.NewRepo(pool))
	ledger := assignment.NewLedger(assignment.NewRepo(pool))
	encMgr := encounter.NewManager(encounter.NewRepo(pool))
	resolver := identity.NewResolver(identity.NewPatientRepo(pool), identity.NewPractitionerRepo(pool))

	deps := adt.Deps{
		Tx:         db.NewTxRunner(pool, cfg.LockTimeout),
		Beds:       registry,
		Ledger:     ledger,
		Encounters: encMgr,
		Identity:   resolver,
		Logger:     logger,
	}
	if metrics != nil {
		deps.Observer = metrics
	}
	if pub != nil {
		if cfg.HL7MLLPAddr != "" {
			pub.Add(adt.NewHL7Feed(hl7v2.NewSender(cfg.HL7MLLPAddr, cfg.HL7Timeout), hl7v2.Header{
				SendingApp:        cfg.HL7SendingApp,
				SendingFacility:   cfg.HL7SendingFacility,
				ReceivingApp:      cfg.HL7ReceivingApp,
				ReceivingFacility: cfg.HL7ReceivingFacility,
			}, deps))
			logger.Info().Str("addr", cfg.HL7MLLPAddr).Msg("sending HL7 ADT messages over MLLP")
		}
		deps.Publisher = pub
	}
	return &services{
		registry:  registry,
		encounter: encMgr,
		resolver:  resolver,
		orch:      adt.New(deps),
	}
}

// newEcho builds the HTTP server. hub may be nil.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, svc *services, metrics *telemetry.Metrics, hub *websocket.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader, db.TenantHeader, adt.ActorHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.PoolHealthHandler(pool))
	if metrics != nil {
		e.GET("/metrics", metrics.Handler())
	}

	if hub != nil {
		websocket.NewHandler(hub, cfg.DefaultTenant, cfg.CORSOrigins).RegisterRoutes(e)
	}

	api := e.Group("/api/v1", db.TenantMiddleware(pool, cfg.DefaultTenant))
	adt.NewHandler(svc.orch, cfg.LockTimeout).RegisterRoutes(api)
	bed.NewHandler(svc.registry).RegisterRoutes(api)
	encounter.NewHandler(svc.encounter).RegisterRoutes(api)
	identity.NewHandler(svc.resolver).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, appName)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var hub *websocket.Hub
	var extra []events.Publisher
	if cfg.WebSocketEnabled {
		hub = websocket.NewHub(logger)
		extra = append(extra, hub)
	}
	pub, closePub, err := buildPublisher(ctx, cfg, logger, extra...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set up event publishing")
		return err
	}
	defer closePub()

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New()
	}

	svc := newServices(pool, cfg, logger, metrics, pub)
	e := newEcho(cfg, logger, pool, svc, metrics, hub)

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Dur("lock_timeout", cfg.LockTimeout).Msg("starting ADT server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
