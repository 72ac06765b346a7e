package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/reporting"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/blobstore"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/seq"
	"github.com/hms/hms/internal/platform/telemetry"
	"github.com/hms/hms/internal/web"
)

const (
	defaultBodyLimit = "1M"
	uploadBodyLimit  = "10M"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// services holds the domain services shared by serve and seed.
type services struct {
	identity     *identity.Service
	patients     *patient.Service
	doctors      *doctor.Service
	appointments *appointment.Service
	bills        *billing.Service
	reports      *reporting.Service
}

// newServices wires repositories to services. A nil metrics disables the
// business counters.
func newServices(pool *pgxpool.Pool, cfg *config.Config, tokens auth.TokenStore, metrics *telemetry.Metrics,
	logger zerolog.Logger) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.NewDiskStore(cfg.MediaRoot)
	if err != nil {
		return nil, fmt.Errorf("media root: %w", err)
	}
	tx := db.NewTxManager(pool)
	ids := seq.NewPGGenerator(pool, loc)

	var patientEvents patient.Events
	var billEvents billing.Events
	if metrics != nil {
		patientEvents, billEvents = metrics, metrics
	}

	s := &services{}
	s.identity = identity.NewService(identity.NewUserRepoPG(pool), tokens, logger)
	s.patients = patient.NewService(
		patient.NewPatientRepoPG(pool), patient.NewDocumentRepoPG(pool), patient.NewVitalsRepoPG(pool),
		tx, ids, blobs, patientEvents, logger,
	)
	s.doctors = doctor.NewService(
		doctor.NewSpecializationRepoPG(pool), doctor.NewDoctorRepoPG(pool),
		doctor.NewScheduleRepoPG(pool), doctor.NewSalaryRepoPG(pool),
		s.identity, logger,
	)
	s.appointments = appointment.NewService(appointment.NewRepoPG(pool), tx, ids, s.patients, s.doctors, logger)
	s.bills = billing.NewService(
		billing.NewBillRepoPG(pool), billing.NewItemRepoPG(pool), billing.NewPaymentRepoPG(pool),
		tx, ids, s.patients, s.doctors, billEvents, logger,
	)
	s.reports = reporting.NewService(reporting.NewStorePG(pool), loc, logger)
	return s, nil
}

// newTokenStore returns a Redis-backed store when REDIS_URL is set. Without
// it, development falls back to process memory.
func newTokenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.TokenStore, func(), error) {
	if cfg.RedisURL == "" {
		if !cfg.IsDev() {
			return nil, nil, fmt.Errorf("REDIS_URL is required outside development")
		}
		logger.Warn().Msg("REDIS_URL not set, API tokens are kept in memory")
		return auth.NewMemoryTokenStore(cfg.TokenTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return auth.NewRedisTokenStore(rdb, cfg.TokenTTL), func() { rdb.Close() }, nil
}

// sessionKey returns the configured session signing key. Development without
// SESSION_SECRET gets a random key, so sessions do not survive restarts.
func sessionKey(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	key, err := cfg.SessionKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}
	if !cfg.IsDev() {
		return nil, fmt.Errorf("SESSION_SECRET is required outside development")
	}
	key = make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	logger.Warn().Msg("SESSION_SECRET not set, using an ephemeral session key")
	return key, nil
}

// registerInfra mounts health and metrics endpoints.
func registerInfra(e *echo.Echo, pinger db.Pinger, metrics *telemetry.Metrics) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", metrics.Handler())
}

func newEcho(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(defaultBodyLimit, uploadBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	return e
}

// apiAuth picks the /api/v1 authentication middleware for the resolved mode.
func apiAuth(cfg *config.Config, tokens auth.TokenStore, load auth.PrincipalLoader) echo.MiddlewareFunc {
	tokenMW := auth.TokenMiddleware(tokens, load, auth.AuthSkipper)
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(tokenMW)
	}
	return tokenMW
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tokens, closeTokens, err := newTokenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up token store")
	}
	defer closeTokens()

	metrics := telemetry.New()
	svc, err := newServices(pool, cfg, tokens, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}
	loc, _ := cfg.Location()

	e := newEcho(cfg, logger, metrics)
	registerInfra(e, pool, metrics)

	// JSON API
	api := e.Group("/api/v1", apiAuth(cfg, tokens, svc.identity.LoadPrincipal))
	identity.NewHandler(svc.identity).RegisterRoutes(api)
	patient.NewHandler(svc.patients).RegisterRoutes(api)
	doctor.NewHandler(svc.doctors).RegisterRoutes(api)
	appointment.NewHandler(svc.appointments).RegisterRoutes(api)
	billing.NewHandler(svc.bills, cfg.HospitalName).RegisterRoutes(api)
	reporting.NewHandler(svc.reports).RegisterRoutes(api)

	// Staff web pages
	renderer, err := web.NewRenderer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse templates")
	}
	e.Renderer = renderer
	key, err := sessionKey(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid session configuration")
	}
	sessions := auth.NewSessionManager(key, cfg.TokenTTL, !cfg.IsDev())
	web.NewHandler(svc.identity, sessions, svc.patients, svc.appointments, svc.reports, cfg.HospitalName, logger).
		RegisterRoutes(e, svc.identity.LoadPrincipal)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("auth_mode", cfg.ResolvedAuthMode()).
			Str("report_tz", loc.String()).
			Msg("starting hospital management server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
