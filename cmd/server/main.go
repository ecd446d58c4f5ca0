// Command server runs the campus bus tracker API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusbus/bus-tracker/internal/api"
	"github.com/campusbus/bus-tracker/internal/api/handler"
	"github.com/campusbus/bus-tracker/internal/core/service"
	"github.com/campusbus/bus-tracker/internal/infrastructure/config"
	mongodb "github.com/campusbus/bus-tracker/internal/infrastructure/db/mongo"
	redisdb "github.com/campusbus/bus-tracker/internal/infrastructure/db/redis"
	"github.com/campusbus/bus-tracker/internal/infrastructure/geocode"
	"github.com/campusbus/bus-tracker/internal/infrastructure/oidc"
	"github.com/campusbus/bus-tracker/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.Init(logger.Options{Service: "bus-tracker"})
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "bus-tracker",
	})

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to create mongo indexes")
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer func() { _ = rdb.Close() }()

	rules, err := config.LoadRoleRules(cfg.RoleRulesFile, cfg.Demo.DriverEmail)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load role rules")
	}

	// --- Repositories and adapters ---
	users := mongodb.NewUserRepository(db)
	drivers := mongodb.NewDriverRepository(db)
	credentials := mongodb.NewCredentialRepository(db)

	locationStore := redisdb.NewLocationStore(rdb, logger.For("location_store"))
	driverChanges := redisdb.NewDriverChangeNotifier(rdb)
	throttle := redisdb.NewLoginThrottle(rdb, cfg.Throttle.MaxAttempts, cfg.Throttle.Window)
	revoker := redisdb.NewTokenRevoker(rdb)
	resetTokens := redisdb.NewResetTokenStore(rdb)
	oauthStates := redisdb.NewOAuthStateStore(rdb)
	placeCache := redisdb.NewPlaceCache(rdb, cfg.Geocode.CacheTTL)

	verifier := oidc.NewVerifier(oidc.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		JWKSURL:      cfg.OAuth.JWKSURL,
		HostedDomain: cfg.OAuth.HostedDomain,
	}, logger.For("oidc"))
	geocoder := geocode.NewClient(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent, cfg.Geocode.Timeout)

	// --- Services ---
	trackingService := service.NewTrackingService(locationStore, drivers, driverChanges, service.TrackingOptions{
		PollInterval:  cfg.Tracking.PollInterval,
		SampleTimeout: cfg.Tracking.SampleTimeout,
	}, logger.For("tracking"))
	placeService := service.NewPlaceService(geocoder, placeCache, cfg.Geocode.Timeout, logger.For("places"))

	authService := service.NewAuthService(service.AuthDeps{
		Identities:  service.NewPasswordProvider(credentials, throttle, logger.For("identity")),
		OAuth:       verifier,
		Users:       users,
		Roles:       service.NewRoleResolver(users, rules, logger.For("roles")),
		Revocations: revoker,
		Resets:      resetTokens,
		States:      oauthStates,
		Notifier:    service.NewLogResetNotifier(logger.For("password_reset")),
	}, service.AuthOptions{
		JWTSecret:          cfg.JWTSecret,
		DurableTTL:         cfg.DurableTTL,
		SessionTTL:         cfg.SessionTTL,
		ResetTTL:           cfg.ResetTokenTTL,
		DemoDriverEmail:    cfg.Demo.DriverEmail,
		DemoDriverPassword: cfg.Demo.DriverPassword,
		StudentRule:        service.NewStudentEmailRule(cfg.Student.EmailPrefix, cfg.Student.EmailDomain),
	}, logger.For("auth"))

	if err := authService.EnsureDemoDriver(ctx); err != nil {
		log.Warn().Err(err).Msg("demo driver could not be seeded")
	}

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Auth:          authService,
		Tracking:      trackingService,
		Places:        placeService,
		Revoker:       revoker,
		JWTSecret:     cfg.JWTSecret,
		StaleAfter:    cfg.Tracking.StaleAfter,
		SecureCookies: cfg.IsProduction(),
		HealthChecks: []handler.HealthCheck{
			{Name: "mongo", Ping: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		Log: log,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
