package api

import (
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/campusbus/bus-tracker/docs"
	"github.com/campusbus/bus-tracker/internal/api/handler"
	"github.com/campusbus/bus-tracker/internal/api/middleware"
	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Auth          ports.AuthService
	Tracking      ports.TrackingService
	Places        ports.PlaceService
	Revoker       ports.TokenRevoker
	JWTSecret     string
	StaleAfter    time.Duration
	SecureCookies bool
	HealthChecks  []handler.HealthCheck
	Log           zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddleware("bus_tracker"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth, deps.SecureCookies)
	locationHandler := handler.NewLocationHandler(deps.Tracking, deps.Places, deps.StaleAfter, deps.Log)
	driverHandler := handler.NewDriverHandler(deps.Tracking, deps.Log)
	trackingHandler := handler.NewTrackingHandler(deps.Tracking, deps.Log)
	healthHandler := handler.NewHealthHandler(deps.HealthChecks...)

	requireAuth := middleware.Auth(deps.JWTSecret, deps.Revoker)
	driverOnly := middleware.RBAC(domain.RoleDriver)

	// --- Health probes and tooling (no auth required) ---
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/v1")

	// --- Auth routes ---
	auth := v1.Group("/auth")
	auth.POST("/driver/login", authHandler.DriverLogin)
	auth.GET("/student/oauth-url", authHandler.StudentOAuthURL)
	auth.POST("/student/login", authHandler.StudentLogin)
	auth.POST("/password/validate", authHandler.ValidatePassword)
	auth.POST("/driver/password-reset", authHandler.RequestPasswordReset)
	auth.POST("/driver/password-reset/confirm", authHandler.ConfirmPasswordReset)
	auth.POST("/logout", authHandler.Logout, requireAuth)
	auth.GET("/me", authHandler.Me, requireAuth)
	auth.POST("/driver/register", authHandler.RegisterDriver, requireAuth, driverOnly)

	// --- Location (any signed-in user) ---
	location := v1.Group("/location", requireAuth)
	location.GET("", locationHandler.Get)
	location.GET("/place", locationHandler.Place)
	location.GET("/stream", locationHandler.Stream)

	// --- Driver registry and device channel (drivers only) ---
	drivers := v1.Group("/drivers", requireAuth, driverOnly)
	drivers.GET("", driverHandler.List)
	drivers.POST("", driverHandler.Create)
	drivers.GET("/stream", driverHandler.Stream)

	v1.GET("/tracking/ws", trackingHandler.Connect, requireAuth, driverOnly)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil || v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
