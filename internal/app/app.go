package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/database"
	"github.com/fascinante-digital/gateway/internal/handlers"
	"github.com/fascinante-digital/gateway/internal/middleware"
	"github.com/fascinante-digital/gateway/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers, err = handlers.New(cfg, app.logger, services)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.services.Shutdown()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.IPRateLimit(a.services.RateLimit, a.logger))

	// Health and Prometheus endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// OAuth authorization server endpoints (no auth required; the token
	// endpoint authenticates the client itself)
	oauth := router.Group("/oauth")
	{
		oauth.GET("/authorize", a.handlers.OAuth.Authorize)
		oauth.POST("/token", a.handlers.OAuth.Token)
		oauth.GET("/userinfo", a.handlers.OAuth.UserInfo)
	}
	router.GET("/.well-known/jwks.json", a.handlers.OAuth.JWKS)

	auth := middleware.Auth(a.services.Auth, a.logger)

	// Proxied provider routes
	api := router.Group("/api/v1")
	{
		api.Use(auth)

		api.GET("/pagespeed", a.handlers.PageSpeed.Analyze)
		api.GET("/pagespeed/core-web-vitals", a.handlers.PageSpeed.CoreWebVitals)
		api.GET("/meta/ad-library", a.handlers.Meta.SearchAds)

		api.GET("/google-my-business", a.handlers.Business.Dispatch)
		api.POST("/google-my-business", a.handlers.Business.Dispatch)

		analytics := api.Group("/analytics")
		{
			analytics.GET("/metrics", a.handlers.Analytics.Metrics)
			analytics.GET("/events", a.handlers.Analytics.Events)
		}
	}

	// Raw provider passthrough
	v3 := router.Group("/api/v3")
	{
		v3.Use(auth)
		v3.GET("/*path", a.handlers.DataForSEO.Proxy)
		v3.POST("/*path", a.handlers.DataForSEO.Proxy)
	}

	// GPT Actions endpoints
	gpt := router.Group("/api/gpt-actions")
	{
		gpt.Use(auth)
		gpt.POST("/leads", a.handlers.Leads.Create)
	}

	a.router = router
}
