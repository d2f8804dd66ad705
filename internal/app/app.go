package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/config"
	"github.com/temcen/filmtaste/internal/database"
	"github.com/temcen/filmtaste/internal/handlers"
	"github.com/temcen/filmtaste/internal/middleware"
	"github.com/temcen/filmtaste/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancelConsumer context.CancelFunc
	consumerDone   sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers = handlers.New(app.logger, services)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

// Start launches background work: health probes and, when Kafka is enabled,
// the review event consumer. It returns immediately.
func (a *App) Start(ctx context.Context) {
	a.services.Health.Start()

	bus := a.services.EventBus
	if bus == nil {
		a.logger.Info("Kafka disabled; review events are processed inline")
		return
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	a.cancelConsumer = cancel
	a.consumerDone.Add(1)
	go func() {
		defer a.consumerDone.Done()
		a.logger.WithField("topic", a.config.Kafka.Topics.ReviewEvents).Info("Review event consumer started")
		err := bus.Consume(consumerCtx, a.services.Analysis.HandleReviewEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Error("Review event consumer stopped")
			return
		}
		a.logger.Info("Review event consumer stopped")
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancelConsumer != nil {
		a.cancelConsumer()
		done := make(chan struct{})
		go func() {
			a.consumerDone.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.logger.Warn("Timed out waiting for review event consumer")
		}
	}

	var errs []error
	if err := a.services.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing services")
		errs = append(errs, err)
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
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
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	validation := middleware.NewValidationMiddleware(a.services.Schemas)

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
		api.Use(middleware.Timeout(a.config.Analysis.RequestTimeout))
		api.Use(validation.ValidateHeaders())

		analysis := api.Group("/analysis")
		{
			analysis.GET("/:userId", validation.ValidateQueryParams(), a.handlers.Analysis.Get)
			analysis.POST("/events", validation.ValidateReviewEvent(), a.handlers.Analysis.SubmitEvent)
			analysis.POST("/:userId/refresh", a.handlers.Analysis.Refresh)
		}

		recommend := api.Group("/recommend")
		{
			recommend.GET("/expect", validation.ValidateQueryParams(), a.handlers.Recommend.Expect)
			recommend.GET("/difference", validation.ValidateQueryParams(), a.handlers.Recommend.Difference)
		}
	}

	a.router = router
}
