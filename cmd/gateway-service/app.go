package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/dikshant-ux/vellkopoint/internal/broker"
	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/constants"
	"github.com/dikshant-ux/vellkopoint/internal/gateway"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/bootstrap"
	"github.com/dikshant-ux/vellkopoint/pkg/health"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/middleware"
	"github.com/dikshant-ux/vellkopoint/pkg/ratelimit"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	mongoClient    *mongo.Client
	producer       broker.Producer
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("gateway-service")
	}
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	client, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongoClient = client

	producer, err := broker.NewProducer(a.config.Broker, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	a.producer = producer

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "gateway-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("gateway-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Gateway.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.Gateway.RateLimit.RPS,
			Burst:           a.config.Gateway.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Gateway.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Gateway.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	db := a.database()
	sourceRepo := source.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)

	catalogSvc := catalog.NewService(catalogRepo, sourceRepo, a.producer, a.reprocessTopic(), a.logger)
	intakeSvc := gateway.NewService(sourceRepo, a.producer, a.processTopic(), a.logger)

	handler := gateway.NewHandler(intakeSvc, catalogSvc, a.logger)
	handler.RegisterRoutes(router)

	metrics.RegisterGatewayMetrics()

	healthRegistry := health.NewCheckerRegistry()
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) database() *mongo.Database {
	name := a.config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(name)
}

func (a *App) processTopic() string {
	if t := a.config.Broker.Kafka.ProcessTopic; t != "" {
		return t
	}
	return constants.DefaultProcessTopic
}

func (a *App) reprocessTopic() string {
	if t := a.config.Broker.Kafka.ReprocessTopic; t != "" {
		return t
	}
	return constants.DefaultReprocessTopic
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.mongoClient)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
