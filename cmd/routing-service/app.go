package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/constants"
	"github.com/dikshant-ux/vellkopoint/internal/delivery"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/mapping"
	"github.com/dikshant-ux/vellkopoint/internal/routing"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/internal/target"
	"github.com/dikshant-ux/vellkopoint/pkg/bootstrap"
	"github.com/dikshant-ux/vellkopoint/pkg/health"
	"github.com/dikshant-ux/vellkopoint/pkg/logging"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	mongo          *mongo.Client
	handler        *routing.Handler
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("routing-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	client, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.mongo = client

	if err := a.InitBroker("routing-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initService()

	tp, err := tracing.Init(a.Config.Tracing, "routing-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRoutingMetrics()
	metrics.RegisterBrokerMetrics()

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) database() *mongo.Database {
	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongo.Database(name)
}

func (a *App) initService() {
	db := a.database()

	leadRepo := lead.NewRepository(db)
	targetRepo := target.NewRepository(db)
	sourceRepo := source.NewRepository(db)

	dispatcher := delivery.NewDispatcher(a.Config.Delivery, a.Logger)

	// Outbound mapping never auto-discovers; no unknown-field tracker.
	mapper := mapping.NewMapper(sourceRepo, nil, a.Logger)

	engine := routing.NewEngine(leadRepo, targetRepo, dispatcher, mapper, a.Config.Routing, a.Logger)
	a.handler = routing.NewHandler(engine, a.Logger)
}

func (a *App) initHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.mongo != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongo))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) routeTopic() string {
	if t := a.Config.Broker.Kafka.RouteTopic; t != "" {
		return t
	}
	return constants.DefaultRouteTopic
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.Consumer.Consume(gCtx, a.routeTopic(), a.handler.Handle)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "routing-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down routing service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.mongo)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
