package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/dikshant-ux/vellkopoint/internal/broker"
	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/constants"
	"github.com/dikshant-ux/vellkopoint/internal/dedupe"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/mapping"
	"github.com/dikshant-ux/vellkopoint/internal/pipeline"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/bootstrap"
	"github.com/dikshant-ux/vellkopoint/pkg/health"
	"github.com/dikshant-ux/vellkopoint/pkg/logging"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/migrations"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

const cleanupSweepInterval = time.Hour

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	mongo          *mongo.Client
	handler        *pipeline.Handler
	cleaner        *pipeline.Cleaner
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingest-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker("ingest-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initService(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "ingest-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngestMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	client, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongo = client

	if a.Config.Database.EnsureIndex {
		if err := migrations.EnsureMongoIndexes(ctx, a.database()); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}
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

func (a *App) initService() error {
	db := a.database()

	sourceRepo := source.NewRepository(db)
	leadRepo := lead.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)

	catalogSvc := catalog.NewService(catalogRepo, sourceRepo, a.Producer, a.reprocessTopic(), a.Logger)
	mapper := mapping.NewMapper(sourceRepo, catalogSvc, a.Logger)

	var cache dedupe.Cache = dedupe.NewCache(a.redis)
	if a.Config.CircuitBreaker.Enabled {
		cache = dedupe.NewCircuitBreakerCache(cache, a.Config.CircuitBreaker)
		initCtx := logging.WithServiceName(context.Background(), "ingest-service")
		a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for dedupe cache")
	}
	dedupSvc := dedupe.NewService(dedupe.NewStore(db), cache, a.Config.Dedup, a.Logger)

	svc := pipeline.NewService(
		sourceRepo,
		leadRepo,
		catalogSvc,
		mapper,
		dedupSvc,
		a.Producer,
		a.processTopic(),
		a.routeTopic(),
		a.Logger,
	)
	a.handler = pipeline.NewHandler(svc, a.Logger)

	// A negative retention disables cleanup; zero means unset.
	retentionDays := a.Config.Ingest.PayloadRetentionDays
	if retentionDays == 0 {
		retentionDays = constants.DefaultPayloadRetentionDays
	}
	if retentionDays > 0 {
		a.cleaner = pipeline.NewCleaner(leadRepo, retentionDays, cleanupSweepInterval, a.Logger)
	}

	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
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

func (a *App) processTopic() string {
	if t := a.Config.Broker.Kafka.ProcessTopic; t != "" {
		return t
	}
	return constants.DefaultProcessTopic
}

func (a *App) routeTopic() string {
	if t := a.Config.Broker.Kafka.RouteTopic; t != "" {
		return t
	}
	return constants.DefaultRouteTopic
}

func (a *App) reprocessTopic() string {
	if t := a.Config.Broker.Kafka.ReprocessTopic; t != "" {
		return t
	}
	return constants.DefaultReprocessTopic
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
		return a.Consumer.Consume(gCtx, a.processTopic(), a.handler.Handle)
	})

	// Reprocess jobs arrive on their own topic so a remap burst cannot
	// starve live traffic of consumer attention for long.
	reprocessConsumer, err := broker.NewConsumer(a.Config.Broker, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create reprocess consumer: %w", err)
	}
	reprocessConsumer.SetServiceName("ingest-service")
	defer reprocessConsumer.Close()

	g.Go(func() error {
		return reprocessConsumer.Consume(gCtx, a.reprocessTopic(), a.handler.Handle)
	})

	if a.cleaner != nil {
		g.Go(func() error {
			err := a.cleaner.Run(gCtx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "ingest-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down ingest service")

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

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.mongo)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
