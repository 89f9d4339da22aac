package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/hostelops/warden/config"
	"github.com/hostelops/warden/internal/repositories/auditlog"
	issuerepo "github.com/hostelops/warden/internal/repositories/issue"
	notificationrepo "github.com/hostelops/warden/internal/repositories/notification"
	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/kafka"
	"github.com/hostelops/warden/pkg/matching"
	"github.com/hostelops/warden/pkg/merging"
	"github.com/hostelops/warden/pkg/metrics"
	"github.com/hostelops/warden/pkg/middleware"
	"github.com/hostelops/warden/pkg/redis"
	"github.com/hostelops/warden/pkg/routes/health"
	issueroutes "github.com/hostelops/warden/pkg/routes/issue"
	notificationroutes "github.com/hostelops/warden/pkg/routes/notification"
	"github.com/hostelops/warden/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger := newLogger(cfg)

	shutdownTracing, err := tracing.Init(cfg.AppName, &tracing.NoopExporter{})
	if err != nil {
		fatal(logger, err, "Failed to initialize tracing")
	}

	db, err := database.Connect(database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to connect to database")
	}
	defer db.Close()

	if err := runMigrations(cfg, db, logger); err != nil {
		fatal(logger, err, "Failed to run migrations")
	}

	issueRepo := issuerepo.NewRepository(db, logger)
	auditRepo := auditlog.NewRepository(db, logger)
	notificationRepo := notificationrepo.NewRepository(db, logger)

	var producer *kafka.Producer
	var emitter *kafka.Emitter
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = kafka.NewEmitter(producer)
	}

	var redisClient *redis.Client
	var cache *redis.DuplicateCache
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			fatal(logger, err, "Failed to connect to Redis")
		}
		defer redisClient.Close()
		cache = redis.NewDuplicateCache(redisClient, cfg.DuplicateCacheTTL, logger)
	}

	scorer := matching.NewScorer(matching.Weights{
		Title:       cfg.MatchTitleWeight,
		Description: cfg.MatchDescriptionWeight,
		Category:    cfg.MatchCategoryWeight,
		Location:    cfg.MatchLocationWeight,
		Temporal:    cfg.MatchTemporalWeight,
	}, cfg.MatchTemporalWindow)

	var resultCache matching.ResultCache
	if cache != nil {
		resultCache = cache
	}
	finder := matching.NewFinder(issueRepo, scorer, resultCache, matching.FinderConfig{
		DefaultLimit:  cfg.DuplicateDefaultLimit,
		MaxLimit:      cfg.DuplicateMaxLimit,
		MinScore:      cfg.MatchMinScore,
		CandidateSpan: cfg.DuplicateCandidateSpan,
	}, logger)

	var mergeEmitter merging.Emitter
	if emitter != nil {
		mergeEmitter = emitter
	}
	var invalidator merging.Invalidator
	if cache != nil {
		invalidator = cache
	}
	executor := merging.NewExecutor(issueRepo, auditRepo, notificationRepo, mergeEmitter, invalidator, metrics.MergeObserver{}, logger)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		fatal(logger, err, "Failed to create DI container")
	}
	mustRegister(logger, ectoinject.RegisterInstance[ectologger.Logger](container, logger))
	mustRegister(logger, ectoinject.RegisterInstance[database.DB](container, db))
	mustRegister(logger, ectoinject.RegisterInstance[*issuerepo.Repository](container, issueRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*auditlog.Repository](container, auditRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*notificationrepo.Repository](container, notificationRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*matching.Finder](container, finder))
	mustRegister(logger, ectoinject.RegisterInstance[*merging.Executor](container, executor))
	if emitter != nil {
		mustRegister(logger, ectoinject.RegisterInstance[*kafka.Emitter](container, emitter))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := health.NewChecker(db, redisPinger, cfg.Version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	issueroutes.Register(api.Group("/issues"))
	notificationroutes.Register(api.Group("/notifications"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	go func() {
		checker.SetReady(true)
		logger.WithFields(map[string]any{"port": cfg.Port}).Info("Starting server")
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "Server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to shut down server cleanly")
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.WithError(err).Error("Failed to shut down tracing")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Errorf("failed to create logger: %w", err))
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func runMigrations(cfg config.Config, db database.DB, logger ectologger.Logger) error {
	driver, err := postgres.WithInstance(db.Unsafe().DB, &postgres.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func mustRegister(logger ectologger.Logger, err error) {
	if err != nil {
		fatal(logger, err, "Failed to register dependency")
	}
}

func fatal(logger ectologger.Logger, err error, msg string) {
	logger.WithError(err).Error(msg)
	os.Exit(1)
}
