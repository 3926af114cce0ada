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
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	auditrepo "github.com/Ramsey-B/clover/internal/repositories/audit"
	candidaterepo "github.com/Ramsey-B/clover/internal/repositories/candidate"
	programrepo "github.com/Ramsey-B/clover/internal/repositories/program"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	candidateroutes "github.com/Ramsey-B/clover/pkg/routes/candidate"
	dedupeRoutes "github.com/Ramsey-B/clover/pkg/routes/dedupe"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	programroutes "github.com/Ramsey-B/clover/pkg/routes/program"
	"github.com/Ramsey-B/clover/pkg/scanning"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(&cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	tracing.SetTracer(tracerProvider.Tracer(cfg.AppName))
	defer func() {
		_ = tracerProvider.Shutdown(context.Background())
	}()

	rawDB, err := sqlx.Connect(cfg.DatabaseDriver, buildDSN(&cfg))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	rawDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	rawDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	rawDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	db := database.NewDatabaseInstance(rawDB, logger)
	defer db.Close()

	var producer *kafka.Producer
	if cfg.KafkaEventsEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}

	programs := programrepo.NewRepository(db, logger)
	audits := auditrepo.NewRepository(db, logger)
	candidates := candidaterepo.NewRepository(db, logger)
	emitter := events.NewEmitter(producer, logger)
	scanner := scanning.NewScanner(programs, logger, cfg.ScanMaxCandidates)
	engine := merging.NewEngine(programs, audits, candidates, emitter, logger)

	if err := registerDependencies(&cfg, logger, db, programs, audits, candidates, emitter, scanner, engine); err != nil {
		logger.WithError(err).Error("Failed to build dependency container")
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(db, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	programroutes.Register(api.Group("/programs"))
	dedupeRoutes.Register(api.Group("/dedupe"))
	candidateroutes.Register(api.Group("/candidates"))

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&migrationDependency{cfg: &cfg, db: rawDB, logger: logger})
	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)

	go func() {
		address := fmt.Sprintf(":%d", cfg.Port)
		logger.WithField("address", address).Info("Starting HTTP server")
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop dependencies")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close Kafka producer")
		}
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUserName,
		cfg.DatabasePassword,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)
}

func registerDependencies(
	cfg *config.Config,
	logger ectologger.Logger,
	db database.DB,
	programs *programrepo.Repository,
	audits *auditrepo.Repository,
	candidates *candidaterepo.Repository,
	emitter *events.Emitter,
	scanner *scanning.Scanner,
	engine *merging.Engine,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*programrepo.Repository](container, programs); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*auditrepo.Repository](container, audits); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*candidaterepo.Repository](container, candidates); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*events.Emitter](container, emitter); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*scanning.Scanner](container, scanner); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*merging.Engine](container, engine); err != nil {
		return err
	}
	return nil
}

// migrationDependency applies schema migrations during startup.
type migrationDependency struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger ectologger.Logger
}

func (d *migrationDependency) GetName() string {
	return "migrations"
}

func (d *migrationDependency) DependsOn() []string {
	return nil
}

func (d *migrationDependency) Start(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(d.db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}
	service := database.NewMigrationService(d.logger, &database.MigrationConfig{
		MigrationFolderPath: d.cfg.DatabaseMigrationFolderPath,
		Version:             uint(d.cfg.DatabaseMigrationVersion),
		AutoRollback:        d.cfg.DatabaseMigrationAutoRollback,
	})
	return service.Migrate(d.cfg.DatabaseName, driver)
}

func (d *migrationDependency) Stop(ctx context.Context) error {
	return nil
}
