// bloodbank: blood bank operations console.
//
// Tracks donors, donations and blood requests against per-type inventory
// ledgers, with an operator TUI, a background expiry sweeper and optional
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/database"
	"github.com/bloodbank/bloodbank/internal/database/seed"
	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/server"
	"github.com/bloodbank/bloodbank/internal/services/donations"
	"github.com/bloodbank/bloodbank/internal/services/donors"
	"github.com/bloodbank/bloodbank/internal/services/fulfillment"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/services/requests"
	"github.com/bloodbank/bloodbank/internal/services/sweeper"
	"github.com/bloodbank/bloodbank/internal/telemetry"
	"github.com/bloodbank/bloodbank/internal/tui"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	configPath  string
	migrateOnly bool
	showStatus  bool
	seedData    bool
	debugMode   bool
	headless    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&opts.migrateOnly, "migrate-only", false, "Run migrations and exit")
	flag.BoolVar(&opts.showStatus, "migrate-status", false, "Print migration status and exit")
	flag.BoolVar(&opts.seedData, "seed", false, "Generate seed data and exit")
	flag.BoolVar(&opts.debugMode, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.headless, "headless", false, "Run the sweeper and metrics without the TUI")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bloodbank version %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		// Force exit after timeout
		time.AfterFunc(10*time.Second, func() {
			slog.Error("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	if err := run(ctx, opts); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, cfgPath, err := config.Load(opts.configPath, true)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, closeLog, err := setupLogging(cfg, opts.debugMode)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("bloodbank starting",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cfgPath,
		"bank", cfg.Bank.Code,
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		// Spans go nowhere; everything else keeps working.
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint, "sample_ratio", cfg.Tracing.SampleRatio)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing database")
		if err := db.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	if opts.migrateOnly {
		logger.Info("migrations complete, exiting")
		return nil
	}
	if opts.showStatus {
		return printMigrationStatus(ctx, db)
	}

	// Metrics are optional; a nil *Metrics is a no-op everywhere.
	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	checks := map[string]server.Check{"database": db.HealthCheck}

	sinks := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notify.RedisURL != "" {
		redisNotifier, err := notify.NewRedisNotifier(ctx, cfg.Notify.RedisURL, cfg.Notify.RedisChannel)
		if err != nil {
			// Events still reach the log; the console keeps working.
			logger.Warn("redis notifications disabled", "error", err)
		} else {
			defer redisNotifier.Close()
			sinks = append(sinks, redisNotifier)
			checks["redis"] = redisNotifier.Health
		}
	}
	dispatcher := notify.NewDispatcher(sinks, cfg.Notify.QueueSize, logger)
	defer dispatcher.Close()
	if m != nil {
		m.RegisterDropCounter(reg, dispatcher.Dropped)
	}

	clock := util.SystemClock{}
	tracer := otel.Tracer("github.com/bloodbank/bloodbank")

	inv := inventory.NewService(db.DB, inventory.Options{
		Clock:        clock,
		Metrics:      m,
		Notifier:     dispatcher,
		Logger:       logger,
		Tracer:       tracer,
		MinThreshold: cfg.Inventory.MinThreshold,
		MaxCapacity:  cfg.Inventory.MaxCapacity,
		Alerts: inventory.AlertPolicy{
			ExpiringWindowDays: cfg.Inventory.ExpiringWindowDays,
			Retention:          cfg.Inventory.AlertRetention(),
		},
	})
	created, err := inv.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initializing ledgers: %w", err)
	}
	if created > 0 {
		logger.Info("created inventory ledgers", "count", created)
	}

	donorSvc := donors.NewService(db.DB, clock)
	donationSvc := donations.NewService(db.DB, inv, donorSvc, donations.Options{
		Clock: clock, Metrics: m, Notifier: dispatcher, Logger: logger,
	})
	requestSvc := requests.NewService(db.DB, inv, requests.Options{
		Clock: clock, Metrics: m, Notifier: dispatcher, Logger: logger,
	})
	coord := fulfillment.NewCoordinator(inv, donationSvc, requestSvc, fulfillment.Options{
		Clock: clock, Metrics: m, Logger: logger, Tracer: tracer,
	})

	if opts.seedData {
		return seedDatabase(ctx, logger, clock, seed.Services{
			Donors:      donorSvc,
			Donations:   donationSvc,
			Requests:    requestSvc,
			Fulfillment: coord,
		})
	}

	var sw *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		sw = sweeper.New(donationSvc, requestSvc, inv, cfg.Sweeper.Interval(), clock, logger)
	}

	// Background workers stop when the TUI exits or a signal arrives.
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	g, gctx := errgroup.WithContext(workCtx)

	if sw != nil {
		g.Go(func() error {
			sw.Run(gctx)
			return nil
		})
	}
	if reg != nil {
		srv := server.New(cfg.Metrics.Listen, server.NewRouter(reg, checks, logger))
		g.Go(func() error {
			logger.Info("metrics listener started", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.headless {
		logger.Info("running headless", "sweeper", sw != nil, "metrics", reg != nil)
		<-gctx.Done()
	} else {
		tui.Version = Version
		tui.BuildTime = BuildTime

		logger.Info("starting TUI", "bank", cfg.Bank.Name)
		svc := tui.Services{
			Inventory:   inv,
			Donors:      donorSvc,
			Donations:   donationSvc,
			Requests:    requestSvc,
			Fulfillment: coord,
			Sweeper:     sw,
		}
		if err := tui.Run(gctx, svc, cfg, clock); err != nil {
			stopWork()
			_ = g.Wait()
			return fmt.Errorf("TUI error: %w", err)
		}
	}

	stopWork()
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("bloodbank shutdown complete")
	return nil
}

// setupLogging installs the default slog logger. Logs go to the configured
// file as JSON, or to stderr as text when no file is set.
func setupLogging(cfg *config.Config, debugMode bool) (*slog.Logger, func(), error) {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case config.LogLevelDebug:
			logLevel = slog.LevelDebug
		case config.LogLevelWarn:
			logLevel = slog.LevelWarn
		case config.LogLevelError:
			logLevel = slog.LevelError
		}
	}

	logPath, err := config.EnsureLogDir(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	closeLog := func() {}
	var handler slog.Handler
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		closeLog = func() { logFile.Close() }
		handler = slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeLog, nil
}

// openDatabase recovers a damaged database file if needed, opens it and
// applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	dbPath, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring data directory: %w", err)
	}

	backupDir, err := config.BackupDir(cfg)
	if err != nil {
		slog.Warn("failed to create backup directory", "error", err)
		backupDir = ""
	}

	report, err := database.Recover(ctx, dbPath, backupDir)
	if err != nil {
		return nil, err
	}
	if report.Outcome != database.RecoveryNotNeeded {
		slog.Warn("database recovered", "outcome", report.Outcome, "backup", report.Backup, "preserved", report.Preserved)
	}

	db, err := database.Open(dbPath, &cfg.Database, backupDir)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	migrator, err := database.NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	result, err := migrator.MigrateUp(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if len(result.Applied) > 0 {
		slog.Info("applied migrations",
			"count", len(result.Applied),
			"to_version", result.TargetVersion,
		)
	}
	return db, nil
}

func printMigrationStatus(ctx context.Context, db *database.DB) error {
	migrator, err := database.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	migrations, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database: %s\n", db.Path())
	for _, m := range migrations {
		state := "pending"
		if m.Applied {
			state = "applied " + m.AppliedAt.Format(time.DateTime)
		}
		fmt.Printf("  %03d  %-30s %s\n", m.Version, m.Description, state)
	}
	return nil
}

func seedDatabase(ctx context.Context, logger *slog.Logger, clock util.Clock, svc seed.Services) error {
	existing, err := svc.Donors.List(ctx, models.DonorFilter{}, models.Pagination{Page: 1, PageSize: 1})
	if err != nil {
		return fmt.Errorf("checking existing donors: %w", err)
	}
	if existing.Total > 0 {
		logger.Warn("database already contains donors, skipping seed generation", "count", existing.Total)
		return nil
	}

	summary, err := seed.NewGenerator(svc, seed.DefaultConfig(), clock).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generating seed data: %w", err)
	}
	logger.Info("seed data written",
		"donors", summary.Donors,
		"donations", summary.Donations,
		"requests", summary.Requests,
		"assignments", summary.Assignments,
	)
	return nil
}
