package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    _ "github.com/go-sql-driver/mysql"
    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/callerid-pool/internal/allocator"
    "github.com/hamzaKhattat/callerid-pool/internal/api"
    "github.com/hamzaKhattat/callerid-pool/internal/config"
    "github.com/hamzaKhattat/callerid-pool/internal/coordstore"
    "github.com/hamzaKhattat/callerid-pool/internal/db"
    "github.com/hamzaKhattat/callerid-pool/internal/health"
    "github.com/hamzaKhattat/callerid-pool/internal/metrics"
    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

var (
    configFile string
    verbose    bool
    cfg        *config.Config
)

func main() {
    flag.StringVar(&configFile, "config", "", "Configuration file path")
    flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
    flag.Parse()

    if flag.NFlag() > 0 && flag.Arg(0) == "" {
        runServe()
        return
    }

    runCLI()
}

func loadAndInit() error {
    c, err := config.Load(configFile)
    if err != nil {
        return fmt.Errorf("failed to load config: %w", err)
    }
    cfg = c

    logConfig := logger.Config{
        Level:  cfg.Monitoring.Logging.Level,
        Format: cfg.Monitoring.Logging.Format,
        Output: cfg.Monitoring.Logging.Output,
        File: logger.FileConfig{
            Enabled:    cfg.Monitoring.Logging.File.Enabled,
            Path:       cfg.Monitoring.Logging.File.Path,
            MaxSize:    cfg.Monitoring.Logging.File.MaxSize,
            MaxBackups: cfg.Monitoring.Logging.File.MaxBackups,
            MaxAge:     cfg.Monitoring.Logging.File.MaxAge,
            Compress:   cfg.Monitoring.Logging.File.Compress,
        },
    }
    if verbose {
        logConfig.Level = "debug"
    }
    return logger.Init(logConfig)
}

// runServe is the production entry point: it wires the Pool Store, the
// Coordination Store, the Allocator and every server (API, metrics,
// health), then blocks until SIGINT/SIGTERM.
func runServe() {
    ctx := context.Background()

    if err := loadAndInit(); err != nil {
        fmt.Fprintf(os.Stderr, "%v\n", err)
        os.Exit(1)
    }

    wrapped, err := db.Open(ctx, db.Config{
        Driver:          cfg.Database.Driver,
        Host:            cfg.Database.Host,
        Port:            cfg.Database.Port,
        Username:        cfg.Database.Username,
        Password:        cfg.Database.Password,
        Database:        cfg.Database.Database,
        Charset:         cfg.Database.Charset,
        MaxOpenConns:    cfg.Database.MaxOpenConns,
        MaxIdleConns:    cfg.Database.MaxIdleConns,
        ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
        RetryAttempts:   cfg.Database.RetryAttempts,
        RetryDelay:      cfg.Database.RetryDelay,
    })
    if err != nil {
        logger.Fatal("failed to open database", "error", err)
    }

    if err := poolstore.RunMigrations(wrapped.DB); err != nil {
        logger.Fatal("failed to run migrations", "error", err)
    }

    pool := poolstore.NewStore(wrapped.DB)

    coord, err := coordstore.New(ctx, coordstore.Config{
        Addr:         cfg.Redis.GetRedisAddr(),
        Password:     cfg.Redis.Password,
        DB:           cfg.Redis.DB,
        PoolSize:     cfg.Redis.PoolSize,
        MinIdleConns: cfg.Redis.MinIdleConns,
        MaxRetries:   cfg.Redis.MaxRetries,
        DialTimeout:  cfg.Redis.DialTimeout,
        ReadTimeout:  cfg.Redis.ReadTimeout,
        WriteTimeout: cfg.Redis.WriteTimeout,
        KeyPrefix:    cfg.Redis.KeyPrefix,
    })
    if err != nil {
        logger.Fatal("failed to connect to redis", "error", err)
    }

    promMetrics := metrics.NewPrometheusMetrics()
    history := allocator.NewHistoryWriter(pool, 256)

    alloc := allocator.New(pool, coord, promMetrics, history, allocator.Config{
        ReservationTTL:          cfg.Allocator.ReservationTTL,
        AgentRateLimitPerMinute: cfg.Allocator.AgentRateLimitPerMinute,
        CandidateScanLimit:      cfg.Allocator.CandidateScanLimit,
        RequestDeadline:         cfg.Allocator.RequestDeadline,
        StrictAreaCode:          cfg.Allocator.StrictAreaCode,
        LocalRateLimiterBurst:   cfg.Allocator.LocalRateLimiterBurst,
    })

    var apiServer *api.Server
    if cfg.API.Enabled {
        apiServer = api.NewServer(alloc, pool,
            fmt.Sprintf("%s:%d", cfg.API.ListenAddr, cfg.API.Port),
            cfg.API.ReadTimeout, cfg.API.WriteTimeout)
        go func() {
            if err := apiServer.ListenAndServe(); err != nil {
                logger.Fatal("API server failed", "error", err)
            }
        }()
    }

    var healthSvc *health.HealthService
    if cfg.Monitoring.Health.Enabled {
        healthSvc = health.NewHealthService(cfg.Monitoring.Health.Port)
        healthSvc.RegisterLivenessCheck("self", health.CheckFunc(func(ctx context.Context) error { return nil }))
        healthSvc.RegisterReadinessCheck("database", health.CheckFunc(func(ctx context.Context) error {
            return wrapped.PingContext(ctx)
        }))
        healthSvc.RegisterReadinessCheck("redis", health.CheckFunc(func(ctx context.Context) error {
            return coord.Ping(ctx)
        }))
        go func() {
            if err := healthSvc.Start(); err != nil && err.Error() != "http: Server closed" {
                logger.WithField("error", err).Error("health service failed")
            }
        }()
    }

    if cfg.Monitoring.Metrics.Enabled {
        go func() {
            if err := promMetrics.Serve(cfg.Monitoring.Metrics.Port); err != nil {
                logger.WithField("error", err).Error("metrics server failed")
            }
        }()
    }

    logger.Info("callerid-pool started")

    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
    <-sigChan

    logger.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()

    if apiServer != nil {
        apiServer.Shutdown(shutdownCtx)
    }
    if healthSvc != nil {
        healthSvc.Stop()
    }
    promMetrics.Shutdown(shutdownCtx)
    history.Stop()
    coord.Close()
    wrapped.Close()

    logger.Info("shutdown complete")
}

func runCLI() {
    rootCmd := &cobra.Command{
        Use:   "calleridpoold",
        Short: "Caller-ID pool allocation engine",
        Long:  "Allocates and tracks outbound caller IDs for a call-center dialer",
    }
    rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")

    rootCmd.AddCommand(
        createServeCommand(),
        createMigrateCommand(),
        createPoolCommands(),
    )

    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

func createServeCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Run the allocation engine (API, metrics, health)",
        RunE: func(cmd *cobra.Command, args []string) error {
            runServe()
            return nil
        },
    }
}
