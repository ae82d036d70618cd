package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/user/shuttle/internal/coord"
	"github.com/user/shuttle/internal/engine"
	"github.com/user/shuttle/internal/membership"
	"github.com/user/shuttle/internal/observability"
	"github.com/user/shuttle/internal/scheduler"
	"github.com/user/shuttle/internal/server"
	"github.com/user/shuttle/internal/store"
)

var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shuttle",
	Short: "Shuttle: bulk collection membership jobs",
	Long:  "Moves company ids between collections in checkpointed, cancellable, undoable background jobs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		setupLogging()
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Shuttle server",
	RunE:  runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, toml or json); flags and SHUTTLE_* env override it")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	def := engine.DefaultConfig()
	sched := scheduler.DefaultConfig()
	limits := server.DefaultRateLimitConfig()

	fs := serverCmd.Flags()
	fs.String("bind", ":8080", "HTTP server bind address")
	fs.String("data-dir", "data", "Directory for the job database and membership store")
	fs.String("membership-backend", membership.BackendPebble, "Membership store: pebble or badger")
	fs.String("coord", coord.BackendMemory, "Cancellation flag coordinator: memory or redis")
	fs.String("redis-url", "redis://localhost:6379/0", "Redis URL used when --coord=redis")
	fs.Int("workers", def.Workers, "Concurrent job executors")
	fs.Int("reserved-interactive", def.ReservedInteractive, "Workers that only take interactive jobs (negative disables)")
	fs.Int("interactive-threshold", def.InteractiveThreshold, "Jobs with fewer candidates than this run on the interactive lane")
	fs.Int("batch-size", def.BatchSize, "Candidates processed per checkpointed batch")
	fs.Int("retry-attempts", def.RetryAttempts, "Tries per batch while the membership store is overloaded")
	fs.Duration("retry-base-delay", def.RetryBaseDelay, "First retry delay for an overloaded batch")
	fs.Duration("retry-max-delay", def.RetryMaxDelay, "Maximum retry delay for an overloaded batch")
	fs.Duration("shutdown-timeout", 5*time.Second, "Graceful HTTP shutdown timeout before force-close")
	fs.Duration("progress-interval", 250*time.Millisecond, "Poll cadence of the SSE progress stream")
	fs.Duration("requeue-interval", sched.RequeueInterval, "How often pending jobs missing from the lanes are re-queued")
	fs.Duration("retention", sched.EventRetention, "How long job lifecycle events are kept")
	fs.Duration("retention-interval", sched.PruneInterval, "How often old job lifecycle events are pruned")
	fs.Bool("docs-enabled", true, "Serve API docs at /docs and /openapi.json")
	fs.Bool("otel-enabled", false, "Enable OpenTelemetry tracing")
	fs.String("otel-endpoint", "", "OTLP HTTP endpoint (host:port) for traces; if empty uses stdout exporter")
	fs.Float64("otel-sample-ratio", 1, "Fraction of job traces kept")
	fs.Bool("rate-limit-enabled", limits.Enabled, "Enable server-side per-client request rate limiting")
	fs.Float64("rate-limit-read-rps", limits.ReadRPS, "Per-client sustained read requests/sec")
	fs.Float64("rate-limit-read-burst", limits.ReadBurst, "Per-client read burst tokens")
	fs.Float64("rate-limit-write-rps", limits.WriteRPS, "Per-client sustained write requests/sec")
	fs.Float64("rate-limit-write-burst", limits.WriteBurst, "Per-client write burst tokens")

	rootCmd.AddCommand(serverCmd)
}

// loadConfig layers the config file and SHUTTLE_* env under the flags of cmd.
func loadConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("shuttle")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var bindErr error
	bind := func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = viper.BindPFlag(f.Name, f)
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return bindErr
}

func setupLogging() {
	var level slog.Level
	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func engineConfig() engine.Config {
	return engine.Config{
		Workers:              viper.GetInt("workers"),
		ReservedInteractive:  viper.GetInt("reserved-interactive"),
		InteractiveThreshold: viper.GetInt("interactive-threshold"),
		BatchSize:            viper.GetInt("batch-size"),
		RetryAttempts:        viper.GetInt("retry-attempts"),
		RetryBaseDelay:       viper.GetDuration("retry-base-delay"),
		RetryMaxDelay:        viper.GetDuration("retry-max-delay"),
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var (
		bindAddr        = viper.GetString("bind")
		dataDir         = viper.GetString("data-dir")
		backend         = viper.GetString("membership-backend")
		coordBackend    = viper.GetString("coord")
		shutdownTimeout = viper.GetDuration("shutdown-timeout")
	)

	slog.Info("starting shuttle server",
		"bind", bindAddr,
		"data_dir", dataDir,
		"membership_backend", backend,
		"coord", coordBackend,
		"shutdown_timeout", shutdownTimeout,
	)

	otelShutdown, err := observability.InitTracer(observability.TracingConfig{
		Enabled:     viper.GetBool("otel-enabled"),
		Endpoint:    viper.GetString("otel-endpoint"),
		SampleRatio: viper.GetFloat64("otel-sample-ratio"),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("otel shutdown error", "error", err)
		}
	}()

	db, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open job database: %w", err)
	}
	jobs := store.NewStore(db)
	defer jobs.Close()

	members, err := membership.Open(backend, dataDir)
	if err != nil {
		return fmt.Errorf("open membership store: %w", err)
	}
	defer members.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flags, err := coord.Open(ctx, coordBackend, viper.GetString("redis-url"))
	if err != nil {
		return fmt.Errorf("open coordinator: %w", err)
	}
	defer flags.Close()

	eng, err := engine.New(engineConfig(), jobs, members, flags)
	if err != nil {
		return err
	}
	engCfg := eng.Config()
	slog.Info("engine configured",
		"workers", engCfg.Workers,
		"reserved_interactive", engCfg.ReservedInteractive,
		"interactive_threshold", engCfg.InteractiveThreshold,
		"batch_size", engCfg.BatchSize,
		"retry_attempts", engCfg.RetryAttempts,
	)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	sched := scheduler.New(eng, jobs, scheduler.Config{
		RequeueInterval: viper.GetDuration("requeue-interval"),
		PruneInterval:   viper.GetDuration("retention-interval"),
		EventRetention:  viper.GetDuration("retention"),
	})
	go sched.Run(ctx)

	srv := server.New(eng, members, server.Config{
		Bind:             bindAddr,
		ProgressInterval: viper.GetDuration("progress-interval"),
		DocsDisabled:     !viper.GetBool("docs-enabled"),
		RateLimit: server.RateLimitConfig{
			Enabled:    viper.GetBool("rate-limit-enabled"),
			ReadRPS:    viper.GetFloat64("rate-limit-read-rps"),
			ReadBurst:  viper.GetFloat64("rate-limit-read-burst"),
			WriteRPS:   viper.GetFloat64("rate-limit-write-rps"),
			WriteBurst: viper.GetFloat64("rate-limit-write-burst"),
		},
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("shuttle server ready", "bind", bindAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)

	slog.Info("stopping HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	slog.Info("stopping scheduler")
	cancel()

	slog.Info("stopping engine")
	eng.Stop()

	slog.Info("shuttle server stopped")
	return nil
}
