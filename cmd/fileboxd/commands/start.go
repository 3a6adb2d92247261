package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/internal/telemetry"
	"github.com/marmos91/filebox/pkg/adapter/filebox"
	"github.com/marmos91/filebox/pkg/config"
	"github.com/marmos91/filebox/pkg/index"
	"github.com/marmos91/filebox/pkg/metrics"

	// Registers the Prometheus implementation of metrics.FileboxMetrics.
	_ "github.com/marmos91/filebox/pkg/metrics/prometheus"
)

var (
	startRoot string
	startPort int
	pidFile   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the filebox server",
	Long: `Start the filebox server in the foreground.

The shared directory, listener, authentication backend and index policy
come from the configuration file. --root and --port override it for a
quick one-off share.

Examples:
  # Start with the default config location
  fileboxd start

  # Start with a custom config file
  fileboxd start --config /etc/filebox/config.yaml

  # Share another directory on another port
  fileboxd start --root ./public --port 2121

  # Use environment variables to override config
  FILEBOX_LOGGING_LEVEL=DEBUG fileboxd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startRoot, "root", "", "Shared directory (overrides server.root)")
	startCmd.Flags().IntVar(&startPort, "port", -1, "Listen port (overrides server.port, 0 picks a free port)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if startRoot != "" {
		cfg.Server.Root = startRoot
	}
	if startPort >= 0 {
		cfg.Server.Port = startPort
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.ProfilingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// The registry must exist before any collector is built.
	var fm metrics.FileboxMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		fm = metrics.NewFileboxMetrics()
	}

	rt, err := config.InitializeRuntime(ctx, cfg, fm)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("runtime close error", logger.KeyError, err)
		}
	}()

	policy, err := index.ParsePolicy(cfg.Index.Refresh)
	if err != nil {
		return err
	}
	if err := rt.Index.Start(ctx, policy, cfg.Index.Interval); err != nil {
		return fmt.Errorf("failed to start index refresher: %w", err)
	}

	srv, err := filebox.New(cfg.FileboxConfig(), filebox.Deps{
		Sandbox: rt.Sandbox,
		Auth:    rt.Auth,
		Index:   rt.Index,
		Metrics: fm,
	})
	if err != nil {
		return err
	}

	metricsDone := make(chan error, 1)
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(metrics.ServerConfig{
			BindAddress: cfg.Metrics.BindAddress,
			Port:        cfg.Metrics.Port,
		}, rt.HealthChecks())
		go func() { metricsDone <- ms.Start(ctx) }()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		close(metricsDone)
		logger.Info("Metrics collection disabled")
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	go func() {
		addr := srv.GetListenerAddr()
		if addr == "" {
			return
		}
		if cfg.Banner != "" {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cfg.Banner)
		}
		logger.Info("Server is running. Press Ctrl+C to stop.", "address", addr, logger.KeyRoot, rt.Sandbox.Root())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.KeyError, err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		cancel()
		if err != nil {
			logger.Error("Server error", logger.KeyError, err)
			return err
		}
		logger.Info("Server stopped")
	}

	if err := <-metricsDone; err != nil {
		logger.Warn("Metrics server error", logger.KeyError, err)
	}
	return nil
}

// getConfigSource describes where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
