package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/scan-trigger/internal/application"
	appscans "github.com/bryanwahyu/scan-trigger/internal/application/scans"
	"github.com/bryanwahyu/scan-trigger/internal/config"
	"github.com/bryanwahyu/scan-trigger/internal/infra/executor/local"
	"github.com/bryanwahyu/scan-trigger/internal/infra/httpserver"
	"github.com/bryanwahyu/scan-trigger/internal/log"
	"github.com/bryanwahyu/scan-trigger/internal/middleware"
)

var (
	flagConfigFilePath string
	flagPort           int
	flagVerbose        bool
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "config file to load, default is $CONFIG_PATH or config.yaml")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "listen port, overrides server.port")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("scan-trigger failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "scan-trigger",
	Short:        "HTTP endpoint running the scan program on POST /scan",
	SilenceUsage: true,
	RunE:         serve,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("scan-trigger: version info not available")
			return
		}
		fmt.Printf("scan-trigger: %s\n", info.Main.Version)
		fmt.Printf("go:           %s\n", info.GoVersion)
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				fmt.Printf("commit:       %s\n", s.Value)
			}
		}
	},
}

// loadConfig picks --config, then CONFIG_PATH, then config.yaml. Only the
// implicit default may be absent.
func loadConfig() (config.Config, error) {
	path, optional := flagConfigFilePath, false
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path, optional = "config.yaml", true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load: %w", err)
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	if flagVerbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(log.New(os.Stderr, level))

	scanCmd, err := cfg.ResolveCommand()
	if err != nil {
		return err
	}
	checker := middleware.ProgramChecker{Command: scanCmd}
	if err := checker.Check(cmd.Context()); err != nil {
		// not fatal: the program may be deployed after the server starts
		slog.Warn("scan program not ready", "path", scanCmd.Path, "error", err)
	}

	metrics := middleware.NewMetrics()
	svc := &appscans.Service{
		Runner:   local.NewRunner(),
		Command:  scanCmd,
		Clock:    application.SystemClock{},
		Recorder: metrics,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := httpserver.Options{
		CORS: middleware.CORSOptions{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
		Metrics: metrics,
		Health:  map[string]middleware.HealthChecker{"scan_program": checker},
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go rl.RunSweeper(ctx, 5*time.Minute, 10*time.Minute)
		opts.RateLimiter = rl
	}

	// no WriteTimeout: a scan holds the response open until the program exits
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpserver.NewRouter(svc, opts),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "scan_program", scanCmd.Path, "interpreter", scanCmd.Interpreter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
