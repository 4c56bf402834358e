package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/yairfalse/ebs-tuner/internal/awsclient"
	"github.com/yairfalse/ebs-tuner/internal/daemon"
	"github.com/yairfalse/ebs-tuner/internal/telemetry"
	"github.com/yairfalse/ebs-tuner/internal/tuner"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
	watchRegion      string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run tag discovery on an interval",
	Long: `Run tag discovery passes continuously.

Every interval all instances carrying the target tag are listed and their gp3
volumes tuned. Prometheus metrics are served on /metrics, health on /healthz
and /readyz.`,
	Example: `  ebs-tuner watch                          # Every 5 minutes
  ebs-tuner watch --interval 1m            # Every minute
  ebs-tuner watch --metrics-addr :2112     # Custom metrics address`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "Discovery interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", ":9090", "Metrics server address")
	watchCmd.Flags().StringVarP(&watchRegion, "region", "r", "", "AWS region (default: SDK chain)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Watch.Interval = watchInterval
	}
	if watchRegion != "" {
		cfg.AWS.Region = watchRegion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider, err := telemetry.NewProvider(ctx, cfg.OTEL, promExporter)
	if err != nil {
		return fmt.Errorf("create telemetry provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	client, err := awsclient.NewEC2(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	vt := tuner.New(client, logger, provider, tuner.WithTracer(provider.Tracer()))
	d, err := daemon.NewDaemon(daemon.Config{Interval: cfg.Watch.Interval, Tuning: cfg.Tuning}, vt, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	srv := &http.Server{
		Addr:              watchMetricsAddr,
		Handler:           newMux(d),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group
	g.Add(func() error {
		return d.Start(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(func() error {
		logger.Info().Str("addr", watchMetricsAddr).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

// healthSource is the daemon view served over HTTP.
type healthSource interface {
	Health() daemon.HealthStatus
	PassCount() int64
}

func newMux(d healthSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		handleReadyz(w, r, d)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Health())
	})
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReadyz(w http.ResponseWriter, _ *http.Request, d healthSource) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if d.PassCount() == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no discovery pass completed"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
