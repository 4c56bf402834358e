// Package daemon runs tag discovery passes on an interval.
package daemon

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/ebs-tuner/internal/config"
	"github.com/yairfalse/ebs-tuner/internal/tuner"
)

// Discoverer runs one tag discovery pass.
type Discoverer interface {
	DiscoverAndProcess(ctx context.Context, cfg config.TuningConfig, result *tuner.Result)
}

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Tuning   config.TuningConfig
}

// Daemon runs discovery passes until its context is cancelled
type Daemon struct {
	interval      time.Duration
	tuning        config.TuningConfig
	discoverer    Discoverer
	logger        zerolog.Logger
	metrics       *DaemonMetrics
	startTime     time.Time
	passCount     atomic.Int64
	modifiedCount atomic.Int64
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg Config, discoverer Discoverer, logger zerolog.Logger) (*Daemon, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive (got %s)", cfg.Interval)
	}

	metrics, err := NewDaemonMetrics()
	if err != nil {
		return nil, fmt.Errorf("create daemon metrics: %w", err)
	}

	return &Daemon{
		interval:   cfg.Interval,
		tuning:     cfg.Tuning,
		discoverer: discoverer,
		logger:     logger,
		metrics:    metrics,
		startTime:  time.Now(),
	}, nil
}

// Start runs a pass immediately, then one per interval. Passes never overlap.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info().
		Dur("interval", d.interval).
		Str("tag_key", d.tuning.TagKey).
		Str("tag_value", d.tuning.TagValue).
		Msg("watch starting")

	d.runPass(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("watch stopped")
			return nil
		case <-ticker.C:
			d.runPass(ctx)
		}
	}
}

func (d *Daemon) runPass(ctx context.Context) {
	start := time.Now()
	result := tuner.NewResult()

	d.discoverer.DiscoverAndProcess(ctx, d.tuning, result)

	duration := time.Since(start)
	d.passCount.Add(1)
	d.modifiedCount.Add(int64(result.Count()))

	status := "success"
	if ctx.Err() != nil {
		status = "cancelled"
	}
	d.metrics.RecordPass(ctx, status, duration)
	d.metrics.RecordVolumesModified(ctx, int64(result.Count()))

	d.logger.Info().
		Int("modified", result.Count()).
		Strs("volume_ids", result.VolumeIDs).
		Dur("duration", duration).
		Msg(result.Summary())
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Passes: d.passCount.Load(),
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime_seconds"`
	Passes int64  `json:"passes"`
}

// PassCount returns total discovery passes run
func (d *Daemon) PassCount() int64 {
	return d.passCount.Load()
}

// ModifiedCount returns total volumes modified across passes
func (d *Daemon) ModifiedCount() int64 {
	return d.modifiedCount.Load()
}
