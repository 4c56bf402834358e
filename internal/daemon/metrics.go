package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds watch-loop metrics using OTEL semantic conventions
type DaemonMetrics struct {
	passes          metric.Int64Counter
	passDuration    metric.Float64Histogram
	volumesModified metric.Int64Gauge
}

// NewDaemonMetrics creates daemon metrics on the global meter provider
func NewDaemonMetrics() (*DaemonMetrics, error) {
	return newDaemonMetrics(otel.Meter("ebs-tuner.daemon"))
}

func newDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	passes, err := meter.Int64Counter(
		"ebs_tuner.daemon.passes",
		metric.WithDescription("Number of discovery passes"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	passDuration, err := meter.Float64Histogram(
		"ebs_tuner.daemon.pass.duration",
		metric.WithDescription("Duration of discovery passes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	volumesModified, err := meter.Int64Gauge(
		"ebs_tuner.daemon.pass.volumes_modified",
		metric.WithDescription("Volumes modified in the last discovery pass"),
		metric.WithUnit("{volume}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		passes:          passes,
		passDuration:    passDuration,
		volumesModified: volumesModified,
	}, nil
}

// RecordPass records a discovery pass with status
func (m *DaemonMetrics) RecordPass(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.passes.Add(ctx, 1, attrs)
	m.passDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordVolumesModified records the volumes modified in the last pass
func (m *DaemonMetrics) RecordVolumesModified(ctx context.Context, count int64) {
	m.volumesModified.Record(ctx, count)
}
