// Package tuner applies throughput and IOPS settings to gp3 volumes of tagged EC2 instances.
package tuner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/ebs-tuner/internal/config"
	"github.com/yairfalse/ebs-tuner/internal/event"
)

const instrumentationName = "github.com/yairfalse/ebs-tuner/internal/tuner"

// VolumeTuner locates target instances and modifies their gp3 volumes.
type VolumeTuner struct {
	ec2Client EC2API
	logger    zerolog.Logger
	recorder  Recorder
	tracer    trace.Tracer
}

// Option configures a VolumeTuner.
type Option func(*VolumeTuner)

// WithTracer sets the tracer used for invocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *VolumeTuner) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// New creates a VolumeTuner. A nil recorder discards telemetry; without
// WithTracer spans go to the global tracer provider.
func New(client EC2API, logger zerolog.Logger, recorder Recorder, opts ...Option) *VolumeTuner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	t := &VolumeTuner{
		ec2Client: client,
		logger:    logger,
		recorder:  recorder,
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handle processes one invocation. Remote failures never surface here; the only
// non-200 outcome is a missing tag value.
func (t *VolumeTuner) Handle(ctx context.Context, raw json.RawMessage, cfg config.TuningConfig) Response {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "tuner.Handle")
	defer span.End()

	logger := t.log(ctx)
	logger.Info().Bytes("event", raw).Msg("event received")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		span.SetStatus(codes.Error, err.Error())
		t.recorder.RecordInvocation(ctx, ModeRejected, time.Since(start), 0)
		return ErrorResponse(err)
	}

	target := event.Parse(raw)
	result := NewResult()
	mode := ModeDiscovery

	if target.HasInstance() {
		mode = ModeInstance
		logger.Info().
			Str("instance_id", target.InstanceID).
			Str("state", target.State).
			Msg("extracted instance ID from state change event")
		t.ProcessInstance(ctx, target.InstanceID, cfg, result)
	} else {
		logger.Info().
			Str("detail_type", target.DetailType).
			Str("tag_key", cfg.TagKey).
			Str("tag_value", cfg.TagValue).
			Msg("no instance ID found in event, searching by tag")
		t.DiscoverAndProcess(ctx, cfg, result)
	}

	span.SetAttributes(
		attribute.String("tuner.mode", mode),
		attribute.Int("tuner.volumes_modified", result.Count()),
	)
	t.recorder.RecordInvocation(ctx, mode, time.Since(start), result.Count())

	return Response{StatusCode: 200, Body: result.Summary()}
}

// log returns the tuner logger bound to ctx for trace correlation.
func (t *VolumeTuner) log(ctx context.Context) *zerolog.Logger {
	logger := t.logger.With().Ctx(ctx).Logger()
	return &logger
}

func (t *VolumeTuner) apiError(ctx context.Context, span trace.Span, operation string, err error) {
	span.RecordError(err, trace.WithAttributes(attribute.String("aws.operation", operation)))
	span.SetStatus(codes.Error, operation+" failed")
	t.recorder.RecordAPIError(ctx, operation)
}
