// ebs-tuner Lambda entry point.
// Triggered by EC2 state-change notifications or scheduled events.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/ebs-tuner/internal/awsclient"
	"github.com/yairfalse/ebs-tuner/internal/config"
	"github.com/yairfalse/ebs-tuner/internal/telemetry"
	"github.com/yairfalse/ebs-tuner/internal/tuner"
)

const flushTimeout = 2 * time.Second

func main() {
	ctx := context.Background()

	cfg, cfgErr := config.FromEnv()
	if cfgErr != nil {
		// Still start so every invocation reports the problem as a 400.
		cfg = &config.Config{Log: config.LogConfig{Level: "info"}, OTEL: config.OTELConfig{ServiceName: "ebs-tuner"}}
	}

	logger, err := telemetry.NewLogger(cfg.OTEL.ServiceName, cfg.Log.Level, false)
	if err != nil {
		logger, _ = telemetry.NewLogger(cfg.OTEL.ServiceName, "info", false)
		logger.Warn().Err(err).Msg("invalid log level, using info")
	}
	log.Logger = logger
	if cfgErr != nil {
		log.Error().Err(cfgErr).Msg("invalid configuration, invocations will be rejected")
	}

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telemetry provider")
	}

	ec2Client, err := awsclient.NewEC2(ctx, cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create ec2 client")
	}

	h := &handler{
		client:     ec2Client,
		provider:   provider,
		logger:     logger,
		loadConfig: config.FromEnv,
	}

	lambda.Start(h.invoke)
}

// handler adapts VolumeTuner to the Lambda runtime. Configuration is re-read on
// each invocation so environment changes apply without a cold start.
type handler struct {
	client     tuner.EC2API
	provider   *telemetry.Provider
	logger     zerolog.Logger
	loadConfig func() (*config.Config, error)
}

func (h *handler) invoke(ctx context.Context, raw json.RawMessage) (tuner.Response, error) {
	logger := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With().Str("request_id", lc.AwsRequestID).Logger()
	}
	defer h.flush()

	cfg, err := h.loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return tuner.ErrorResponse(err), nil
	}

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return tuner.ErrorResponse(err), nil
	}

	var recorder tuner.Recorder
	var opts []tuner.Option
	if h.provider != nil {
		recorder = h.provider
		opts = append(opts, tuner.WithTracer(h.provider.Tracer()))
	}
	return tuner.New(h.client, logger, recorder, opts...).Handle(ctx, raw, cfg.Tuning), nil
}

func (h *handler) flush() {
	if h.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := h.provider.Flush(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("telemetry flush failed")
	}
}
