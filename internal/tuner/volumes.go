package tuner

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/ebs-tuner/internal/config"
)

// ModifyVolumeIfEligible sets throughput and IOPS on a gp3 volume. Other volume
// types are left alone. Each volume is considered once per Result.
func (t *VolumeTuner) ModifyVolumeIfEligible(ctx context.Context, volumeID string, cfg config.TuningConfig, result *Result) {
	logger := t.log(ctx).With().Str("volume_id", volumeID).Logger()

	if !result.claim(volumeID) {
		logger.Debug().Msg("volume already handled in this invocation")
		t.recorder.RecordSkipped(ctx, SkipDuplicate)
		return
	}

	ctx, span := t.tracer.Start(ctx, "tuner.ModifyVolumeIfEligible",
		trace.WithAttributes(attribute.String("volume.id", volumeID)))
	defer span.End()

	output, err := t.ec2Client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	})
	if err != nil {
		t.apiError(ctx, span, "DescribeVolumes", err)
		logger.Error().Err(err).Msg("error getting volume info")
		return
	}
	if len(output.Volumes) == 0 {
		logger.Error().Msg("volume not returned by describe volumes")
		t.recorder.RecordSkipped(ctx, SkipNotFound)
		return
	}

	volumeType := output.Volumes[0].VolumeType
	span.SetAttributes(attribute.String("volume.type", string(volumeType)))

	if volumeType != ec2types.VolumeTypeGp3 {
		logger.Info().Str("volume_type", string(volumeType)).Msg("skipping volume (not gp3)")
		t.recorder.RecordSkipped(ctx, SkipNotGP3)
		return
	}

	logger.Info().Msg("modifying volume")
	_, err = t.ec2Client.ModifyVolume(ctx, &ec2.ModifyVolumeInput{
		VolumeId:   aws.String(volumeID),
		Throughput: aws.Int32(cfg.Throughput),
		Iops:       aws.Int32(cfg.IOPS),
	})
	if err != nil {
		t.apiError(ctx, span, "ModifyVolume", err)
		logger.Error().Err(err).Msg("error modifying volume")
		return
	}

	result.add(volumeID)
	t.recorder.RecordModified(ctx)
	logger.Info().
		Int32("throughput", cfg.Throughput).
		Int32("iops", cfg.IOPS).
		Msg("successfully modified volume")
}
