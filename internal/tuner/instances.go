package tuner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/ebs-tuner/internal/config"
)

// ProcessInstance tunes the volumes of one instance if it exists, is not terminated
// and carries the configured tag.
func (t *VolumeTuner) ProcessInstance(ctx context.Context, instanceID string, cfg config.TuningConfig, result *Result) {
	ctx, span := t.tracer.Start(ctx, "tuner.ProcessInstance",
		trace.WithAttributes(attribute.String("instance.id", instanceID)))
	defer span.End()

	logger := t.log(ctx).With().Str("instance_id", instanceID).Logger()

	output, err := t.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		t.apiError(ctx, span, "DescribeInstances", err)
		logger.Error().Err(err).Msg("error processing instance")
		return
	}

	instance, ok := firstInstance(output)
	if !ok {
		logger.Info().Msg("instance not found")
		t.recorder.RecordSkipped(ctx, SkipNotFound)
		return
	}

	if instance.State != nil && instance.State.Name == ec2types.InstanceStateNameTerminated {
		logger.Info().Msg("instance is terminated, skipping")
		t.recorder.RecordSkipped(ctx, SkipTerminated)
		return
	}

	tagged, err := t.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
		Filters:     tagFilter(cfg),
	})
	if err != nil {
		t.apiError(ctx, span, "DescribeInstances", err)
		logger.Error().Err(err).Msg("error processing instance")
		return
	}

	instance, ok = firstInstance(tagged)
	if !ok {
		logger.Info().
			Str("tag_key", cfg.TagKey).
			Str("tag_value", cfg.TagValue).
			Msg("instance does not have the required tag")
		t.recorder.RecordSkipped(ctx, SkipTagMismatch)
		return
	}

	logger.Info().Msg("processing instance")
	for _, volumeID := range AttachedVolumeIDs(instance) {
		t.ModifyVolumeIfEligible(ctx, volumeID, cfg, result)
	}
}

// DiscoverAndProcess tunes the volumes of every instance carrying the configured tag.
// Instance state is not checked. A failed query leaves result untouched.
func (t *VolumeTuner) DiscoverAndProcess(ctx context.Context, cfg config.TuningConfig, result *Result) {
	ctx, span := t.tracer.Start(ctx, "tuner.DiscoverAndProcess",
		trace.WithAttributes(
			attribute.String("tag.key", cfg.TagKey),
			attribute.String("tag.value", cfg.TagValue),
		))
	defer span.End()

	logger := t.log(ctx)

	instances, err := t.findTaggedInstances(ctx, cfg)
	if err != nil {
		t.apiError(ctx, span, "DescribeInstances", err)
		logger.Error().Err(err).Msg("error finding and processing instances")
		return
	}

	span.SetAttributes(attribute.Int("instances.found", len(instances)))
	logger.Info().Int("count", len(instances)).Msg("found tagged instances")

	for _, instance := range instances {
		logger.Info().Str("instance_id", aws.ToString(instance.InstanceId)).Msg("processing instance")
		for _, volumeID := range AttachedVolumeIDs(instance) {
			t.ModifyVolumeIfEligible(ctx, volumeID, cfg, result)
		}
	}
}

// findTaggedInstances collects every page before returning so a failure on any
// page yields no instances at all.
func (t *VolumeTuner) findTaggedInstances(ctx context.Context, cfg config.TuningConfig) ([]ec2types.Instance, error) {
	var instances []ec2types.Instance

	paginator := ec2.NewDescribeInstancesPaginator(t.ec2Client, &ec2.DescribeInstancesInput{
		Filters: tagFilter(cfg),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range output.Reservations {
			instances = append(instances, reservation.Instances...)
		}
	}

	return instances, nil
}

// AttachedVolumeIDs returns the EBS volume IDs from an instance's block-device mappings.
func AttachedVolumeIDs(instance ec2types.Instance) []string {
	var ids []string
	for _, mapping := range instance.BlockDeviceMappings {
		if mapping.Ebs == nil {
			continue
		}
		if id := aws.ToString(mapping.Ebs.VolumeId); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func tagFilter(cfg config.TuningConfig) []ec2types.Filter {
	return []ec2types.Filter{{
		Name:   aws.String(cfg.TagFilterName()),
		Values: []string{cfg.TagValue},
	}}
}

func firstInstance(output *ec2.DescribeInstancesOutput) (ec2types.Instance, bool) {
	if output == nil || len(output.Reservations) == 0 || len(output.Reservations[0].Instances) == 0 {
		return ec2types.Instance{}, false
	}
	return output.Reservations[0].Instances[0], true
}
