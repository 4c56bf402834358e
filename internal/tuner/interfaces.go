package tuner

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2API defines the EC2 operations used by the tuner.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	ModifyVolume(ctx context.Context, params *ec2.ModifyVolumeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVolumeOutput, error)
}

// Skip reasons reported to the Recorder.
const (
	SkipNotFound    = "not_found"
	SkipTerminated  = "terminated"
	SkipTagMismatch = "tag_mismatch"
	SkipNotGP3      = "not_gp3"
	SkipDuplicate   = "duplicate"
)

// Invocation modes.
const (
	ModeInstance  = "instance"
	ModeDiscovery = "discovery"
	ModeRejected  = "rejected"
)

// Recorder receives tuning telemetry.
type Recorder interface {
	RecordModified(ctx context.Context)
	RecordSkipped(ctx context.Context, reason string)
	RecordAPIError(ctx context.Context, operation string)
	RecordInvocation(ctx context.Context, mode string, d time.Duration, modified int)
}

type nopRecorder struct{}

func (nopRecorder) RecordModified(context.Context) {}
func (nopRecorder) RecordSkipped(context.Context, string) {}
func (nopRecorder) RecordAPIError(context.Context, string) {}
func (nopRecorder) RecordInvocation(context.Context, string, time.Duration, int) {}
