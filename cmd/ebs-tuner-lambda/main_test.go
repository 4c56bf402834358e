package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/ebs-tuner/internal/config"
)

type stubEC2 struct {
	calls int
}

func (s *stubEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	s.calls++
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{Instances: []types.Instance{{
			InstanceId: aws.String("i-1"),
			State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
			BlockDeviceMappings: []types.InstanceBlockDeviceMapping{{
				Ebs: &types.EbsInstanceBlockDevice{VolumeId: aws.String("vol-1")},
			}},
		}}}},
	}, nil
}

func (s *stubEC2) DescribeVolumes(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	s.calls++
	return &ec2.DescribeVolumesOutput{
		Volumes: []types.Volume{{VolumeId: aws.String("vol-1"), VolumeType: types.VolumeTypeGp3}},
	}, nil
}

func (s *stubEC2) ModifyVolume(_ context.Context, _ *ec2.ModifyVolumeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVolumeOutput, error) {
	s.calls++
	return &ec2.ModifyVolumeOutput{}, nil
}

func newTestHandler(client *stubEC2, load func() (*config.Config, error)) *handler {
	return &handler{client: client, logger: zerolog.Nop(), loadConfig: load}
}

func TestInvoke_StateChangeEvent(t *testing.T) {
	client := &stubEC2{}
	h := newTestHandler(client, func() (*config.Config, error) {
		return &config.Config{Tuning: config.TuningConfig{TagKey: "stack", TagValue: "prod", Throughput: 125, IOPS: 3000}}, nil
	})

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	raw := json.RawMessage(`{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-1"}}`)

	resp, err := h.invoke(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Modified 1 volumes: ['vol-1']", resp.Body)
}

func TestInvoke_ConfigLoadError(t *testing.T) {
	client := &stubEC2{}
	h := newTestHandler(client, func() (*config.Config, error) {
		return nil, errors.New("THROUGHPUT_VALUE must be an integer (got \"fast\")")
	})

	resp, err := h.invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, resp.Body, "THROUGHPUT_VALUE")
	assert.Zero(t, client.calls)
}

func TestInvoke_MissingTagValueFromEnv(t *testing.T) {
	t.Setenv(config.EnvTagValue, "")
	client := &stubEC2{}
	h := newTestHandler(client, config.FromEnv)

	resp, err := h.invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "TARGET_EC2_TAG_VALUE environment variable is not set", resp.Body)
	assert.Zero(t, client.calls)
}

func TestInvoke_NonPositiveThroughput(t *testing.T) {
	t.Setenv(config.EnvTagValue, "prod")
	t.Setenv(config.EnvThroughput, "0")
	client := &stubEC2{}
	h := newTestHandler(client, config.FromEnv)

	raw := json.RawMessage(`{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-1"}}`)
	resp, err := h.invoke(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, resp.Body, "throughput must be positive")
	assert.Zero(t, client.calls)
}
