package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StateChange(t *testing.T) {
	raw := json.RawMessage(`{
		"version": "0",
		"id": "7bf73129-1428-4cd3-a780-95db273d1602",
		"detail-type": "EC2 Instance State-change Notification",
		"source": "aws.ec2",
		"account": "123456789012",
		"time": "2024-11-11T21:29:54Z",
		"region": "us-east-1",
		"resources": ["arn:aws:ec2:us-east-1:123456789012:instance/i-abcd1111"],
		"detail": {"instance-id": "i-abcd1111", "state": "running"}
	}`)

	target := Parse(raw)

	assert.True(t, target.HasInstance())
	assert.Equal(t, "i-abcd1111", target.InstanceID)
	assert.Equal(t, "running", target.State)
	assert.Equal(t, StateChangeDetailType, target.DetailType)
}

func TestParse_MinimalEvent(t *testing.T) {
	target := Parse(json.RawMessage(`{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-1"}}`))

	assert.True(t, target.HasInstance())
	assert.Equal(t, "i-1", target.InstanceID)
	assert.Empty(t, target.State)
}

func TestParse_IgnoresUnrelatedFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty time", `{"detail-type":"EC2 Instance State-change Notification","time":"","detail":{"instance-id":"i-1","state":"running"}}`},
		{"resources as string", `{"detail-type":"EC2 Instance State-change Notification","resources":"arn","detail":{"instance-id":"i-1","state":"running"}}`},
		{"numeric account", `{"detail-type":"EC2 Instance State-change Notification","account":123,"detail":{"instance-id":"i-1","state":"running"}}`},
		{"state as object", `{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-1","state":{"name":"running"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Parse(json.RawMessage(tt.raw))
			assert.True(t, target.HasInstance())
			assert.Equal(t, "i-1", target.InstanceID)
		})
	}
}

func TestParse_StateOnlyWhenString(t *testing.T) {
	target := Parse(json.RawMessage(`{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-1","state":{"name":"running"}}}`))
	assert.Empty(t, target.State)

	target = Parse(json.RawMessage(`{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-1","state":"stopped"}}`))
	assert.Equal(t, "stopped", target.State)
}

func TestParse_NoInstance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"null", `null`},
		{"empty object", `{}`},
		{"not json", `not-json`},
		{"array", `[1,2,3]`},
		{"spot fleet", `{"detail-type":"EC2 Spot Fleet Instance Change","detail":{"instance-id":"i-1"}}`},
		{"ec2 fleet", `{"detail-type":"EC2 Fleet Instance Change","detail":{"instance-id":"i-1"}}`},
		{"scheduled", `{"detail-type":"Scheduled Event","detail":{}}`},
		{"missing instance id", `{"detail-type":"EC2 Instance State-change Notification","detail":{"state":"running"}}`},
		{"empty instance id", `{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":""}}`},
		{"detail not object", `{"detail-type":"EC2 Instance State-change Notification","detail":"i-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Parse(json.RawMessage(tt.raw))
			assert.False(t, target.HasInstance())
			assert.Empty(t, target.InstanceID)
		})
	}
}

func TestStateChange_RoundTrip(t *testing.T) {
	raw, err := StateChange("i-xyz", "running")
	require.NoError(t, err)

	target := Parse(raw)
	assert.Equal(t, "i-xyz", target.InstanceID)
	assert.Equal(t, "running", target.State)
}
