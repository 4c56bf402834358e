// Package event extracts tuning targets from EventBridge notifications.
package event

import (
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

const (
	// StateChangeDetailType is the EventBridge detail-type for EC2 instance state changes.
	StateChangeDetailType = "EC2 Instance State-change Notification"

	source = "aws.ec2"
)

// StateChangeDetail is the detail payload of an EC2 state-change notification.
type StateChangeDetail struct {
	InstanceID string `json:"instance-id"`
	State      string `json:"state"`
}

// Target is what an invocation event points at.
type Target struct {
	DetailType string
	InstanceID string
	State      string
}

// HasInstance reports whether the event named a specific instance.
func (t Target) HasInstance() bool {
	return t.InstanceID != ""
}

// envelope holds the only EventBridge fields that select a target. The rest of the
// event is never decoded, so malformed time, account or resources fields are ignored.
type envelope struct {
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`
}

type instanceDetail struct {
	InstanceID string          `json:"instance-id"`
	State      json.RawMessage `json:"state"`
}

// Parse decodes an EventBridge envelope. Only state-change notifications yield an
// instance ID; every other shape, including undecodable input, yields an empty Target
// so callers fall back to tag discovery.
func Parse(raw json.RawMessage) Target {
	if len(raw) == 0 {
		return Target{}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Target{}
	}

	t := Target{DetailType: env.DetailType}
	if env.DetailType != StateChangeDetailType || len(env.Detail) == 0 {
		return t
	}

	var detail instanceDetail
	if err := json.Unmarshal(env.Detail, &detail); err != nil {
		return t
	}
	t.InstanceID = detail.InstanceID
	t.State = stateName(detail.State)
	return t
}

// stateName returns the state only when it is a plain string; it is informational.
func stateName(raw json.RawMessage) string {
	var state string
	if err := json.Unmarshal(raw, &state); err != nil {
		return ""
	}
	return state
}

// StateChange builds a synthetic state-change event for instanceID.
func StateChange(instanceID, state string) (json.RawMessage, error) {
	detail, err := json.Marshal(StateChangeDetail{InstanceID: instanceID, State: state})
	if err != nil {
		return nil, err
	}
	return json.Marshal(events.CloudWatchEvent{
		Version:    "0",
		DetailType: StateChangeDetailType,
		Source:     source,
		Time:       time.Now().UTC(),
		Resources:  []string{},
		Detail:     detail,
	})
}
