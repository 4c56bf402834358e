package tuner

import (
	"fmt"
	"strings"
)

// Response is the invocation result returned to the Lambda runtime.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ErrorResponse reports a configuration failure.
func ErrorResponse(err error) Response {
	return Response{StatusCode: 400, Body: err.Error()}
}

// Result accumulates the volumes modified during one invocation.
type Result struct {
	VolumeIDs []string
	seen      map[string]bool
}

// NewResult returns an empty Result.
func NewResult() *Result {
	return &Result{VolumeIDs: []string{}, seen: make(map[string]bool)}
}

// claim marks a volume as handled. It returns false if the volume was already handled.
func (r *Result) claim(volumeID string) bool {
	if r.seen[volumeID] {
		return false
	}
	r.seen[volumeID] = true
	return true
}

func (r *Result) add(volumeID string) {
	r.VolumeIDs = append(r.VolumeIDs, volumeID)
}

// Count returns the number of modified volumes.
func (r *Result) Count() int {
	return len(r.VolumeIDs)
}

// Summary renders the response body, e.g. "Modified 1 volumes: ['vol-1']".
func (r *Result) Summary() string {
	quoted := make([]string, len(r.VolumeIDs))
	for i, id := range r.VolumeIDs {
		quoted[i] = "'" + id + "'"
	}
	return fmt.Sprintf("Modified %d volumes: [%s]", r.Count(), strings.Join(quoted, ", "))
}
