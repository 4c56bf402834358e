package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/ebs-tuner/internal/daemon"
	"github.com/yairfalse/ebs-tuner/internal/event"
	"github.com/yairfalse/ebs-tuner/internal/tuner"
)

type fakeHealth struct {
	passes int64
}

func (f *fakeHealth) Health() daemon.HealthStatus {
	return daemon.HealthStatus{Status: "healthy", Passes: f.passes}
}

func (f *fakeHealth) PassCount() int64 { return f.passes }

func TestHandleHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handleHealthz(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestHandleReadyz_NoPasses(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handleReadyz(w, req, &fakeHealth{})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no discovery pass completed", w.Body.String())
}

func TestHandleReadyz_AfterPass(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handleReadyz(w, req, &fakeHealth{passes: 1})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestNewMux_Health(t *testing.T) {
	srv := httptest.NewServer(newMux(&fakeHealth{passes: 3}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health daemon.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int64(3), health.Passes)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestReadEvent_None(t *testing.T) {
	raw, err := readEvent(strings.NewReader(""), "", "")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestReadEvent_InstanceID(t *testing.T) {
	raw, err := readEvent(strings.NewReader(""), "", "i-0abc")
	require.NoError(t, err)

	target := event.Parse(raw)
	assert.True(t, target.HasInstance())
	assert.Equal(t, "i-0abc", target.InstanceID)
}

func TestReadEvent_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	content := `{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-file"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	raw, err := readEvent(strings.NewReader(""), path, "")
	require.NoError(t, err)

	assert.Equal(t, "i-file", event.Parse(raw).InstanceID)
}

func TestReadEvent_Stdin(t *testing.T) {
	stdin := strings.NewReader(`{"detail-type":"EC2 Instance State-change Notification","detail":{"instance-id":"i-stdin"}}`)

	raw, err := readEvent(stdin, "-", "")
	require.NoError(t, err)

	assert.Equal(t, "i-stdin", event.Parse(raw).InstanceID)
}

func TestReadEvent_MissingFile(t *testing.T) {
	_, err := readEvent(strings.NewReader(""), "/nonexistent/event.json", "")
	require.Error(t, err)
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResponse(&buf, tuner.Response{StatusCode: 200, Body: "Modified 0 volumes: []"}))

	assert.JSONEq(t, `{"statusCode":200,"body":"Modified 0 volumes: []"}`, buf.String())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuner.toml")
	require.NoError(t, os.WriteFile(path, []byte("[tuning]\ntag_value = \"prod\"\n"), 0644))

	configPath = path
	defer func() { configPath = "" }()

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Tuning.TagValue)
}

func TestRespond_Rejected(t *testing.T) {
	var buf bytes.Buffer
	err := respond(&buf, tuner.Response{StatusCode: 400, Body: "tuning: iops must be positive (got 0)"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "iops must be positive")
	assert.Contains(t, buf.String(), `"statusCode": 400`)
}

func TestRespond_OK(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, respond(&buf, tuner.Response{StatusCode: 200, Body: "Modified 0 volumes: []"}))
}
