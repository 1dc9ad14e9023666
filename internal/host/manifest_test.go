package host

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

const yamlManifest = `
functions:
  - name: kv.get
    url: https://kv.internal/get
    timeout: 2s
    retries: 2
    headers:
      Authorization: Bearer token
  - name: mail.send
    url: https://mail.internal/send
    method: PUT
`

const tomlManifest = `
[[functions]]
name = "kv.get"
url = "https://kv.internal/get"
timeout = "2s"
retries = 2

[functions.headers]
Authorization = "Bearer token"

[[functions]]
name = "mail.send"
url = "https://mail.internal/send"
method = "PUT"
`

func TestParseManifest(t *testing.T) {
	tests := []struct {
		format string
		data   string
	}{
		{"yaml", yamlManifest},
		{"toml", tomlManifest},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			m, err := ParseManifest([]byte(tt.data), tt.format)
			require.NoError(t, err)
			require.Len(t, m.Functions, 2)

			kv := m.Functions[0]
			assert.Equal(t, "kv.get", kv.Name)
			assert.Equal(t, "https://kv.internal/get", kv.URL)
			assert.Equal(t, Duration(2*time.Second), kv.Timeout)
			assert.Equal(t, 2, kv.Retries)
			assert.Equal(t, map[string]string{"Authorization": "Bearer token"}, kv.Headers)

			assert.Equal(t, "PUT", m.Functions[1].Method)
		})
	}
}

func TestParseManifestRejects(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   string
	}{
		{"missing url", "yaml", "functions:\n  - name: f\n"},
		{"bad url", "yaml", "functions:\n  - name: f\n    url: not a url\n"},
		{"bad method", "yaml", "functions:\n  - name: f\n    url: https://x.test\n    method: TRACE\n"},
		{"too many retries", "toml", "[[functions]]\nname = \"f\"\nurl = \"https://x.test\"\nretries = 50\n"},
		{"bad timeout", "toml", "[[functions]]\nname = \"f\"\nurl = \"https://x.test\"\ntimeout = \"soon\"\n"},
		{"unknown field", "yaml", "functions:\n  - name: f\n    url: https://x.test\n    verb: GET\n"},
		{"duplicate", "yaml", "functions:\n  - name: f\n    url: https://x.test\n  - name: f\n    url: https://y.test\n"},
		{"unknown format", "json", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestLoadManifestByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "funcs.yaml")
	tomlPath := filepath.Join(dir, "funcs.TOML")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlManifest), 0o644))
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlManifest), 0o644))

	for _, path := range []string{yamlPath, tomlPath} {
		m, err := LoadManifest(path)
		require.NoError(t, err, path)
		assert.Len(t, m.Functions, 2)
	}

	_, err := LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestManifestRegister(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest), "yaml")
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Equal(t, []string{"kv.get", "mail.send"}, reg.Names())
	assert.ErrorIs(t, m.Register(reg), ErrDuplicate)
}

func TestWebhookCall(t *testing.T) {
	var got webhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, sonic.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": {"sum": 3}}`))
	}))
	defer srv.Close()

	hook := NewWebhook(FunctionSpec{Name: "add", URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}})
	result, err := hook.Call(context.Background(), protocol.Call{
		Key:           "add",
		Args:          []any{float64(1), float64(2)},
		Idempotent:    true,
		CorrelationID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(3)}, result)

	assert.Equal(t, "add", got.Key)
	assert.Equal(t, []any{float64(1), float64(2)}, got.Args)
	assert.True(t, got.Idempotent)
	assert.Equal(t, "req-1", got.CorrelationID)
}

func TestWebhookFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhook(FunctionSpec{Name: "flaky", URL: srv.URL, Retries: 2})
	_, err := hook.Call(context.Background(), protocol.Call{Key: "flaky"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), hits.Load())

	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	_, err = NewWebhook(FunctionSpec{Name: "missing", URL: notFound.URL, Retries: 2}).Call(context.Background(), protocol.Call{})
	assert.ErrorContains(t, err, "404")
}
