package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// clearEnv keeps the developer's environment out of these tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BACKEND", "DATA_DIR", "LISTEN_ADDR", "SCHEMA_FILE", "REQUEST_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(EnvPrefix+"_"+k, "")
		os.Unsetenv(EnvPrefix + "_" + k)
	}
}

func TestLoadWritesDefaultFile(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "cfg")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: sqlite")
}

func TestLoadKeepsExistingFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := `backend: memory
data_dir: /var/lib/graphctx
listen_addr: ":9090"
schema_file: schema.yaml
request_timeout: 5s
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.Config{
		Backend:        types.BackendMemory,
		DataDir:        "/var/lib/graphctx",
		ListenAddr:     ":9090",
		SchemaFile:     "schema.yaml",
		RequestTimeout: 5 * time.Second,
		Log:            types.LogConfig{Level: "debug", Format: "json"},
	}, cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("GRAPHCTX_BACKEND", "memory")
	t.Setenv("GRAPHCTX_LOG_LEVEL", "warn")
	t.Setenv("GRAPHCTX_REQUEST_TIMEOUT", "250ms")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.BackendMemory, cfg.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown backend", "backend: postgres\n", types.ErrBackendUnknown},
		{"zero timeout", "request_timeout: 0s\n", types.ErrTimeoutInvalid},
		{"bad log level", "log:\n  level: loud\n", types.ErrLogLevelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(tt.yaml), 0o644))
			_, err := Load(dir)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("backend: [unterminated\n"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}
