// Package config loads graphd configuration with viper.
//
// Values come from config.yaml in the configuration directory, overridden
// by GRAPHCTX_* environment variables (GRAPHCTX_LOG_LEVEL for log.level).
// A commented default file is written on first run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	// FileName is the configuration file inside the config directory.
	FileName = "config.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "GRAPHCTX"
)

// Config keys.
const (
	KeyBackend        = "backend"
	KeyDataDir        = "data_dir"
	KeyListenAddr     = "listen_addr"
	KeySchemaFile     = "schema_file"
	KeyRequestTimeout = "request_timeout"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
)

// Defaults.
const (
	DefaultBackend        = types.BackendSQLite
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultRequestTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

const defaultConfigYAML = `# graphd configuration

# Storage backend: sqlite or memory
backend: sqlite

# Data directory (optional; overridable by --data-dir)
# data_dir:

# HTTP listen address
listen_addr: "127.0.0.1:8080"

# Schema document registered at startup (optional)
# schema_file: schema.yaml

# Per-request deadline
request_timeout: 30s

log:
  level: info   # debug, info, warn, error
  format: text  # text, json
`

// ErrInvalid marks a config file that cannot be parsed or fails
// validation, as opposed to one that cannot be reached on disk.
var ErrInvalid = errors.New("invalid config")

// Default returns the built-in configuration.
func Default() types.Config {
	return types.Config{
		Backend:        DefaultBackend,
		ListenAddr:     DefaultListenAddr,
		RequestTimeout: DefaultRequestTimeout,
		Log:            types.LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads config.yaml from configDir, creating the directory and a
// default file if missing, applies environment overrides and validates the
// result.
func Load(configDir string) (types.Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return types.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := EnsureDefaultFile(configDir); err != nil {
		return types.Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := newViper()
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("%w: read %s: %w", ErrInvalid, FileName, err)
		}
	}
	return decode(v)
}

// EnsureDefaultFile writes the default config.yaml into configDir unless a
// file is already there.
func EnsureDefaultFile(configDir string) error {
	path := filepath.Join(configDir, FileName)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyBackend, d.Backend)
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyListenAddr, d.ListenAddr)
	v.SetDefault(KeySchemaFile, "")
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}
