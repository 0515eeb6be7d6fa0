package types

import (
	"errors"
	"time"
)

// Config holds backend selection and server parameters.
type Config struct {
	Backend        string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir        string        `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	ListenAddr     string        `json:"listen_addr" yaml:"listen_addr" mapstructure:"listen_addr"`
	SchemaFile     string        `json:"schema_file" yaml:"schema_file" mapstructure:"schema_file"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	Log            LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
}

// LogConfig selects the log level (debug, info, warn, error) and format
// (text, json).
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrListenAddrEmpty  = errors.New("listen address must not be empty")
	ErrTimeoutInvalid   = errors.New("request timeout must be positive")
	ErrLogLevelUnknown  = errors.New("unknown log level")
	ErrLogFormatUnknown = errors.New("unknown log format")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMemory: true,
}

var (
	knownLogLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	knownLogFormats = map[string]bool{"": true, "text": true, "json": true}
)

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.ListenAddr == "" {
		return ErrListenAddrEmpty
	}
	if c.RequestTimeout <= 0 {
		return ErrTimeoutInvalid
	}
	if !knownLogLevels[c.Log.Level] {
		return ErrLogLevelUnknown
	}
	if !knownLogFormats[c.Log.Format] {
		return ErrLogFormatUnknown
	}
	return nil
}
