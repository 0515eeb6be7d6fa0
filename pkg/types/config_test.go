package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Backend:        BackendSQLite,
		DataDir:        "/tmp/data",
		ListenAddr:     ":8080",
		RequestTimeout: 30 * time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			mutate:  func(c *Config) { c.Backend = "" },
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			mutate:  func(c *Config) { c.Backend = "postgres" },
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid sqlite config",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "memory backend is valid",
			mutate:  func(c *Config) { c.Backend = BackendMemory },
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: nil,
		},
		{
			name:    "empty listen address",
			mutate:  func(c *Config) { c.ListenAddr = "" },
			wantErr: ErrListenAddrEmpty,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.RequestTimeout = 0 },
			wantErr: ErrTimeoutInvalid,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: ErrLogLevelUnknown,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: ErrLogFormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
