// Package cli implements the graphd command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/graphctx/internal/config"
	"github.com/mesh-intelligence/graphctx/internal/paths"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the exit code a command failed with.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }
func sysError(err error) error  { return &exitError{code: exitSysError, err: err} }

// exitCode maps a command error to the process exit code. Errors that do
// not carry a code come from cobra itself (bad flags, wrong arguments).
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// NewRootCmd creates the top-level "graphd" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:   "graphd",
		Short: "A typed graph context store served over HTTP",
		Long: "graphd stores typed entities and relations, validates them against\n" +
			"registered types, and serves queries and traversals over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (env "+paths.EnvDataDir+")")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd(&flags))
	root.AddCommand(newInitCmd(&flags))
	root.AddCommand(newServeCmd(&flags))
	root.AddCommand(newSchemaCmd(&flags))
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "graphd:", err)
	}
	os.Exit(exitCode(err))
}

// environment is the resolved configuration a command runs with.
type environment struct {
	configDir string
	dataDir   string
	// explicitDataDir is false when dataDir is only the platform default.
	// The memory backend then stays purely in memory.
	explicitDataDir bool
	cfg             types.Config
}

// loadEnvironment resolves the config directory, loads config.yaml from it
// and resolves the data directory: --data-dir > config data_dir >
// GRAPHCTX_DATA_DIR > platform default.
func (f *rootFlags) loadEnvironment() (environment, error) {
	configDir, err := paths.ResolveConfigDir(f.configDir)
	if err != nil {
		return environment{}, sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return environment{}, userError(err)
		}
		return environment{}, sysError(err)
	}
	dataDir, err := paths.ResolveDataDir(f.dataDir, cfg.DataDir)
	if err != nil {
		return environment{}, sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	return environment{
		configDir:       configDir,
		dataDir:         dataDir,
		explicitDataDir: f.dataDir != "" || cfg.DataDir != "" || os.Getenv(paths.EnvDataDir) != "",
		cfg:             cfg,
	}, nil
}

// storageDir is the data directory handed to the backend.
func (e environment) storageDir() string {
	if e.cfg.Backend == types.BackendMemory && !e.explicitDataDir {
		return ""
	}
	return e.dataDir
}

// printResult writes v as indented JSON in --json mode and text otherwise.
func (f *rootFlags) printResult(w io.Writer, v any, text string) error {
	if !f.jsonMode {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
