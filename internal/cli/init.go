package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/graphctx/pkg/graph"
)

type initResult struct {
	ConfigDir string `json:"config_dir"`
	DataDir   string `json:"data_dir"`
	Backend   string `json:"backend"`
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize graphd configuration and storage",
		Long: "Create the configuration directory with a default config.yaml, then\n" +
			"open and close the configured storage backend so its files exist.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, flags)
		},
	}
}

// runInit is idempotent: an existing config.yaml and existing data are kept.
func runInit(cmd *cobra.Command, flags *rootFlags) error {
	env, err := flags.loadEnvironment()
	if err != nil {
		return err
	}

	st, err := graph.OpenStorage(env.cfg, env.storageDir())
	if err != nil {
		return sysError(fmt.Errorf("initialize storage: %w", err))
	}
	if err := st.Close(); err != nil {
		return sysError(fmt.Errorf("finalize storage: %w", err))
	}

	res := initResult{ConfigDir: env.configDir, DataDir: env.storageDir(), Backend: env.cfg.Backend}
	text := fmt.Sprintf("graphd initialized\n  config:  %s\n  backend: %s", res.ConfigDir, res.Backend)
	if res.DataDir != "" {
		text += "\n  data:    " + res.DataDir
	}
	return flags.printResult(cmd.OutOrStdout(), res, text)
}
