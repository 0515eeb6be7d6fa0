package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/graphctx/pkg/graph"
)

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the graphd version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.printResult(cmd.OutOrStdout(),
				map[string]string{"version": graph.Version, "revision": graph.Revision},
				"graphd "+graph.Version+" ("+graph.Revision+")")
		},
	}
}
