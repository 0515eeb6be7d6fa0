package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/graphctx/internal/schemafile"
)

type schemaCheckResult struct {
	File          string `json:"file"`
	EntityTypes   int    `json:"entity_types"`
	RelationTypes int    `json:"relation_types"`
}

func newSchemaCmd(flags *rootFlags) *cobra.Command {
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Work with schema documents",
	}
	schema.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML schema document without registering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaCheck(cmd, flags, args[0])
		},
	})
	return schema
}

// runSchemaCheck needs no storage: the document must be consistent on its
// own.
func runSchemaCheck(cmd *cobra.Command, flags *rootFlags, path string) error {
	doc, err := schemafile.Load(path)
	if err != nil {
		return userError(err)
	}
	if err := schemafile.Check(doc, nil); err != nil {
		return userError(fmt.Errorf("%s: %w", path, err))
	}
	res := schemaCheckResult{File: path, EntityTypes: len(doc.EntityTypes), RelationTypes: len(doc.RelationTypes)}
	return flags.printResult(cmd.OutOrStdout(), res,
		fmt.Sprintf("%s: ok (%d entity types, %d relation types)", path, res.EntityTypes, res.RelationTypes))
}
