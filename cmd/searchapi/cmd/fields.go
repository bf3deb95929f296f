package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/output"
)

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <index-id>",
		Short: "List the fields an index can be configured with",
		Long: `List every field the datasources of an index provide. Fields the index
already indexes are marked with '*'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			o, err := a.manager.Index(args[0])
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Fields(o.Mapping(), o.Fields())
			for _, w := range o.Warnings() {
				out.Warning(w)
			}
			return nil
		},
	}
}
