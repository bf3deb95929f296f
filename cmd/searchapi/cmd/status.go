package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/index"
	"github.com/Aman-CERP/searchapi/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [index-id...]",
		Short: "Show indexing progress of each index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			targets, err := a.indexes(args)
			if err != nil {
				return err
			}
			statuses := make([]index.Status, 0, len(targets))
			for _, o := range targets {
				st, err := o.Status(cmd.Context())
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), !colorOutput(cmd))
			if jsonOutput {
				return r.RenderJSON(statuses)
			}
			return r.Render(statuses)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

// colorOutput reports whether output may be colored: a terminal, and
// neither --no-color nor NO_COLOR.
func colorOutput(cmd *cobra.Command) bool {
	return !noColor && ui.IsTTY(cmd.OutOrStdout()) && !ui.DetectNoColor()
}
