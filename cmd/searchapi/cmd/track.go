package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
	"github.com/Aman-CERP/searchapi/internal/output"
)

func newTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Report item changes of a datasource",
		Long: `Report inserted, updated or deleted items of a datasource to every
index covering it. Indexes with index_directly set index the items at once.`,
	}

	var all bool
	update := &cobra.Command{
		Use:   "update <datasource-id> [raw-id...]",
		Short: "Report changed items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd, "updated", args[0], args[1:], all)
		},
	}
	update.Flags().BoolVar(&all, "all", false, "Report every item of the datasource")

	cmd.AddCommand(&cobra.Command{
		Use:   "insert <datasource-id> <raw-id...>",
		Short: "Report new items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd, "inserted", args[0], args[1:], false)
		},
	})
	cmd.AddCommand(update)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <datasource-id> <raw-id...>",
		Short: "Report deleted items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd, "deleted", args[0], args[1:], false)
		},
	})

	return cmd
}

func runTrack(cmd *cobra.Command, change, dsID string, raw []string, all bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if all {
		ds, err := a.datasource(dsID)
		if err != nil {
			return err
		}
		if raw, err = ds.ItemIDs(ctx); err != nil {
			return errors.New(errors.ErrCodeDatasource, fmt.Sprintf("datasource %q: failed to list items", dsID), err)
		}
	}
	if len(raw) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "no item ids given", nil).
			WithSuggestion("Pass raw item ids or use --all")
	}

	var reports []index.Report
	switch change {
	case "inserted":
		reports, err = a.manager.TrackItemsInserted(ctx, dsID, raw)
	case "updated":
		reports, err = a.manager.TrackItemsUpdated(ctx, dsID, raw)
	case "deleted":
		err = a.manager.TrackItemsDeleted(ctx, dsID, raw)
	}
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("%d item(s) of %s %s for %d index(es)", len(raw), dsID, change, len(a.manager.IndexesFor(dsID)))
	for _, r := range reports {
		out.Statusf("", "%s: %d indexed, %d rejected", r.Index, r.Succeeded, r.Rejected)
	}
	return nil
}
