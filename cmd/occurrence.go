package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/model"
)

var occurrenceProjectID string

var occurrenceCmd = &cobra.Command{
	Use:   "occurrence",
	Short: "Enable, disable or delete single occurrences",
}

func setStatusCmd(use string, status model.CalcStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <occurrence-id>...",
		Short: "Mark occurrences " + string(status) + " for EOO/AOO",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			for _, id := range args {
				if err := st.SetCalcStatus(ctx, occurrenceProjectID, id, status); err != nil {
					return eris.Wrapf(err, "set status of %s", id)
				}
			}
			zap.L().Info("occurrence status updated",
				zap.String("project", occurrenceProjectID),
				zap.String("status", string(status)),
				zap.Int("count", len(args)),
			)
			return nil
		},
	}
}

var occurrenceDeleteCmd = &cobra.Command{
	Use:   "delete <occurrence-id>...",
	Short: "Delete occurrences",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, id := range args {
			if err := st.DeleteOccurrence(ctx, occurrenceProjectID, id); err != nil {
				return eris.Wrapf(err, "delete occurrence %s", id)
			}
		}
		zap.L().Info("occurrences deleted",
			zap.String("project", occurrenceProjectID),
			zap.Int("count", len(args)),
		)
		return nil
	},
}

func init() {
	occurrenceCmd.PersistentFlags().StringVarP(&occurrenceProjectID, "project", "p", "", "project id (required)")
	_ = occurrenceCmd.MarkPersistentFlagRequired("project")
	occurrenceCmd.AddCommand(
		setStatusCmd("enable", model.CalcStatusEnabled),
		setStatusCmd("disable", model.CalcStatusDisabled),
		occurrenceDeleteCmd,
	)
	rootCmd.AddCommand(occurrenceCmd)
}
