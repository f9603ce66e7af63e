package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	appresolution "github.com/regatta/etl/internal/application/resolution"
	"github.com/regatta/etl/internal/domain/resolution"
)

// NewLifecycleCommand creates the lifecycle subcommand.
func NewLifecycleCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		op            string
		decisionsPath string
	)

	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Apply canonical lifecycle corrections (merge, demote, unlink, split)",
		Long: `Import a CSV of lifecycle corrections:

  merge   folds one canonical into another; candidates relink to the
          kept canonical and its null attributes fill from the merged one
  demote  reverts a promotion; the canonical is deleted when the
          candidate was its only link
  unlink  detaches a candidate without ever deleting the canonical
  split   clones a canonical for a subset of its candidates; rows with
          the same old_canonical_id batch into one split`,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := resolution.ParseDecisionAction(op)
			if err != nil {
				return err
			}
			switch action {
			case resolution.ActionMerge, resolution.ActionDemote, resolution.ActionUnlink, resolution.ActionSplit:
			default:
				return fmt.Errorf("--op must be merge, demote, unlink, or split (got %q)", op)
			}
			env, err := setupEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			result, ctrs, err := env.runner.Lifecycle(cmd.Context(), action, decisionsPath, rootOpts.DryRun)
			if err != nil {
				return err
			}
			summary := appresolution.BuildLifecycleReport(ctrs, rootOpts.DryRun, env.cfg.Resolution.WarningLimit)
			return finishRun(env, result, summary)
		},
	}

	cmd.Flags().StringVar(&op, "op", "", "lifecycle operation: merge, demote, unlink, or split (required)")
	cmd.Flags().StringVar(&decisionsPath, "decisions", "", "path to the lifecycle sheet CSV (required)")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("decisions")
	return cmd
}
