package cli

import (
	"github.com/spf13/cobra"

	appresolution "github.com/regatta/etl/internal/application/resolution"
)

// NewManualApplyCommand creates the manual-apply subcommand.
func NewManualApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		decisionsPath string
		rescore       bool
		validateOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "manual-apply",
		Short: "Apply a reviewer decision sheet (promote, reject, hold)",
		Long: `Import a CSV of human review decisions. Each row promotes, rejects,
or holds one candidate with audit logging. Promotes are blocked unless
the candidate sits in review or hold and is not yet promoted;
reject and hold never touch a promoted candidate.

Required columns: candidate_entity_type, candidate_entity_id, action, actor.
Optional: reason_code (defaults to manual_review).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			result, ctrs, err := env.runner.ManualApply(cmd.Context(), decisionsPath, rescore, validateOnly, rootOpts.DryRun)
			if err != nil {
				return err
			}
			summary := appresolution.BuildManualApplyReport(ctrs, rootOpts.DryRun, env.cfg.Resolution.WarningLimit)
			return finishRun(env, result, summary)
		},
	}

	cmd.Flags().StringVar(&decisionsPath, "decisions", "", "path to the decision sheet CSV (required)")
	cmd.Flags().BoolVar(&rescore, "rescore", false, "re-score entity types that had successful promotes")
	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "parse and validate the sheet without applying")
	_ = cmd.MarkFlagRequired("decisions")
	return cmd
}
