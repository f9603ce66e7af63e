package cli

import (
	"errors"

	"github.com/spf13/cobra"

	appresolution "github.com/regatta/etl/internal/application/resolution"
	"github.com/regatta/etl/internal/domain/resolution"
)

// NewScoreCommand creates the score subcommand.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		entityType string
		ruleFile   string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score candidates against the YAML rule sets",
		Long: `Load the rule set for each entity type, compute a quality score per
candidate from its feature vector, route it into auto_promote, review,
hold, or reject, and rewrite the open enrichment recommendations.
Promoted candidates keep their state but get fresh scores.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := resolution.ParseKinds(entityType)
			if err != nil {
				return err
			}
			if ruleFile != "" && len(kinds) != 1 {
				return errors.New("--rules-file requires a single --entity-type")
			}
			env, err := setupEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			result, ctrs, err := env.runner.Score(cmd.Context(), kinds, ruleFile, rootOpts.DryRun)
			if err != nil {
				return err
			}
			summary := appresolution.BuildScoreReport(ctrs, rootOpts.DryRun, env.cfg.Resolution.WarningLimit)
			return finishRun(env, result, summary)
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "all", "entity type to score (club, event, yacht, participant, registration, all)")
	cmd.Flags().StringVar(&ruleFile, "rules-file", "", "explicit rule file path (single entity type only)")
	return cmd
}
