package cli

import (
	"errors"

	"github.com/spf13/cobra"

	appresolution "github.com/regatta/etl/internal/application/resolution"
	"github.com/regatta/etl/internal/domain/resolution"
)

// NewLineageCommand creates the lineage subcommand.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		entityType   string
		canonicalPct float64
		sourcePct    float64
		purgeCheck   bool
	)

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Measure candidate and source coverage for purge readiness",
		Long: `Compute the share of candidates promoted to canonical entities per
entity type and record a lineage_coverage_snapshot row. With
--purge-check the thresholds tighten to 95% and the command exits
non-zero when any entity type fails, gating deletion of legacy source
tables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := resolution.ParseKinds(entityType)
			if err != nil {
				return err
			}
			if purgeCheck {
				if !cmd.Flags().Changed("canonical-threshold") {
					canonicalPct = 95.0
				}
				if !cmd.Flags().Changed("source-threshold") {
					sourcePct = 95.0
				}
			}
			env, err := setupEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			result, results, err := env.runner.Lineage(cmd.Context(), kinds, canonicalPct, sourcePct, rootOpts.DryRun)
			if err != nil {
				return err
			}
			summary := appresolution.BuildLineageReport(results, rootOpts.DryRun)
			if err := finishRun(env, result, summary); err != nil {
				return err
			}
			if purgeCheck && !appresolution.AllPassed(results) {
				return errors.New("purge check failed: coverage thresholds not met")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "all", "entity type to measure (club, event, yacht, participant, registration, all)")
	cmd.Flags().Float64Var(&canonicalPct, "canonical-threshold", 90.0, "minimum percent of candidates that must be promoted")
	cmd.Flags().Float64Var(&sourcePct, "source-threshold", 90.0, "minimum percent of source rows that must be linked (when measurable)")
	cmd.Flags().BoolVar(&purgeCheck, "purge-check", false, "fail when thresholds are not met (defaults tighten to 95)")
	return cmd
}
