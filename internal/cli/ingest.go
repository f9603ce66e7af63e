package cli

import (
	"github.com/spf13/cobra"

	appresolution "github.com/regatta/etl/internal/application/resolution"
	"github.com/regatta/etl/internal/domain/resolution"
)

// NewIngestCommand creates the ingest subcommand.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	var entityType string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build candidates from operational and raw source tables",
		Long: `Scan the operational tables and raw import rows, deduplicate them by
stable fingerprint into candidate entities, and record a source link
for every contributing row. Re-running is idempotent: existing
candidates are enriched fill-nulls-only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := resolution.ParseKinds(entityType)
			if err != nil {
				return err
			}
			env, err := setupEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			result, ctrs, err := env.runner.Ingest(cmd.Context(), kinds, rootOpts.DryRun)
			if err != nil {
				return err
			}
			summary := appresolution.BuildIngestReport(ctrs, rootOpts.DryRun, env.cfg.Resolution.WarningLimit)
			return finishRun(env, result, summary)
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "all", "entity type to ingest (club, event, yacht, participant, registration, all)")
	return cmd
}
