package cli

import (
	"github.com/spf13/cobra"

	appresolution "github.com/regatta/etl/internal/application/resolution"
	"github.com/regatta/etl/internal/domain/resolution"
)

// NewPromoteCommand creates the promote subcommand.
func NewPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	var entityType string

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote auto_promote candidates to canonical entities",
		Long: `Materialize every unpromoted auto_promote candidate as a canonical
row, with a canonical link, per-attribute provenance, and an audit
entry. Entity types always run in dependency order so registrations can
resolve their canonical event, yacht, and participant references.`,
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

			result, ctrs, err := env.runner.Promote(cmd.Context(), kinds, rootOpts.DryRun)
			if err != nil {
				return err
			}
			summary := appresolution.BuildPromoteReport(ctrs, rootOpts.DryRun, env.cfg.Resolution.WarningLimit)
			return finishRun(env, result, summary)
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "all", "entity type to promote (club, event, yacht, participant, registration, all)")
	return cmd
}
