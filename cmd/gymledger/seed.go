package main

import (
	"context"

	"github.com/smallbiznis/gymledger/internal/entity"
	"github.com/smallbiznis/gymledger/internal/migration"
	"github.com/smallbiznis/gymledger/internal/registration"
	"github.com/smallbiznis/gymledger/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func seedEntitiesCmd() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "seed-entities",
		Short: "Create business entities, service catalog and membership plans",
		Long: `Applies a seed manifest (yaml or json). Existing entities, catalog
rows and plans are left untouched, so the command can be rerun safely.
Without --file a two-entity default set is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := seed.LoadManifest(manifestPath)
			if err != nil {
				return err
			}

			var seeder *seed.Seeder
			opts := fx.Options(
				migration.Module,
				entity.Module,
				registration.Module,
				fx.Provide(seed.New),
			)
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				report, err := seeder.Apply(ctx, manifest)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			}, &seeder)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "seed manifest path")
	return cmd
}
