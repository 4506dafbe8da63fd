package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	"github.com/smallbiznis/gymledger/internal/scheduler"
	"github.com/smallbiznis/gymledger/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func recomputeVATCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-vat",
		Short: "Rebuild every entity's VAT-year revenue cache",
		Long: `Runs the recompute_vat job once. When Redis is configured the job
takes the same lock as the scheduler, so a concurrent tick is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				sched     *scheduler.Scheduler
				entitySvc entitydomain.Service
			)
			opts := fx.Options(server.DomainModule, fx.Provide(scheduler.New))
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				if err := sched.RunJob(ctx, scheduler.JobRecomputeVAT); err != nil {
					return err
				}
				entities, err := entitySvc.List(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ENTITY\tTHRESHOLD\tREVENUE\tACTIVE")
				for _, e := range entities {
					fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%t\n", e.Name, e.VatThreshold, e.CurrentRevenue, e.IsActive)
				}
				return w.Flush()
			}, &sched, &entitySvc)
		},
	}
}
