package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/gymledger/internal/clock"
	reconciliationdomain "github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"github.com/smallbiznis/gymledger/internal/server"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func backfillCmd() *cobra.Command {
	var (
		since  string
		until  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Record payments for paid gateway invoices the webhooks missed",
		Example: `  gymledger backfill --since 2025-02-01 --until 2025-03-01 --dry-run
  gymledger backfill`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				recon reconciliationdomain.Service
				clk   clock.Clock
			)
			return runOnce(cmd.Context(), server.DomainModule, func(ctx context.Context) error {
				req, err := backfillWindow(clk.Now().UTC(), since, until)
				if err != nil {
					return err
				}
				req.DryRun = dryRun

				report, err := recon.Backfill(ctx, req)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d invoice(s) could not be reconciled", report.Failed)
				}
				return nil
			}, &recon, &clk)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "window start date (YYYY-MM-DD), default 30 days before --until")
	cmd.Flags().StringVar(&until, "until", "", "window end date (YYYY-MM-DD, exclusive), default now")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be created without writing")

	return cmd
}

func backfillWindow(now time.Time, since, until string) (reconciliationdomain.BackfillRequest, error) {
	req := reconciliationdomain.BackfillRequest{Until: now}
	if until != "" {
		parsed, err := time.Parse(dateLayout, until)
		if err != nil {
			return req, fmt.Errorf("invalid --until: %w", err)
		}
		req.Until = parsed.UTC()
	}
	req.Since = req.Until.AddDate(0, 0, -30)
	if since != "" {
		parsed, err := time.Parse(dateLayout, since)
		if err != nil {
			return req, fmt.Errorf("invalid --since: %w", err)
		}
		req.Since = parsed.UTC()
	}
	return req, nil
}
