package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"go.uber.org/zap"
)

// Backfill re-derives missing Invoice and Payment rows from the gateway's
// paid invoices in [Since, Until). It shares mapping and payment creation
// with the live handler but leaves subscription state alone.
func (s *Service) Backfill(ctx context.Context, req domain.BackfillRequest) (*domain.BackfillReport, error) {
	if req.Until.IsZero() {
		req.Until = s.now()
	}
	if req.Since.IsZero() || !req.Since.Before(req.Until) {
		return nil, domain.ErrInvalidBackfill
	}

	invoices, err := s.gateway.ListPaidInvoices(ctx, req.Since, req.Until)
	if err != nil {
		return nil, err
	}

	report := &domain.BackfillReport{
		Since:  req.Since.UTC(),
		Until:  req.Until.UTC(),
		DryRun: req.DryRun,
	}
	for i := range invoices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		inv := &invoices[i]
		report.Scanned++

		if inv.AmountPaid <= 0 {
			report.Skipped++
			continue
		}
		existing, err := s.paymentRepo.FindByGatewayInvoiceID(ctx, s.db, inv.ID)
		if err != nil {
			return report, err
		}
		if existing != nil && existing.Status.Settled() {
			report.Skipped++
			continue
		}

		match, err := s.chain.Resolve(ctx, inv)
		if err != nil {
			if !errors.Is(err, domain.ErrMappingFailed) {
				return report, err
			}
			s.obsMetrics.RecordMappingFailure(ctx, "backfill")
			report.Failed++
			report.Failures = append(report.Failures, domain.BackfillFailure{InvoiceID: inv.ID, Error: err.Error()})
			continue
		}

		if !req.DryRun {
			if _, err := s.recordPaidInvoice(ctx, inv, match.Subscription); err != nil {
				report.Failed++
				report.Failures = append(report.Failures, domain.BackfillFailure{InvoiceID: inv.ID, Error: err.Error()})
				continue
			}
		}
		report.Created++
		report.CreatedFor = append(report.CreatedFor, inv.ID)
	}

	s.log.Info("backfill finished",
		zap.Bool("dry_run", req.DryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("skipped", report.Skipped),
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
