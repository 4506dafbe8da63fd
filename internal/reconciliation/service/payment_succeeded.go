package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	notificationdomain "github.com/smallbiznis/gymledger/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"go.uber.org/zap"
)

const paymentLabel = "Membership payment"

// HandlePaymentSucceeded records a paid invoice exactly once and restores
// access for the subscription it belongs to.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, inv *gatewaydomain.Invoice) error {
	if inv.AmountPaid <= 0 {
		s.log.Debug("ignoring zero amount invoice", zap.String("invoice_id", inv.ID))
		return nil
	}

	match, err := s.resolve(ctx, gatewaydomain.EventInvoicePaymentSucceeded, inv)
	if err != nil {
		return err
	}
	sub := match.Subscription

	replayed, err := s.recordPaidInvoice(ctx, inv, sub)
	if err != nil {
		return err
	}
	if replayed {
		return s.retryDunningClear(ctx, inv, sub)
	}

	now := s.now()
	s.transition(sub, subscriptiondomain.TriggerPaymentSucceeded)
	sub.Provisional = false
	// One-off proration invoices carry no subscription period.
	if inv.SubscriptionID != "" {
		if inv.PeriodStart != nil {
			sub.CurrentPeriodStart = inv.PeriodStart
		}
		if inv.PeriodEnd != nil {
			sub.CurrentPeriodEnd = inv.PeriodEnd
			sub.NextBillingDate = inv.PeriodEnd
		}
		if subscriptiondomain.IsPlaceholderGatewayID(sub.GatewaySubscriptionID) {
			sub.GatewaySubscriptionID = inv.SubscriptionID
		}
	}
	sub.UpdatedAt = now
	if err := s.subRepo.Update(ctx, s.db, sub); err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if err := s.restoreAccess(ctx, inv, sub, now); err != nil {
		return err
	}

	s.log.Info("invoice payment recorded",
		zap.String("invoice_id", inv.ID),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("status", string(sub.Status)),
		zap.Int64("amount_paid", inv.AmountPaid),
	)
	return nil
}

// restoreAccess clears the dunning flag before re-deriving membership status,
// so a failed clear leaves members suspended and the event retryable.
func (s *Service) restoreAccess(ctx context.Context, inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription, now time.Time) error {
	cleared, err := s.settingSvc.ClearDunningSuspended(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("clear dunning flag for %s: %w", sub.ID, err)
	}
	if err := s.syncMemberships(ctx, sub, false, now); err != nil {
		return err
	}
	if cleared {
		s.obsMetrics.RecordDunningEscalation(ctx, "recovered")
		s.notify(ctx, notificationdomain.KindRecovered, sub, func(n *notificationdomain.Notice) {
			n.Amount = gatewaydomain.FromMinor(inv.AmountPaid)
		})
	}
	return nil
}

// retryDunningClear finishes a recovery whose flag clear failed on an earlier
// delivery. Only an ACTIVE subscription qualifies; a PAST_DUE one was
// suspended again after this invoice was paid.
func (s *Service) retryDunningClear(ctx context.Context, inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription) error {
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		return nil
	}
	suspended, err := s.settingSvc.IsDunningSuspended(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("read dunning flag for %s: %w", sub.ID, err)
	}
	if !suspended {
		return nil
	}
	s.log.Info("retrying dunning clear for replayed invoice",
		zap.String("invoice_id", inv.ID),
		zap.String("subscription_id", sub.ID.String()),
	)
	return s.restoreAccess(ctx, inv, sub, s.now())
}

// recordPaidInvoice writes the Invoice and Payment rows for a paid invoice.
// It reports replayed=true when the invoice had already been seen, in which
// case the caller must not re-apply subscription side effects. The backfill
// path uses the same function.
func (s *Service) recordPaidInvoice(ctx context.Context, inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription) (bool, error) {
	now := s.now()
	member := memberFor(inv, sub)

	existingInvoice, err := s.paymentRepo.FindInvoiceByGatewayID(ctx, s.db, inv.ID)
	if err != nil {
		return false, err
	}
	if existingInvoice != nil {
		payment, err := s.paymentRepo.FindByGatewayInvoiceID(ctx, s.db, inv.ID)
		if err != nil {
			return true, err
		}
		if payment == nil {
			s.log.Info("backfilling payment for replayed invoice", zap.String("invoice_id", inv.ID))
			return true, s.upsertConfirmedPayment(ctx, inv, sub, member, now)
		}
		return true, s.reconcileExistingPayment(ctx, payment, inv, member, now)
	}

	paidAt := inv.PaidAt
	if paidAt == nil {
		paidAt = &now
	}
	invoice := paymentdomain.Invoice{
		ID:               s.genID.Generate(),
		UserID:           sub.UserID,
		SubscriptionID:   idPtr(sub.ID),
		GatewayInvoiceID: inv.ID,
		Amount:           gatewaydomain.FromMinor(inv.AmountPaid),
		Currency:         s.currencyOf(inv),
		Status:           paymentdomain.InvoiceStatusPaid,
		PaidAt:           paidAt,
		CreatedAt:        now,
	}
	inserted, err := s.paymentRepo.InsertInvoice(ctx, s.db, &invoice)
	if err != nil {
		return false, fmt.Errorf("insert invoice %s: %w", inv.ID, err)
	}
	if !inserted {
		// A concurrent delivery won the race.
		return s.recordPaidInvoice(ctx, inv, sub)
	}

	return false, s.upsertConfirmedPayment(ctx, inv, sub, member, now)
}

// upsertConfirmedPayment inserts the CONFIRMED payment, converting a conflict
// with an earlier pending or failed row into an update.
func (s *Service) upsertConfirmedPayment(ctx context.Context, inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription, member string, now time.Time) error {
	processedAt := inv.PaidAt
	if processedAt == nil {
		processedAt = &now
	}
	payment := paymentdomain.Payment{
		ID:             s.genID.Generate(),
		UserID:         sub.UserID,
		SubscriptionID: idPtr(sub.ID),
		Amount:         gatewaydomain.FromMinor(inv.AmountPaid),
		Currency:       s.currencyOf(inv),
		Status:         paymentdomain.PaymentStatusConfirmed,
		Description: paymentdomain.BuildDescription(paymentLabel, paymentdomain.Tags{
			InvoiceID:       inv.ID,
			PaymentIntentID: inv.PaymentIntentID,
			MemberUserID:    member,
			SubscriptionID:  sub.ID.String(),
		}),
		RoutedEntityID:         sub.RoutedEntityID,
		GatewayInvoiceID:       stringPtr(inv.ID),
		GatewayPaymentIntentID: stringPtr(inv.PaymentIntentID),
		ProcessedAt:            processedAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	inserted, err := s.paymentRepo.Insert(ctx, s.db, &payment)
	if err != nil {
		return fmt.Errorf("insert payment for invoice %s: %w", inv.ID, err)
	}
	if inserted {
		return nil
	}

	existing, err := s.paymentRepo.FindByGatewayInvoiceID(ctx, s.db, inv.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("payment for invoice %s vanished after conflict", inv.ID)
	}
	return s.reconcileExistingPayment(ctx, existing, inv, member, now)
}

// reconcileExistingPayment confirms an unsettled row and re-attributes the
// member tag when the event knows better. Amount always comes from the gateway.
func (s *Service) reconcileExistingPayment(ctx context.Context, payment *paymentdomain.Payment, inv *gatewaydomain.Invoice, member string, now time.Time) error {
	changed := false

	if payment.Status != paymentdomain.PaymentStatusConfirmed && payment.Status.CanTransitionTo(paymentdomain.PaymentStatusConfirmed) {
		payment.Status = paymentdomain.PaymentStatusConfirmed
		payment.Amount = gatewaydomain.FromMinor(inv.AmountPaid)
		payment.FailureReason = nil
		processedAt := inv.PaidAt
		if processedAt == nil {
			processedAt = &now
		}
		payment.ProcessedAt = processedAt
		if payment.GatewayPaymentIntentID == nil {
			payment.GatewayPaymentIntentID = stringPtr(inv.PaymentIntentID)
		}
		changed = true
	}

	if member != "" && paymentdomain.ParseDescription(payment.Description).MemberUserID != member {
		payment.Description = paymentdomain.WithMember(payment.Description, member)
		changed = true
	}

	if !changed {
		s.log.Debug("duplicate paid invoice ignored", zap.String("invoice_id", inv.ID))
		return nil
	}
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, s.db, payment); err != nil {
		return fmt.Errorf("update payment %s: %w", payment.ID, err)
	}
	return nil
}

// memberFor prefers the beneficiary named in metadata over the payer.
func memberFor(inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription) string {
	for _, key := range []string{subscriptiondomain.MetadataMemberUserID, subscriptiondomain.MetadataChildUserID} {
		if v := inv.MetadataValue(key); v != "" {
			return v
		}
	}
	return sub.UserID.String()
}

func (s *Service) currencyOf(inv *gatewaydomain.Invoice) string {
	if c := strings.TrimSpace(inv.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return s.currency
}
