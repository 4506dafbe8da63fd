package service

import (
	"context"
	"fmt"
	"time"

	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	notificationdomain "github.com/smallbiznis/gymledger/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/mapping"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"go.uber.org/zap"
)

// HandlePaymentFailed records a failed collection attempt and escalates
// dunning once the gateway has exhausted its retries.
func (s *Service) HandlePaymentFailed(ctx context.Context, inv *gatewaydomain.Invoice) error {
	match, err := s.resolve(ctx, gatewaydomain.EventInvoicePaymentFailed, inv,
		mapping.ExcludeStatuses(subscriptiondomain.SubscriptionStatusCancelled))
	if err != nil {
		return err
	}
	sub := match.Subscription

	existing, err := s.paymentRepo.FindByGatewayInvoiceID(ctx, s.db, inv.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status.Settled() {
		s.log.Info("ignoring late failure for settled invoice",
			zap.String("invoice_id", inv.ID),
			zap.String("payment_status", string(existing.Status)),
		)
		return nil
	}

	now := s.now()
	reason := s.declineReason(ctx, inv)
	if err := s.recordFailedPayment(ctx, existing, inv, sub, reason, now); err != nil {
		return err
	}

	attempt := inv.AttemptCount
	if attempt >= int64(s.dunning.MaxAttempts) {
		return s.escalate(ctx, inv, sub, reason, now)
	}

	s.obsMetrics.RecordDunningEscalation(ctx, "retry")
	s.notify(ctx, notificationdomain.KindPaymentRetry, sub, func(n *notificationdomain.Notice) {
		n.AttemptCount = attempt
		n.NextRetry = inv.NextPaymentAttempt
		n.Reason = reason
		n.Amount = gatewaydomain.FromMinor(inv.AmountDue)
	})
	s.log.Info("invoice payment failed, retry scheduled",
		zap.String("invoice_id", inv.ID),
		zap.String("subscription_id", sub.ID.String()),
		zap.Int64("attempt", attempt),
	)
	return nil
}

// escalate suspends access after the final retry when auto-suspend is on and
// the subscription can move to PAST_DUE. The member is told either way.
func (s *Service) escalate(ctx context.Context, inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription, reason string, now time.Time) error {
	// A rejected transition leaves sub.Status untouched.
	if s.dunning.AutoSuspend && s.transition(sub, subscriptiondomain.TriggerDunningExhausted) {
		sub.UpdatedAt = now
		if err := s.subRepo.Update(ctx, s.db, sub); err != nil {
			return fmt.Errorf("update subscription %s: %w", sub.ID, err)
		}
		if err := s.subRepo.UpdateMembershipsByUser(ctx, s.db, sub.UserID, subscriptiondomain.MembershipStatusSuspended, nil, now); err != nil {
			return fmt.Errorf("suspend memberships for user %s: %w", sub.UserID, err)
		}
		if err := s.settingSvc.SetDunningSuspended(ctx, settingdomain.DunningFlag{
			SubscriptionID:   sub.ID.String(),
			GatewayInvoiceID: inv.ID,
			AttemptCount:     inv.AttemptCount,
			SuspendedAt:      now,
		}); err != nil {
			return fmt.Errorf("persist dunning flag for %s: %w", sub.ID, err)
		}

		if s.dunning.PauseCollection && sub.HasGatewaySubscription() {
			if err := s.gateway.PauseCollection(ctx, sub.GatewaySubscriptionID); err != nil {
				s.log.Warn("pause collection failed",
					zap.String("gateway_subscription_id", sub.GatewaySubscriptionID),
					zap.Error(err),
				)
			}
		}
		s.log.Warn("membership suspended after final payment attempt",
			zap.String("invoice_id", inv.ID),
			zap.String("subscription_id", sub.ID.String()),
			zap.Int64("attempt", inv.AttemptCount),
		)
	}

	s.obsMetrics.RecordDunningEscalation(ctx, "suspended")
	s.notify(ctx, notificationdomain.KindSuspended, sub, func(n *notificationdomain.Notice) {
		n.AttemptCount = inv.AttemptCount
		n.Reason = reason
		n.Amount = gatewaydomain.FromMinor(inv.AmountDue)
	})
	return nil
}

func (s *Service) recordFailedPayment(ctx context.Context, existing *paymentdomain.Payment, inv *gatewaydomain.Invoice, sub *subscriptiondomain.Subscription, reason string, now time.Time) error {
	if existing == nil {
		payment := paymentdomain.Payment{
			ID:             s.genID.Generate(),
			UserID:         sub.UserID,
			SubscriptionID: idPtr(sub.ID),
			Amount:         gatewaydomain.FromMinor(inv.AmountDue),
			Currency:       s.currencyOf(inv),
			Status:         paymentdomain.PaymentStatusFailed,
			Description: paymentdomain.BuildDescription(paymentLabel, paymentdomain.Tags{
				InvoiceID:       inv.ID,
				PaymentIntentID: inv.PaymentIntentID,
				MemberUserID:    memberFor(inv, sub),
				SubscriptionID:  sub.ID.String(),
			}),
			RoutedEntityID:         sub.RoutedEntityID,
			FailureReason:          stringPtr(reason),
			RetryCount:             1,
			GatewayInvoiceID:       stringPtr(inv.ID),
			GatewayPaymentIntentID: stringPtr(inv.PaymentIntentID),
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		inserted, err := s.paymentRepo.Insert(ctx, s.db, &payment)
		if err != nil {
			return fmt.Errorf("insert failed payment for invoice %s: %w", inv.ID, err)
		}
		if inserted {
			return nil
		}
		existing, err = s.paymentRepo.FindByGatewayInvoiceID(ctx, s.db, inv.ID)
		if err != nil {
			return err
		}
		if existing == nil || existing.Status.Settled() {
			return nil
		}
	}

	if !existing.Status.CanTransitionTo(paymentdomain.PaymentStatusFailed) {
		s.log.Info("payment not eligible for failure update",
			zap.String("payment_id", existing.ID.String()),
			zap.String("status", string(existing.Status)),
		)
		return nil
	}
	existing.Status = paymentdomain.PaymentStatusFailed
	existing.RetryCount++
	existing.FailureReason = stringPtr(reason)
	if existing.GatewayPaymentIntentID == nil {
		existing.GatewayPaymentIntentID = stringPtr(inv.PaymentIntentID)
	}
	existing.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, s.db, existing); err != nil {
		return fmt.Errorf("update payment %s: %w", existing.ID, err)
	}
	return nil
}

// declineReason enriches the failure with the processor's decline code.
// Lookup errors only degrade the message.
func (s *Service) declineReason(ctx context.Context, inv *gatewaydomain.Invoice) string {
	var details *gatewaydomain.DeclineDetails
	if inv.ChargeID != "" || inv.PaymentIntentID != "" {
		d, err := s.gateway.GetDeclineDetails(ctx, inv.ChargeID, inv.PaymentIntentID)
		if err != nil {
			s.log.Debug("decline details unavailable", zap.String("invoice_id", inv.ID), zap.Error(err))
		} else {
			details = d
		}
	}
	return gatewaydomain.DescribeDecline(details, inv.FailureMessage)
}
