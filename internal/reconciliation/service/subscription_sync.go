package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"go.uber.org/zap"
)

// HandleSubscriptionUpdated mirrors the gateway subscription onto the local
// row and re-derives membership access.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, gs *gatewaydomain.Subscription) error {
	sub, err := s.findForSync(ctx, gs)
	if err != nil {
		return err
	}
	now := s.now()

	if status, ok := subscriptiondomain.NormalizeGatewayStatus(gs.Status, gs.PauseCollection); ok {
		if trigger, ok := subscriptiondomain.GatewayTrigger(status); ok {
			s.transition(sub, trigger)
		}
	} else {
		s.log.Warn("unknown gateway subscription status",
			zap.String("gateway_subscription_id", gs.ID),
			zap.String("status", gs.Status),
		)
	}

	// Absent periods keep the stored values.
	if gs.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = gs.CurrentPeriodStart
	}
	if gs.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = gs.CurrentPeriodEnd
		sub.NextBillingDate = gs.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = gs.CancelAtPeriodEnd
	if gs.CustomerID != "" && sub.GatewayCustomerID == nil {
		sub.GatewayCustomerID = stringPtr(gs.CustomerID)
	}

	planChanged := s.applyPendingPlanChange(ctx, sub, gs, now)

	sub.UpdatedAt = now
	if err := s.subRepo.Update(ctx, s.db, sub); err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}

	suspended := false
	if sub.Status == subscriptiondomain.SubscriptionStatusPastDue {
		suspended, err = s.settingSvc.IsDunningSuspended(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("read dunning flag for %s: %w", sub.ID, err)
		}
	}
	if err := s.syncMemberships(ctx, sub, suspended, now); err != nil {
		return err
	}

	if planChanged {
		if err := s.gateway.ClearSubscriptionMetadata(ctx, gs.ID,
			subscriptiondomain.MetadataPendingPlanChange,
			subscriptiondomain.MetadataPendingPlanChangeAt,
			subscriptiondomain.MetadataPendingPlanPrice,
		); err != nil {
			// The next update re-applies the same change, which is harmless.
			s.log.Warn("clear pending plan change on gateway", zap.String("gateway_subscription_id", gs.ID), zap.Error(err))
		}
	}

	s.log.Info("subscription synced",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("gateway_subscription_id", gs.ID),
		zap.String("status", string(sub.Status)),
	)
	return nil
}

// HandleSubscriptionCancelled ends the subscription and every membership of
// its user. The subscription must already be known by its gateway id.
func (s *Service) HandleSubscriptionCancelled(ctx context.Context, gs *gatewaydomain.Subscription) error {
	sub, err := s.subRepo.FindByGatewayID(ctx, s.db, gs.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: cancelled gateway subscription %s", subscriptiondomain.ErrSubscriptionNotFound, gs.ID)
	}
	now := s.now()

	s.transition(sub, subscriptiondomain.TriggerGatewayCancelled)
	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = now
	if err := s.subRepo.Update(ctx, s.db, sub); err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if err := s.subRepo.UpdateMembershipsByUser(ctx, s.db, sub.UserID, subscriptiondomain.MembershipStatusCancelled, nil, now); err != nil {
		return fmt.Errorf("cancel memberships for user %s: %w", sub.UserID, err)
	}

	s.log.Info("subscription cancelled",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("gateway_subscription_id", gs.ID),
	)
	return nil
}

// findForSync looks the row up by gateway id, then links a placeholder row
// named by internal_subscription_id metadata.
func (s *Service) findForSync(ctx context.Context, gs *gatewaydomain.Subscription) (*subscriptiondomain.Subscription, error) {
	sub, err := s.subRepo.FindByGatewayID(ctx, s.db, gs.ID)
	if err != nil || sub != nil {
		return sub, err
	}

	raw := gs.MetadataValue(subscriptiondomain.MetadataInternalSubscriptionID)
	id, parseErr := snowflake.ParseString(raw)
	if raw == "" || parseErr != nil || id <= 0 {
		return nil, s.unmappedSubscription(ctx, gs)
	}
	sub, err = s.subRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.unmappedSubscription(ctx, gs)
	}
	if sub.HasGatewaySubscription() && sub.GatewaySubscriptionID != gs.ID {
		s.log.Warn("metadata points at a subscription linked elsewhere",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("linked_gateway_id", sub.GatewaySubscriptionID),
			zap.String("event_gateway_id", gs.ID),
		)
		return nil, s.unmappedSubscription(ctx, gs)
	}

	s.log.Info("linking placeholder subscription",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("gateway_subscription_id", gs.ID),
	)
	sub.GatewaySubscriptionID = gs.ID
	return sub, nil
}

func (s *Service) unmappedSubscription(ctx context.Context, gs *gatewaydomain.Subscription) error {
	s.obsMetrics.RecordMappingFailure(ctx, gatewaydomain.EventSubscriptionUpdated)
	return fmt.Errorf("%w: gateway subscription %s", domain.ErrMappingFailed, gs.ID)
}

// applyPendingPlanChange switches the plan once its scheduled time passed.
func (s *Service) applyPendingPlanChange(ctx context.Context, sub *subscriptiondomain.Subscription, gs *gatewaydomain.Subscription, now time.Time) bool {
	plan := gs.MetadataValue(subscriptiondomain.MetadataPendingPlanChange)
	if plan == "" {
		return false
	}
	at, ok := parseScheduleTime(gs.MetadataValue(subscriptiondomain.MetadataPendingPlanChangeAt))
	if !ok || at.After(now) {
		return false
	}

	price := sub.MonthlyPrice
	if raw := gs.MetadataValue(subscriptiondomain.MetadataPendingPlanPrice); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil && d.IsPositive() {
			price = d.Round(2).InexactFloat64()
		}
	} else if gs.UnitAmount > 0 {
		price = gatewaydomain.FromMinor(gs.UnitAmount)
	}

	if err := s.subRepo.UpdateMembershipPlan(ctx, s.db, sub.ID, plan, price, now); err != nil {
		s.log.Warn("apply pending plan change", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		return false
	}
	sub.MembershipType = plan
	sub.MonthlyPrice = price
	s.log.Info("pending plan change applied",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("membership_type", plan),
		zap.Float64("monthly_price", price),
	)
	return true
}

// parseScheduleTime accepts unix seconds or RFC 3339.
func parseScheduleTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
