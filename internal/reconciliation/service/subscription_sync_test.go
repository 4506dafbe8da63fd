package service

import (
	"fmt"
	"testing"
	"time"

	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewaySubscription(id, status string) *gatewaydomain.Subscription {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	return &gatewaydomain.Subscription{
		ID:                 id,
		CustomerID:         "cus_1",
		Status:             status,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
}

func TestSubscriptionUpdatedStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		from       subscriptiondomain.SubscriptionStatus
		raw        string
		paused     bool
		flagged    bool
		wantSub    subscriptiondomain.SubscriptionStatus
		wantMember subscriptiondomain.MembershipStatus
	}{
		{name: "trialing counts as active", from: subscriptiondomain.SubscriptionStatusPendingPayment, raw: "trialing",
			wantSub: subscriptiondomain.SubscriptionStatusActive, wantMember: subscriptiondomain.MembershipStatusActive},
		{name: "pause collection overrides status", from: subscriptiondomain.SubscriptionStatusActive, raw: "active", paused: true,
			wantSub: subscriptiondomain.SubscriptionStatusPaused, wantMember: subscriptiondomain.MembershipStatusSuspended},
		{name: "past due while retrying keeps access", from: subscriptiondomain.SubscriptionStatusActive, raw: "past_due",
			wantSub: subscriptiondomain.SubscriptionStatusPastDue, wantMember: subscriptiondomain.MembershipStatusActive},
		{name: "past due after dunning suspends", from: subscriptiondomain.SubscriptionStatusPastDue, raw: "past_due", flagged: true,
			wantSub: subscriptiondomain.SubscriptionStatusPastDue, wantMember: subscriptiondomain.MembershipStatusSuspended},
		{name: "incomplete never grants access", from: subscriptiondomain.SubscriptionStatusPendingPayment, raw: "incomplete",
			wantSub: subscriptiondomain.SubscriptionStatusIncomplete, wantMember: subscriptiondomain.MembershipStatusPendingPayment},
		{name: "incomplete expired", from: subscriptiondomain.SubscriptionStatusIncomplete, raw: "incomplete_expired",
			wantSub: subscriptiondomain.SubscriptionStatusIncompleteExpired, wantMember: subscriptiondomain.MembershipStatusPendingPayment},
		{name: "cancelled", from: subscriptiondomain.SubscriptionStatusActive, raw: "canceled",
			wantSub: subscriptiondomain.SubscriptionStatusCancelled, wantMember: subscriptiondomain.MembershipStatusCancelled},
		{name: "cancelled never reopens", from: subscriptiondomain.SubscriptionStatusCancelled, raw: "active",
			wantSub: subscriptiondomain.SubscriptionStatusCancelled, wantMember: subscriptiondomain.MembershipStatusCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", status: tc.from})
			if tc.flagged {
				require.NoError(t, h.settings.SetDunningSuspended(h.ctx, settingdomain.DunningFlag{SubscriptionID: sub.ID.String()}))
			}

			gs := gatewaySubscription("sub_abc", tc.raw)
			gs.PauseCollection = tc.paused
			require.NoError(t, h.svc.HandleEvent(h.ctx, &gatewaydomain.Event{
				ID:           "evt_sync",
				Type:         gatewaydomain.EventSubscriptionUpdated,
				Subscription: gs,
			}))

			assert.Equal(t, tc.wantSub, h.subscription(sub.ID).Status)
			assert.Equal(t, []subscriptiondomain.MembershipStatus{tc.wantMember}, h.membershipStatuses(sub.UserID))
		})
	}
}

func TestSubscriptionUpdatedKeepsStoredPeriodsWhenMissing(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	require.NoError(t, h.svc.HandleSubscriptionUpdated(h.ctx, gatewaySubscription("sub_abc", "active")))
	before := h.subscription(sub.ID)
	require.NotNil(t, before.CurrentPeriodEnd)

	gs := gatewaySubscription("sub_abc", "active")
	gs.CurrentPeriodStart = nil
	gs.CurrentPeriodEnd = nil
	require.NoError(t, h.svc.HandleSubscriptionUpdated(h.ctx, gs))

	after := h.subscription(sub.ID)
	require.NotNil(t, after.CurrentPeriodStart)
	require.NotNil(t, after.CurrentPeriodEnd)
	assert.True(t, after.CurrentPeriodEnd.Equal(*before.CurrentPeriodEnd))
	assert.True(t, after.NextBillingDate.Equal(*before.NextBillingDate))
}

func TestSubscriptionUpdatedLinksPlaceholderRow(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{status: subscriptiondomain.SubscriptionStatusPendingPayment})
	require.False(t, sub.HasGatewaySubscription())

	gs := gatewaySubscription("sub_real", "active")
	gs.Metadata = map[string]string{subscriptiondomain.MetadataInternalSubscriptionID: sub.ID.String()}
	require.NoError(t, h.svc.HandleSubscriptionUpdated(h.ctx, gs))

	linked, err := h.subRepo.FindByGatewayID(h.ctx, h.db, "sub_real")
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, sub.ID, linked.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, linked.Status)
}

func TestSubscriptionUpdatedRejectsUnknownSubscription(t *testing.T) {
	h := newHarness(t)
	h.seedMember(100, 200, seedOpts{gatewayID: "sub_other"})

	err := h.svc.HandleSubscriptionUpdated(h.ctx, gatewaySubscription("sub_stranger", "active"))
	require.ErrorIs(t, err, domain.ErrMappingFailed)

	// Metadata pointing at a row already linked to another gateway id is refused.
	gs := gatewaySubscription("sub_stranger", "active")
	gs.Metadata = map[string]string{subscriptiondomain.MetadataInternalSubscriptionID: "200"}
	err = h.svc.HandleSubscriptionUpdated(h.ctx, gs)
	require.ErrorIs(t, err, domain.ErrMappingFailed)
}

func TestPendingPlanChangeAppliedOnceDue(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	future := gatewaySubscription("sub_abc", "active")
	future.Metadata = map[string]string{
		subscriptiondomain.MetadataPendingPlanChange:   "OFF_PEAK",
		subscriptiondomain.MetadataPendingPlanChangeAt: fmt.Sprint(testNow.Add(24 * time.Hour).Unix()),
		subscriptiondomain.MetadataPendingPlanPrice:    "35.00",
	}
	require.NoError(t, h.svc.HandleSubscriptionUpdated(h.ctx, future))
	assert.Equal(t, "FULL_ADULT", h.subscription(sub.ID).MembershipType)
	assert.Empty(t, h.gw.ClearedMetadata)

	due := gatewaySubscription("sub_abc", "active")
	due.Metadata = map[string]string{
		subscriptiondomain.MetadataPendingPlanChange:   "OFF_PEAK",
		subscriptiondomain.MetadataPendingPlanChangeAt: testNow.Add(-time.Hour).Format(time.RFC3339),
		subscriptiondomain.MetadataPendingPlanPrice:    "35.00",
	}
	require.NoError(t, h.svc.HandleSubscriptionUpdated(h.ctx, due))

	stored := h.subscription(sub.ID)
	assert.Equal(t, "OFF_PEAK", stored.MembershipType)
	assert.Equal(t, 35.0, stored.MonthlyPrice)

	memberships, err := h.subRepo.ListMembershipsByUser(h.ctx, h.db, sub.UserID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, "OFF_PEAK", memberships[0].MembershipType)
	assert.Equal(t, 35.0, memberships[0].MonthlyPrice)

	assert.ElementsMatch(t, []string{
		subscriptiondomain.MetadataPendingPlanChange,
		subscriptiondomain.MetadataPendingPlanChangeAt,
		subscriptiondomain.MetadataPendingPlanPrice,
	}, h.gw.ClearedMetadata["sub_abc"])
}

func TestSubscriptionCancelled(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", status: subscriptiondomain.SubscriptionStatusPastDue})

	require.NoError(t, h.svc.HandleEvent(h.ctx, &gatewaydomain.Event{
		ID:           "evt_cancel",
		Type:         gatewaydomain.EventSubscriptionDeleted,
		Subscription: gatewaySubscription("sub_abc", "canceled"),
	}))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusCancelled}, h.membershipStatuses(sub.UserID))

	err := h.svc.HandleSubscriptionCancelled(h.ctx, gatewaySubscription("sub_missing", "canceled"))
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	h := newHarness(t)

	err := h.svc.HandleEvent(h.ctx, &gatewaydomain.Event{ID: "evt_x", Type: "charge.refunded"})
	require.ErrorIs(t, err, domain.ErrEventIgnored)

	require.NoError(t, h.svc.HandleEvent(h.ctx, &gatewaydomain.Event{ID: "evt_si", Type: gatewaydomain.EventSetupIntentSucceeded}))

	err = h.svc.HandleEvent(h.ctx, &gatewaydomain.Event{ID: "evt_bad", Type: gatewaydomain.EventInvoicePaid})
	require.ErrorIs(t, err, domain.ErrInvalidEvent)
}
