package service

import (
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/gymledger/internal/config"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	notificationdomain "github.com/smallbiznis/gymledger/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedInvoice(id, gatewaySub string, attempt int64) *gatewaydomain.Invoice {
	next := testNow.Add(72 * time.Hour)
	return &gatewaydomain.Invoice{
		ID:                 id,
		CustomerID:         "cus_1",
		SubscriptionID:     gatewaySub,
		PaymentIntentID:    "pi_" + id,
		ChargeID:           "ch_" + id,
		Status:             "open",
		Currency:           "gbp",
		AmountDue:          7500,
		AttemptCount:       attempt,
		NextPaymentAttempt: &next,
		FailureMessage:     "Your card was declined.",
		Created:            testNow,
	}
}

func TestDunningEscalationBoundary(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	for attempt := int64(1); attempt <= 2; attempt++ {
		require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_due", "sub_abc", attempt)))
		assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
		assert.False(t, h.dunningFlag(sub.ID))
	}

	notices := h.notices.Notices()
	require.Len(t, notices, 2)
	for i, n := range notices {
		assert.Equal(t, notificationdomain.KindPaymentRetry, n.Kind)
		assert.EqualValues(t, i+1, n.AttemptCount)
		assert.EqualValues(t, 3, n.MaxAttempts)
		require.NotNil(t, n.NextRetry)
		assert.Equal(t, "https://gym.example/account/payment-method", n.UpdatePaymentURL)
	}

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_due", "sub_abc", 3)))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusSuspended}, h.membershipStatuses(sub.UserID))
	assert.True(t, h.dunningFlag(sub.ID))
	assert.Equal(t, notificationdomain.KindSuspended, h.notices.Kinds()[2])

	payment := h.payment("inv_due")
	require.NotNil(t, payment)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, payment.Status)
	assert.Equal(t, 3, payment.RetryCount)

	// The same invoice finally collects.
	paid := paidInvoice("inv_due", "sub_abc", 7500)
	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paid))

	assert.False(t, h.dunningFlag(sub.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, h.payment("inv_due").Status)
	assert.Nil(t, h.payment("inv_due").FailureReason)
	assert.Equal(t, notificationdomain.KindRecovered, h.notices.Kinds()[3])
}

func TestLateFailureAfterSuccessIsIgnored(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_456", "sub_abc", 7500)))
	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_456", "sub_abc", 3)))

	payment := h.payment("inv_456")
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, payment.Status)
	assert.Equal(t, 0, payment.RetryCount)
	assert.NotContains(t, h.notices.Kinds(), notificationdomain.KindSuspended)
	assert.False(t, h.dunningFlag(sub.ID))
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
	assert.Zero(t, h.gw.DeclineLookups)
}

func TestFinalFailureWithoutAutoSuspendOnlyNotifies(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Dunning.AutoSuspend = false })
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_due", "sub_abc", 3)))

	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
	assert.False(t, h.dunningFlag(sub.ID))
	assert.Equal(t, []notificationdomain.Kind{notificationdomain.KindSuspended}, h.notices.Kinds())
	assert.Empty(t, h.gw.Paused)
}

func TestFinalFailureOnUnsuspendableSubscriptionOnlyNotifies(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Dunning.PauseCollection = true })
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", status: subscriptiondomain.SubscriptionStatusPendingPayment})

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_first", "sub_abc", 3)))

	assert.Equal(t, subscriptiondomain.SubscriptionStatusPendingPayment, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusPendingPayment}, h.membershipStatuses(sub.UserID))
	assert.False(t, h.dunningFlag(sub.ID))
	assert.Empty(t, h.gw.Paused)
	assert.Equal(t, []notificationdomain.Kind{notificationdomain.KindSuspended}, h.notices.Kinds())
	assert.Equal(t, paymentdomain.PaymentStatusFailed, h.payment("inv_first").Status)
}

func TestFinalFailurePausesCollectionWhenConfigured(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Dunning.PauseCollection = true })
	h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_due", "sub_abc", 4)))
	assert.Equal(t, []string{"sub_abc"}, h.gw.Paused)
}

func TestPauseCollectionErrorDoesNotAbortSuspension(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Dunning.PauseCollection = true })
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})
	h.gw.ErrPause = errors.New("gateway timeout")

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_due", "sub_abc", 3)))
	assert.True(t, h.dunningFlag(sub.ID))
}

func TestDeclineReasonEnrichment(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(h *harness, inv *gatewaydomain.Invoice)
		want    string
	}{
		{
			name: "lookup table",
			prepare: func(h *harness, inv *gatewaydomain.Invoice) {
				h.gw.Declines = map[string]*gatewaydomain.DeclineDetails{
					inv.ChargeID: {Code: "insufficient_funds", Message: "Your card has insufficient funds."},
				}
			},
			want: "Insufficient funds",
		},
		{
			name: "unknown code uses processor message",
			prepare: func(h *harness, inv *gatewaydomain.Invoice) {
				h.gw.Declines = map[string]*gatewaydomain.DeclineDetails{
					inv.PaymentIntentID: {Code: "fraudulent", Message: "Suspected fraud."},
				}
			},
			want: "Suspected fraud.",
		},
		{
			name: "lookup error falls back to invoice message",
			prepare: func(h *harness, inv *gatewaydomain.Invoice) {
				h.gw.ErrDecline = errors.New("rate limited")
			},
			want: "Your card was declined.",
		},
		{
			name: "nothing available",
			prepare: func(h *harness, inv *gatewaydomain.Invoice) {
				inv.FailureMessage = ""
				inv.ChargeID = ""
				inv.PaymentIntentID = ""
			},
			want: gatewaydomain.GenericDeclineReason,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})
			inv := failedInvoice("inv_decline", "sub_abc", 1)
			tc.prepare(h, inv)

			require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, inv))

			payment := h.payment("inv_decline")
			require.NotNil(t, payment)
			require.NotNil(t, payment.FailureReason)
			assert.Equal(t, tc.want, *payment.FailureReason)
			assert.Equal(t, tc.want, h.notices.Notices()[0].Reason)
		})
	}
}

func TestPaymentFailedSkipsCancelledSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.seedMember(100, 200, seedOpts{gatewayID: "sub_old", status: subscriptiondomain.SubscriptionStatusCancelled})

	err := h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_old", "sub_old", 1))
	require.ErrorIs(t, err, domain.ErrMappingFailed)
	assert.Nil(t, h.payment("inv_old"))

	// A live subscription for the same customer takes the failure instead.
	live := h.seedMember(100, 201, seedOpts{gatewayID: "sub_new", customerID: "cus_1", createdOffset: time.Hour})
	h.gw.Customers = map[string]*gatewaydomain.Customer{
		"cus_1": {ID: "cus_1", Metadata: map[string]string{subscriptiondomain.MetadataUserID: "100"}},
	}

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_old", "sub_old", 1)))
	payment := h.payment("inv_old")
	require.NotNil(t, payment)
	require.NotNil(t, payment.SubscriptionID)
	assert.Equal(t, live.ID, *payment.SubscriptionID)
}
