package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	notificationdomain "github.com/smallbiznis/gymledger/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidInvoice(id, gatewaySub string, amount int64) *gatewaydomain.Invoice {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	return &gatewaydomain.Invoice{
		ID:              id,
		CustomerID:      "cus_1",
		SubscriptionID:  gatewaySub,
		PaymentIntentID: "pi_" + id,
		Status:          "paid",
		Currency:        "gbp",
		AmountPaid:      amount,
		AmountDue:       amount,
		PeriodStart:     &start,
		PeriodEnd:       &end,
		PaidAt:          ptrTime(testNow),
		Created:         testNow,
	}
}

func TestDuplicatePaymentSucceededCreatesOneRow(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", provisional: true})

	inv := paidInvoice("inv_123", "sub_abc", 7500)
	event := &gatewaydomain.Event{ID: "evt_1", Type: gatewaydomain.EventInvoicePaymentSucceeded, Invoice: inv}

	require.NoError(t, h.svc.HandleEvent(h.ctx, event))
	require.NoError(t, h.svc.HandleEvent(h.ctx, event))

	assert.EqualValues(t, 1, h.count(&paymentdomain.Payment{}, "gateway_invoice_id = ?", "inv_123"))
	assert.EqualValues(t, 1, h.count(&paymentdomain.Invoice{}, "gateway_invoice_id = ?", "inv_123"))

	payment := h.payment("inv_123")
	require.NotNil(t, payment)
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, payment.Status)
	assert.Equal(t, 75.0, payment.Amount)
	assert.Equal(t, "GBP", payment.Currency)
	assert.Equal(t, sub.RoutedEntityID, payment.RoutedEntityID)

	tags := paymentdomain.ParseDescription(payment.Description)
	assert.Equal(t, "inv_123", tags.InvoiceID)
	assert.Equal(t, "pi_inv_123", tags.PaymentIntentID)
	assert.Equal(t, "100", tags.MemberUserID)
	assert.Equal(t, "200", tags.SubscriptionID)

	stored := h.subscription(sub.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, stored.Status)
	assert.False(t, stored.Provisional)
	require.NotNil(t, stored.NextBillingDate)
	assert.True(t, stored.NextBillingDate.Equal(*inv.PeriodEnd))
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
}

func TestPaymentSucceededActivatesPendingSubscription(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{status: subscriptiondomain.SubscriptionStatusPendingPayment})

	inv := paidInvoice("inv_1", "", 3000)
	inv.Metadata = map[string]string{subscriptiondomain.MetadataInternalSubscriptionID: "200"}
	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, inv))

	stored := h.subscription(sub.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, stored.Status)
	// One-off invoices do not move the billing period.
	assert.Nil(t, stored.CurrentPeriodEnd)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
}

func TestZeroAmountInvoiceIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_trial", "sub_abc", 0)))

	assert.Zero(t, h.count(&paymentdomain.Payment{}, "1 = 1"))
	assert.Zero(t, h.count(&paymentdomain.Invoice{}, "1 = 1"))
}

func TestPaymentSucceededUnmappedInvoiceFails(t *testing.T) {
	h := newHarness(t)

	err := h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_lost", "sub_unknown", 7500))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMappingFailed))
	assert.Zero(t, h.count(&paymentdomain.Payment{}, "1 = 1"))
}

func TestReplayBackfillsMissingPaymentRow(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", status: subscriptiondomain.SubscriptionStatusPastDue})

	// A crash after the invoice insert left no payment behind.
	subID := sub.ID
	require.NoError(t, h.db.Create(&paymentdomain.Invoice{
		ID:               900,
		UserID:           sub.UserID,
		SubscriptionID:   &subID,
		GatewayInvoiceID: "inv_partial",
		Amount:           75,
		Currency:         "GBP",
		Status:           paymentdomain.InvoiceStatusPaid,
		CreatedAt:        testNow,
	}).Error)

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_partial", "sub_abc", 7500)))

	payment := h.payment("inv_partial")
	require.NotNil(t, payment)
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, payment.Status)
	assert.EqualValues(t, 1, h.count(&paymentdomain.Invoice{}, "gateway_invoice_id = ?", "inv_partial"))
	// Replays never re-apply subscription side effects.
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, h.subscription(sub.ID).Status)
}

func TestReplayReattributesMember(t *testing.T) {
	h := newHarness(t)
	h.seedMember(100, 200, seedOpts{gatewayID: "sub_family"})

	inv := paidInvoice("inv_family", "sub_family", 4500)
	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, inv))
	assert.Equal(t, "100", paymentdomain.ParseDescription(h.payment("inv_family").Description).MemberUserID)

	inv.Metadata = map[string]string{subscriptiondomain.MetadataChildUserID: "555"}
	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, inv))

	payment := h.payment("inv_family")
	tags := paymentdomain.ParseDescription(payment.Description)
	assert.Equal(t, "555", tags.MemberUserID)
	assert.Equal(t, "inv_family", tags.InvoiceID)
	assert.Equal(t, 45.0, payment.Amount)
	assert.EqualValues(t, 1, h.count(&paymentdomain.Payment{}, "gateway_invoice_id = ?", "inv_family"))
}

func TestPaymentSucceededConfirmsPendingPlaceholderPayment(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", customerID: "cus_1", provisional: true})

	invoiceID := "inv_proration"
	subID := sub.ID
	require.NoError(t, h.db.Create(&paymentdomain.Payment{
		ID:               901,
		UserID:           sub.UserID,
		SubscriptionID:   &subID,
		Amount:           50,
		Currency:         "GBP",
		Status:           paymentdomain.PaymentStatusPending,
		Description:      paymentdomain.BuildDescription("First period (prorated)", paymentdomain.Tags{InvoiceID: invoiceID}),
		RoutedEntityID:   sub.RoutedEntityID,
		GatewayInvoiceID: &invoiceID,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}).Error)

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice(invoiceID, "", 4839)))

	payment := h.payment(invoiceID)
	assert.Equal(t, snowflake.ID(901), payment.ID)
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, payment.Status)
	assert.Equal(t, 48.39, payment.Amount)
	require.NotNil(t, payment.ProcessedAt)
}

func TestPaymentSucceededClearsDunningAndNotifiesRecovery(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", status: subscriptiondomain.SubscriptionStatusPastDue})
	require.NoError(t, h.subRepo.UpdateMembershipsByUser(h.ctx, h.db, sub.UserID, subscriptiondomain.MembershipStatusSuspended, nil, testNow))
	require.NoError(t, h.settings.SetDunningSuspended(h.ctx, settingdomain.DunningFlag{SubscriptionID: sub.ID.String(), AttemptCount: 3}))

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_recover", "sub_abc", 7500)))

	assert.False(t, h.dunningFlag(sub.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
	assert.Equal(t, []notificationdomain.Kind{notificationdomain.KindRecovered}, h.notices.Kinds())
	assert.Equal(t, "member100@example.com", h.notices.Notices()[0].Email)
}

// flakySettings fails ClearDunningSuspended while clearErr is set.
type flakySettings struct {
	settingdomain.Service
	clearErr error
}

func (f *flakySettings) ClearDunningSuspended(ctx context.Context, subscriptionID snowflake.ID) (bool, error) {
	if f.clearErr != nil {
		return false, f.clearErr
	}
	return f.Service.ClearDunningSuspended(ctx, subscriptionID)
}

func TestDunningClearFailureIsRetriedOnRedelivery(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc", status: subscriptiondomain.SubscriptionStatusPastDue})
	require.NoError(t, h.subRepo.UpdateMembershipsByUser(h.ctx, h.db, sub.UserID, subscriptiondomain.MembershipStatusSuspended, nil, testNow))
	require.NoError(t, h.settings.SetDunningSuspended(h.ctx, settingdomain.DunningFlag{SubscriptionID: sub.ID.String(), AttemptCount: 3}))

	storeDown := errors.New("settings store unavailable")
	flaky := &flakySettings{Service: h.settings, clearErr: storeDown}
	h.svc.settingSvc = flaky

	err := h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_recover", "sub_abc", 7500))
	require.ErrorIs(t, err, storeDown)
	assert.True(t, h.dunningFlag(sub.ID))
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusSuspended}, h.membershipStatuses(sub.UserID))
	assert.Empty(t, h.notices.Kinds())

	flaky.clearErr = nil
	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_recover", "sub_abc", 7500)))

	assert.False(t, h.dunningFlag(sub.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusActive}, h.membershipStatuses(sub.UserID))
	assert.Equal(t, []notificationdomain.Kind{notificationdomain.KindRecovered}, h.notices.Kinds())
	assert.EqualValues(t, 1, h.count(&paymentdomain.Payment{}, "gateway_invoice_id = ?", "inv_recover"))
}

func TestReplayedInvoiceDoesNotLiftLaterSuspension(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})
	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_march", "sub_abc", 7500)))

	require.NoError(t, h.svc.HandlePaymentFailed(h.ctx, failedInvoice("inv_april", "sub_abc", 3)))
	require.True(t, h.dunningFlag(sub.ID))

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_march", "sub_abc", 7500)))

	assert.True(t, h.dunningFlag(sub.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, h.subscription(sub.ID).Status)
	assert.Equal(t, []subscriptiondomain.MembershipStatus{subscriptiondomain.MembershipStatusSuspended}, h.membershipStatuses(sub.UserID))
	assert.NotContains(t, h.notices.Kinds(), notificationdomain.KindRecovered)
}

func TestPaymentSucceededKeepsCancelledSubscriptionCancelled(t *testing.T) {
	h := newHarness(t)
	sub := h.seedMember(100, 200, seedOpts{gatewayID: "sub_done", status: subscriptiondomain.SubscriptionStatusCancelled})

	require.NoError(t, h.svc.HandlePaymentSucceeded(h.ctx, paidInvoice("inv_final", "sub_done", 7500)))

	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, h.subscription(sub.ID).Status)
	assert.Equal(t, paymentdomain.PaymentStatusConfirmed, h.payment("inv_final").Status)
}
