package service

import (
	"encoding/json"
	"testing"

	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEvent(t *testing.T, event gatewaydomain.Event) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestIngestRecordsAndDeduplicatesDeliveries(t *testing.T) {
	h := newHarness(t)
	h.gw.Signature = "t=1,v1=good"
	h.seedMember(100, 200, seedOpts{gatewayID: "sub_abc"})

	payload := encodeEvent(t, gatewaydomain.Event{
		ID:      "evt_paid",
		Type:    gatewaydomain.EventInvoicePaymentSucceeded,
		Invoice: paidInvoice("inv_123", "sub_abc", 7500),
	})

	require.NoError(t, h.svc.Ingest(h.ctx, payload, "t=1,v1=good"))
	err := h.svc.Ingest(h.ctx, payload, "t=1,v1=good")
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

	assert.EqualValues(t, 1, h.count(&paymentdomain.Payment{}, "gateway_invoice_id = ?", "inv_123"))
	assert.EqualValues(t, 1, h.count(&domain.WebhookEvent{}, "provider_event_id = ? AND processed_at IS NOT NULL", "evt_paid"))

	events, err := h.svc.ListRecentEvents(h.ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, gatewaydomain.EventInvoicePaymentSucceeded, events[0].EventType)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	h.gw.Signature = "t=1,v1=good"

	payload := encodeEvent(t, gatewaydomain.Event{ID: "evt_1", Type: gatewaydomain.EventInvoicePaid})
	err := h.svc.Ingest(h.ctx, payload, "t=1,v1=forged")
	require.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)
	assert.Zero(t, h.count(&domain.WebhookEvent{}, "1 = 1"))
}

func TestIngestAcknowledgesIgnoredTypes(t *testing.T) {
	h := newHarness(t)

	payload := encodeEvent(t, gatewaydomain.Event{ID: "evt_refund", Type: "charge.refunded"})
	err := h.svc.Ingest(h.ctx, payload, "")
	require.ErrorIs(t, err, domain.ErrEventIgnored)
	assert.EqualValues(t, 1, h.count(&domain.WebhookEvent{}, "provider_event_id = ? AND processed_at IS NOT NULL", "evt_refund"))
}

func TestIngestRetriesFailedDeliveries(t *testing.T) {
	h := newHarness(t)

	payload := encodeEvent(t, gatewaydomain.Event{
		ID:      "evt_early",
		Type:    gatewaydomain.EventInvoicePaymentSucceeded,
		Invoice: paidInvoice("inv_early", "sub_late", 7500),
	})

	// The subscription row does not exist yet.
	err := h.svc.Ingest(h.ctx, payload, "")
	require.ErrorIs(t, err, domain.ErrMappingFailed)
	assert.EqualValues(t, 1, h.count(&domain.WebhookEvent{}, "provider_event_id = ? AND processed_at IS NULL", "evt_early"))

	h.seedMember(100, 200, seedOpts{gatewayID: "sub_late"})
	require.NoError(t, h.svc.Ingest(h.ctx, payload, ""))

	assert.EqualValues(t, 1, h.count(&domain.WebhookEvent{}, "provider_event_id = ? AND processed_at IS NOT NULL", "evt_early"))
	assert.NotNil(t, h.payment("inv_early"))
}
