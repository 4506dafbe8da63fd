package stripe

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/gymledger/internal/gateway/domain"
)

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// expandable accepts either a bare id or an expanded object carrying one.
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandable(strings.TrimSpace(obj.ID))
	return nil
}

// flexTime tolerates numbers, numeric strings and junk; junk reads as unset.
type flexTime int64

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = 0
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return nil
	}
	*f = flexTime(value)
	return nil
}

func (f flexTime) ptr() *time.Time {
	if f <= 0 {
		return nil
	}
	t := time.Unix(int64(f), 0).UTC()
	return &t
}

type stripeInvoice struct {
	ID                 string            `json:"id"`
	Customer           expandable        `json:"customer"`
	Subscription       expandable        `json:"subscription"`
	PaymentIntent      expandable        `json:"payment_intent"`
	Charge             expandable        `json:"charge"`
	Status             string            `json:"status"`
	Currency           string            `json:"currency"`
	AmountPaid         int64             `json:"amount_paid"`
	AmountDue          int64             `json:"amount_due"`
	AttemptCount       int64             `json:"attempt_count"`
	NextPaymentAttempt flexTime          `json:"next_payment_attempt"`
	PeriodStart        flexTime          `json:"period_start"`
	PeriodEnd          flexTime          `json:"period_end"`
	Created            int64             `json:"created"`
	Metadata           map[string]string `json:"metadata"`
	StatusTransitions  struct {
		PaidAt flexTime `json:"paid_at"`
	} `json:"status_transitions"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription expandable        `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				Start flexTime `json:"start"`
				End   flexTime `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
	Payments struct {
		Data []struct {
			Payment struct {
				PaymentIntent expandable `json:"payment_intent"`
				Charge        expandable `json:"charge"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           expandable        `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart flexTime          `json:"current_period_start"`
	CurrentPeriodEnd   flexTime          `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	TrialEnd           flexTime          `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	PauseCollection    *struct {
		Behavior string `json:"behavior"`
	} `json:"pause_collection"`
	Items struct {
		Data []struct {
			CurrentPeriodStart flexTime `json:"current_period_start"`
			CurrentPeriodEnd   flexTime `json:"current_period_end"`
			Price              struct {
				UnitAmount int64 `json:"unit_amount"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeSetupIntent struct {
	ID            string            `json:"id"`
	ClientSecret  string            `json:"client_secret"`
	Status        string            `json:"status"`
	Customer      expandable        `json:"customer"`
	PaymentMethod expandable        `json:"payment_method"`
	Metadata      map[string]string `json:"metadata"`
}

// parseEvent turns a verified payload into a gateway event. Unknown types
// keep only the envelope.
func parseEvent(payload []byte) (*domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, domain.ErrInvalidPayload
	}

	out := &domain.Event{
		ID:      event.ID,
		Type:    strings.TrimSpace(event.Type),
		Created: timestamp(event.Created, 0),
		Raw:     payload,
	}

	switch out.Type {
	case domain.EventInvoicePaymentSucceeded, domain.EventInvoicePaid, domain.EventInvoicePaymentFailed:
		invoice, err := parseInvoice(event.Data.Object)
		if err != nil {
			return nil, err
		}
		out.Invoice = invoice
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		sub, err := parseSubscription(event.Data.Object)
		if err != nil {
			return nil, err
		}
		out.Subscription = sub
	case domain.EventSetupIntentSucceeded:
		var intent stripeSetupIntent
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.SetupIntent = toSetupIntent(intent)
	}
	return out, nil
}

func parseInvoice(raw []byte) (*domain.Invoice, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(inv.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	metadata := map[string]string{}
	subscriptionID := string(inv.Subscription)
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if subscriptionID == "" {
			subscriptionID = string(inv.Parent.SubscriptionDetails.Subscription)
		}
		for k, v := range inv.Parent.SubscriptionDetails.Metadata {
			metadata[k] = v
		}
	}
	for k, v := range inv.Metadata {
		metadata[k] = v
	}

	paymentIntentID := string(inv.PaymentIntent)
	chargeID := string(inv.Charge)
	for _, p := range inv.Payments.Data {
		if paymentIntentID == "" {
			paymentIntentID = string(p.Payment.PaymentIntent)
		}
		if chargeID == "" {
			chargeID = string(p.Payment.Charge)
		}
	}

	// Subscription invoices report the billed period on their line items;
	// the invoice-level period is the preceding usage window.
	periodStart, periodEnd := inv.PeriodStart, inv.PeriodEnd
	if len(inv.Lines.Data) > 0 {
		if line := inv.Lines.Data[0]; line.Period.Start > 0 && line.Period.End > 0 {
			periodStart, periodEnd = line.Period.Start, line.Period.End
		}
	}

	failure := ""
	if inv.LastFinalizationError != nil {
		failure = strings.TrimSpace(inv.LastFinalizationError.Message)
	}

	return &domain.Invoice{
		ID:                 inv.ID,
		CustomerID:         string(inv.Customer),
		SubscriptionID:     subscriptionID,
		PaymentIntentID:    paymentIntentID,
		ChargeID:           chargeID,
		Status:             strings.ToLower(strings.TrimSpace(inv.Status)),
		Currency:           strings.ToUpper(strings.TrimSpace(inv.Currency)),
		AmountPaid:         inv.AmountPaid,
		AmountDue:          inv.AmountDue,
		AttemptCount:       inv.AttemptCount,
		NextPaymentAttempt: inv.NextPaymentAttempt.ptr(),
		PeriodStart:        periodStart.ptr(),
		PeriodEnd:          periodEnd.ptr(),
		PaidAt:             inv.StatusTransitions.PaidAt.ptr(),
		FailureMessage:     failure,
		Metadata:           metadata,
		Created:            timestamp(inv.Created, 0),
	}, nil
}

func parseSubscription(raw []byte) (*domain.Subscription, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	var unitAmount int64
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if start <= 0 {
			start = item.CurrentPeriodStart
		}
		if end <= 0 {
			end = item.CurrentPeriodEnd
		}
		unitAmount = item.Price.UnitAmount
	}

	metadata := sub.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &domain.Subscription{
		ID:                 sub.ID,
		CustomerID:         string(sub.Customer),
		Status:             strings.ToLower(strings.TrimSpace(sub.Status)),
		PauseCollection:    sub.PauseCollection != nil && strings.TrimSpace(sub.PauseCollection.Behavior) != "",
		CurrentPeriodStart: start.ptr(),
		CurrentPeriodEnd:   end.ptr(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		TrialEnd:           sub.TrialEnd.ptr(),
		UnitAmount:         unitAmount,
		Metadata:           metadata,
	}, nil
}

func toSetupIntent(intent stripeSetupIntent) *domain.SetupIntent {
	return &domain.SetupIntent{
		ID:              intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          strings.ToLower(strings.TrimSpace(intent.Status)),
		CustomerID:      string(intent.Customer),
		PaymentMethodID: string(intent.PaymentMethod),
		Metadata:        intent.Metadata,
	}
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
