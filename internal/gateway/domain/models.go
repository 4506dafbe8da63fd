// Package domain is the processor-neutral surface of the payment gateway.
// Amounts are minor units (pence) at this boundary.
package domain

import (
	"strings"
	"time"
)

// Event types the reconciliation engine understands.
const (
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventSetupIntentSucceeded    = "setup_intent.succeeded"
)

// Event is a verified gateway webhook delivery. Exactly one of Invoice,
// Subscription or SetupIntent is set for the types above.
type Event struct {
	ID           string
	Type         string
	Created      time.Time
	Invoice      *Invoice
	Subscription *Subscription
	SetupIntent  *SetupIntent
	Raw          []byte
}

type Invoice struct {
	ID                 string
	CustomerID         string
	SubscriptionID     string
	PaymentIntentID    string
	ChargeID           string
	Status             string
	Currency           string
	AmountPaid         int64
	AmountDue          int64
	AttemptCount       int64
	NextPaymentAttempt *time.Time
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	PaidAt             *time.Time
	FailureMessage     string
	// Metadata merges the invoice's own metadata with the parent
	// subscription's; invoice keys win.
	Metadata map[string]string
	Created  time.Time
}

func (i Invoice) MetadataValue(key string) string {
	return strings.TrimSpace(i.Metadata[key])
}

type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PauseCollection    bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	TrialEnd           *time.Time
	UnitAmount         int64
	Metadata           map[string]string
}

func (s Subscription) MetadataValue(key string) string {
	return strings.TrimSpace(s.Metadata[key])
}

type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

type SetupIntent struct {
	ID              string
	ClientSecret    string
	Status          string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
}

const SetupIntentSucceeded = "succeeded"

type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
	Interval   string
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []Money `json:"available"`
	Pending   []Money `json:"pending"`
}

// DeclineDetails is what the processor reported for a failed charge.
type DeclineDetails struct {
	Code    string
	Message string
}

type CreateCustomerRequest struct {
	Email    string
	Name     string
	Phone    string
	Metadata map[string]string
}

type CreateSubscriptionRequest struct {
	CustomerID           string
	PriceID              string
	TrialEnd             *time.Time
	DefaultPaymentMethod string
	Metadata             map[string]string
	IdempotencyKey       string
}

// ChargeRequest bills a one-off amount as its own invoice and pays it.
type ChargeRequest struct {
	CustomerID      string
	Amount          int64
	Currency        string
	Description     string
	PaymentMethodID string
	Metadata        map[string]string
	IdempotencyKey  string
}
