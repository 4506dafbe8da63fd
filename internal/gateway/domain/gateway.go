package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gateway wraps the processor primitives the ledger consumes.
type Gateway interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	CreateSetupIntent(ctx context.Context, customerID string, metadata map[string]string) (*SetupIntent, error)
	GetSetupIntent(ctx context.Context, setupIntentID string) (*SetupIntent, error)

	// FindOrCreateMonthlyPrice reuses an active monthly price with the same amount.
	FindOrCreateMonthlyPrice(ctx context.Context, amount int64, currency string) (*Price, error)
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	PauseCollection(ctx context.Context, subscriptionID string) error
	ClearSubscriptionMetadata(ctx context.Context, subscriptionID string, keys ...string) error

	ChargeInvoice(ctx context.Context, req ChargeRequest) (*Invoice, error)
	GetDeclineDetails(ctx context.Context, chargeID, paymentIntentID string) (*DeclineDetails, error)
	GetBalance(ctx context.Context) (*Balance, error)
	ListPaidInvoices(ctx context.Context, since, until time.Time) ([]Invoice, error)

	// VerifyWebhook checks the signature header and parses the delivery.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrNotConfigured    = errors.New("gateway_not_configured")
	ErrNotFound         = errors.New("gateway_resource_not_found")
)

// DeclineError is returned when the processor refuses a charge.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}
