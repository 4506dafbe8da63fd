// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/gymledger/internal/gateway/domain"
)

// Fake records calls and serves canned responses. Zero value is usable.
type Fake struct {
	mu sync.Mutex

	Customers    map[string]*domain.Customer
	SetupIntents map[string]*domain.SetupIntent
	PaidInvoices []domain.Invoice
	Declines     map[string]*domain.DeclineDetails
	Balance      domain.Balance
	Signature    string

	// Err* fields force the matching call to fail.
	ErrCreateCustomer     error
	ErrCreateSubscription error
	ErrCharge             error
	ErrDecline            error
	ErrPause              error

	CreatedCustomers     []domain.CreateCustomerRequest
	CreatedSubscriptions []domain.CreateSubscriptionRequest
	Charges              []domain.ChargeRequest
	Paused               []string
	ClearedMetadata      map[string][]string
	DeclineLookups       int

	seq int
}

func (f *Fake) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) CreateCustomer(_ context.Context, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrCreateCustomer != nil {
		return nil, f.ErrCreateCustomer
	}
	f.CreatedCustomers = append(f.CreatedCustomers, req)
	cus := &domain.Customer{ID: f.next("cus"), Email: req.Email, Name: req.Name, Metadata: req.Metadata}
	if f.Customers == nil {
		f.Customers = map[string]*domain.Customer{}
	}
	f.Customers[cus.ID] = cus
	return cus, nil
}

func (f *Fake) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cus, ok := f.Customers[customerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cus, nil
}

func (f *Fake) CreateSetupIntent(_ context.Context, customerID string, metadata map[string]string) (*domain.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next("seti")
	intent := &domain.SetupIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		CustomerID:   customerID,
		Metadata:     metadata,
	}
	if f.SetupIntents == nil {
		f.SetupIntents = map[string]*domain.SetupIntent{}
	}
	f.SetupIntents[id] = intent
	return intent, nil
}

func (f *Fake) GetSetupIntent(_ context.Context, setupIntentID string) (*domain.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.SetupIntents[setupIntentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return intent, nil
}

// CompleteSetupIntent simulates the customer finishing card entry.
func (f *Fake) CompleteSetupIntent(setupIntentID, paymentMethodID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intent, ok := f.SetupIntents[setupIntentID]; ok {
		intent.Status = domain.SetupIntentSucceeded
		intent.PaymentMethodID = paymentMethodID
	}
}

func (f *Fake) FindOrCreateMonthlyPrice(_ context.Context, amount int64, currency string) (*domain.Price, error) {
	return &domain.Price{
		ID:         fmt.Sprintf("price_%d", amount),
		UnitAmount: amount,
		Currency:   currency,
		Interval:   "month",
	}, nil
}

func (f *Fake) CreateSubscription(_ context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrCreateSubscription != nil {
		return nil, f.ErrCreateSubscription
	}
	f.CreatedSubscriptions = append(f.CreatedSubscriptions, req)
	status := "active"
	if req.TrialEnd != nil {
		status = "trialing"
	}
	return &domain.Subscription{
		ID:         f.next("sub"),
		CustomerID: req.CustomerID,
		Status:     status,
		TrialEnd:   req.TrialEnd,
		Metadata:   req.Metadata,
	}, nil
}

func (f *Fake) PauseCollection(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrPause != nil {
		return f.ErrPause
	}
	f.Paused = append(f.Paused, subscriptionID)
	return nil
}

func (f *Fake) ClearSubscriptionMetadata(_ context.Context, subscriptionID string, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClearedMetadata == nil {
		f.ClearedMetadata = map[string][]string{}
	}
	f.ClearedMetadata[subscriptionID] = append(f.ClearedMetadata[subscriptionID], keys...)
	return nil
}

func (f *Fake) ChargeInvoice(_ context.Context, req domain.ChargeRequest) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrCharge != nil {
		return nil, f.ErrCharge
	}
	f.Charges = append(f.Charges, req)
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Invoice{
		ID:              f.next("in"),
		CustomerID:      req.CustomerID,
		PaymentIntentID: f.next("pi"),
		Status:          "paid",
		Currency:        req.Currency,
		AmountPaid:      req.Amount,
		AmountDue:       req.Amount,
		PaidAt:          &now,
		Metadata:        req.Metadata,
		Created:         now,
	}, nil
}

func (f *Fake) GetDeclineDetails(_ context.Context, chargeID, paymentIntentID string) (*domain.DeclineDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeclineLookups++
	if f.ErrDecline != nil {
		return nil, f.ErrDecline
	}
	for _, key := range []string{chargeID, paymentIntentID} {
		if details, ok := f.Declines[key]; ok && key != "" {
			return details, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *Fake) GetBalance(context.Context) (*domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance := f.Balance
	return &balance, nil
}

func (f *Fake) ListPaidInvoices(_ context.Context, since, until time.Time) ([]domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range f.PaidInvoices {
		if !inv.Created.Before(since) && inv.Created.Before(until) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// VerifyWebhook accepts the configured signature and decodes the payload
// as a serialized domain.Event.
func (f *Fake) VerifyWebhook(payload []byte, signatureHeader string) (*domain.Event, error) {
	if f.Signature != "" && signatureHeader != f.Signature {
		return nil, domain.ErrInvalidSignature
	}
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if event.ID == "" || event.Type == "" {
		return nil, domain.ErrInvalidPayload
	}
	event.Raw = payload
	return &event, nil
}

var _ domain.Gateway = (*Fake)(nil)
