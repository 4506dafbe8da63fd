package stripe

import (
	"encoding/json"
	"strings"

	"github.com/smallbiznis/gymledger/internal/gateway/domain"
	stripe "github.com/stripe/stripe-go/v82"
)

func toCustomer(c *stripe.Customer) *domain.Customer {
	return &domain.Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Metadata: c.Metadata,
	}
}

func toDomainSetupIntent(intent *stripe.SetupIntent) *domain.SetupIntent {
	out := &domain.SetupIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       strings.ToLower(string(intent.Status)),
		Metadata:     intent.Metadata,
	}
	if intent.Customer != nil {
		out.CustomerID = intent.Customer.ID
	}
	if intent.PaymentMethod != nil {
		out.PaymentMethodID = intent.PaymentMethod.ID
	}
	return out
}

func toPrice(p *stripe.Price) *domain.Price {
	out := &domain.Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   strings.ToUpper(string(p.Currency)),
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

// API objects are re-read through the webhook parser so that both paths
// share one notion of where ids and periods live.
func convertInvoice(inv *stripe.Invoice) (*domain.Invoice, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	return parseInvoice(raw)
}

func convertSubscription(sub *stripe.Subscription) (*domain.Subscription, error) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}
	return parseSubscription(raw)
}
