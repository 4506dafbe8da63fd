package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/smallbiznis/gymledger/internal/gateway/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/balance"
	"github.com/stripe/stripe-go/v82/charge"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/setupintent"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const defaultProductName = "Gym membership"

type Client struct {
	cfg config.StripeConfig
	log *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) domain.Gateway {
	stripe.Key = strings.TrimSpace(cfg.Stripe.SecretKey)
	return &Client{
		cfg: cfg.Stripe,
		log: log.Named("gateway.stripe"),
	}
}

func (c *Client) ready() error {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return domain.ErrNotConfigured
	}
	return nil
}

func (c *Client) currency(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		value = strings.ToLower(strings.TrimSpace(c.cfg.Currency))
	}
	if value == "" {
		value = "gbp"
	}
	return value
}

func (c *Client) CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.CustomerParams{
		Email:    stripe.String(req.Email),
		Metadata: req.Metadata,
	}
	params.Context = ctx
	if name := strings.TrimSpace(req.Name); name != "" {
		params.Name = stripe.String(name)
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		params.Phone = stripe.String(phone)
	}
	cus, err := customer.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return toCustomer(cus), nil
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cus, err := customer.Get(customerID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toCustomer(cus), nil
}

func (c *Client) CreateSetupIntent(ctx context.Context, customerID string, metadata map[string]string) (*domain.SetupIntent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
		Metadata:           metadata,
	}
	params.Context = ctx
	intent, err := setupintent.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return toDomainSetupIntent(intent), nil
}

func (c *Client) GetSetupIntent(ctx context.Context, setupIntentID string) (*domain.SetupIntent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.SetupIntentParams{}
	params.Context = ctx
	intent, err := setupintent.Get(setupIntentID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toDomainSetupIntent(intent), nil
}

func (c *Client) FindOrCreateMonthlyPrice(ctx context.Context, amount int64, currency string) (*domain.Price, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	currency = c.currency(currency)

	list := &stripe.PriceListParams{
		Active:   stripe.Bool(true),
		Currency: stripe.String(currency),
		Type:     stripe.String(string(stripe.PriceTypeRecurring)),
		Recurring: &stripe.PriceListRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
	}
	list.Context = ctx
	iter := price.List(list)
	for iter.Next() {
		p := iter.Price()
		if p.UnitAmount == amount && p.Recurring != nil && p.Recurring.IntervalCount <= 1 {
			return toPrice(p), nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}

	productName := strings.TrimSpace(c.cfg.ProductName)
	if productName == "" {
		productName = defaultProductName
	}
	params := &stripe.PriceParams{
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(amount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(productName),
		},
	}
	params.Context = ctx
	created, err := price.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	c.log.Info("created monthly price", zap.String("price_id", created.ID), zap.Int64("unit_amount", amount))
	return toPrice(created), nil
}

func (c *Client) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{
		Customer:         stripe.String(req.CustomerID),
		CollectionMethod: stripe.String(string(stripe.SubscriptionCollectionMethodChargeAutomatically)),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
		Metadata: req.Metadata,
	}
	params.Context = ctx
	if req.TrialEnd != nil {
		params.TrialEnd = stripe.Int64(req.TrialEnd.Unix())
	}
	if pm := strings.TrimSpace(req.DefaultPaymentMethod); pm != "" {
		params.DefaultPaymentMethod = stripe.String(pm)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	sub, err := subscription.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return convertSubscription(sub)
}

func (c *Client) PauseCollection(ctx context.Context, subscriptionID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
	}
	params.Context = ctx
	_, err := subscription.Update(subscriptionID, params)
	return mapError(err)
}

// ClearSubscriptionMetadata unsets keys; the API treats empty values as deletes.
func (c *Client) ClearSubscriptionMetadata(ctx context.Context, subscriptionID string, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	params := &stripe.SubscriptionParams{Metadata: map[string]string{}}
	params.Context = ctx
	for _, key := range keys {
		params.Metadata[key] = ""
	}
	_, err := subscription.Update(subscriptionID, params)
	return mapError(err)
}

func (c *Client) ChargeInvoice(ctx context.Context, req domain.ChargeRequest) (*domain.Invoice, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	currency := c.currency(req.Currency)

	invParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(req.CustomerID),
		AutoAdvance:                 stripe.Bool(false),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically)),
		PendingInvoiceItemsBehavior: stripe.String("exclude"),
		Description:                 stripe.String(req.Description),
		Metadata:                    req.Metadata,
	}
	invParams.Context = ctx
	if req.PaymentMethodID != "" {
		invParams.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.IdempotencyKey != "" {
		invParams.SetIdempotencyKey(req.IdempotencyKey + ":invoice")
	}
	inv, err := invoice.New(invParams)
	if err != nil {
		return nil, mapError(err)
	}

	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(req.CustomerID),
		Invoice:     stripe.String(inv.ID),
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(currency),
		Description: stripe.String(req.Description),
	}
	itemParams.Context = ctx
	if req.IdempotencyKey != "" {
		itemParams.SetIdempotencyKey(req.IdempotencyKey + ":item")
	}
	if _, err := invoiceitem.New(itemParams); err != nil {
		return nil, mapError(err)
	}

	payParams := &stripe.InvoicePayParams{}
	payParams.Context = ctx
	if req.PaymentMethodID != "" {
		payParams.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	paid, err := invoice.Pay(inv.ID, payParams)
	if err != nil {
		return nil, mapError(err)
	}
	return convertInvoice(paid)
}

func (c *Client) GetDeclineDetails(ctx context.Context, chargeID, paymentIntentID string) (*domain.DeclineDetails, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if chargeID != "" {
		params := &stripe.ChargeParams{}
		params.Context = ctx
		ch, err := charge.Get(chargeID, params)
		if err == nil && (ch.FailureCode != "" || ch.FailureMessage != "") {
			code := ch.FailureCode
			if ch.Outcome != nil && ch.Outcome.Reason != "" {
				code = ch.Outcome.Reason
			}
			return &domain.DeclineDetails{Code: code, Message: ch.FailureMessage}, nil
		}
	}
	if paymentIntentID != "" {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := paymentintent.Get(paymentIntentID, params)
		if err != nil {
			return nil, mapError(err)
		}
		if pi.LastPaymentError != nil {
			code := string(pi.LastPaymentError.DeclineCode)
			if code == "" {
				code = string(pi.LastPaymentError.Code)
			}
			return &domain.DeclineDetails{Code: code, Message: pi.LastPaymentError.Msg}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *Client) GetBalance(ctx context.Context) (*domain.Balance, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx
	bal, err := balance.Get(params)
	if err != nil {
		return nil, mapError(err)
	}
	out := &domain.Balance{}
	for _, a := range bal.Available {
		out.Available = append(out.Available, domain.Money{Amount: a.Amount, Currency: strings.ToUpper(string(a.Currency))})
	}
	for _, a := range bal.Pending {
		out.Pending = append(out.Pending, domain.Money{Amount: a.Amount, Currency: strings.ToUpper(string(a.Currency))})
	}
	return out, nil
}

func (c *Client) ListPaidInvoices(ctx context.Context, since, until time.Time) ([]domain.Invoice, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.InvoiceListParams{
		Status: stripe.String(string(stripe.InvoiceStatusPaid)),
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: since.Unix(),
			LesserThan:         until.Unix(),
		},
	}
	params.Context = ctx

	var out []domain.Invoice
	iter := invoice.List(params)
	for iter.Next() {
		inv, err := convertInvoice(iter.Invoice())
		if err != nil {
			c.log.Warn("skipping unparseable invoice", zap.Error(err))
			continue
		}
		out = append(out, *inv)
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) (*domain.Event, error) {
	secret := strings.TrimSpace(c.cfg.WebhookSecret)
	if secret == "" {
		return nil, domain.ErrNotConfigured
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, domain.ErrInvalidSignature
	}
	if _, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}); err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return nil, domain.ErrInvalidSignature
		}
		return nil, domain.ErrInvalidPayload
	}
	return parseEvent(payload)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			code := string(stripeErr.DeclineCode)
			if code == "" {
				code = string(stripeErr.Code)
			}
			return &domain.DeclineError{
				Code:   code,
				Reason: domain.DescribeDecline(&domain.DeclineDetails{Code: code, Message: stripeErr.Msg}, ""),
			}
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return domain.ErrNotFound
		}
	}
	return err
}
