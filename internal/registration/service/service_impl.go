package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/registration/domain"
	routingdomain "github.com/smallbiznis/gymledger/internal/routing/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Gateway     gatewaydomain.Gateway
	Router      routingdomain.Service
	Repo        domain.Repository
	MemberRepo  memberdomain.Repository
	SubRepo     subscriptiondomain.Repository
	PaymentRepo paymentdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	currency    string
	gateway     gatewaydomain.Gateway
	router      routingdomain.Service
	repo        domain.Repository
	memberRepo  memberdomain.Repository
	subRepo     subscriptiondomain.Repository
	paymentRepo paymentdomain.Repository
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Cfg.Stripe.Currency))
	if currency == "" {
		currency = "GBP"
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("registration.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		currency:    currency,
		gateway:     p.Gateway,
		router:      p.Router,
		repo:        p.Repo,
		memberRepo:  p.MemberRepo,
		subRepo:     p.SubRepo,
		paymentRepo: p.PaymentRepo,
	}
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.MembershipPlan, error) {
	return s.repo.ListPlans(ctx, s.db, true)
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, domain.ErrInvalidFirstName
	}
	planKey := strings.TrimSpace(req.PlanKey)
	if planKey == "" {
		return nil, domain.ErrInvalidPlanKey
	}

	plan, err := s.repo.FindPlanByKey(ctx, s.db, planKey)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}

	existing, err := s.memberRepo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, memberdomain.ErrEmailTaken
	}

	var parent *memberdomain.User
	if req.ParentUserID != nil {
		parent, err = s.memberRepo.FindByID(ctx, s.db, *req.ParentUserID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, domain.ErrParentNotFound
		}
	}

	// Routing happens before any row exists so an infeasible route leaves nothing behind.
	decision, err := s.router.Route(ctx, routingdomain.RouteRequest{
		Amount:         plan.MonthlyPrice,
		MembershipType: plan.MembershipType,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	user := &memberdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		FirstName:    firstName,
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		ParentUserID: req.ParentUserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	subID := s.genID.Generate()
	sub := &subscriptiondomain.Subscription{
		ID:                    subID,
		UserID:                user.ID,
		GatewaySubscriptionID: subscriptiondomain.PlaceholderGatewayID(subID),
		MembershipType:        plan.MembershipType,
		MonthlyPrice:          plan.MonthlyPrice,
		RoutedEntityID:        decision.Selected.EntityID,
		Status:                subscriptiondomain.SubscriptionStatusPendingPayment,
		Metadata:              datatypes.JSONMap(lo.MapValues(subscriptionMetadata(user, subID, decision, plan, parent), func(v string, _ string) any { return v })),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	membership := &subscriptiondomain.Membership{
		ID:             s.genID.Generate(),
		UserID:         user.ID,
		SubscriptionID: &subID,
		MembershipType: plan.MembershipType,
		Status:         subscriptiondomain.MembershipStatusPendingPayment,
		MonthlyPrice:   plan.MonthlyPrice,
		BillingDay:     1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memberRepo.Insert(ctx, tx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return memberdomain.ErrEmailTaken
			}
			return err
		}
		if err := s.subRepo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		return s.subRepo.InsertMembership(ctx, tx, membership)
	})
	if err != nil {
		return nil, err
	}

	result := &domain.RegisterResult{
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		MembershipID:   membership.ID,
		Routing:        decision,
	}

	if err := s.startSetup(ctx, user, parent, sub, result); err != nil {
		s.log.Warn("registration saved without payment setup",
			zap.String("user_id", user.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
		result.PartialSuccess = true
		result.SetupError = err.Error()
	}

	s.log.Info("member registered",
		zap.String("user_id", user.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("entity_id", decision.Selected.EntityID.String()),
		zap.String("method", string(decision.Method)),
		zap.Bool("partial_success", result.PartialSuccess),
	)
	return result, nil
}

// startSetup creates (or reuses the payer's) gateway customer and a setup
// intent. Sub-accounts are billed to the parent's customer.
func (s *Service) startSetup(ctx context.Context, user, parent *memberdomain.User, sub *subscriptiondomain.Subscription, result *domain.RegisterResult) error {
	payer := user
	if parent != nil {
		payer = parent
	}

	customerID := ""
	if payer.GatewayCustomerID != nil {
		customerID = strings.TrimSpace(*payer.GatewayCustomerID)
	}
	if customerID == "" {
		customer, err := s.gateway.CreateCustomer(ctx, gatewaydomain.CreateCustomerRequest{
			Email:    payer.Email,
			Name:     payer.FullName(),
			Phone:    payer.Phone,
			Metadata: map[string]string{subscriptiondomain.MetadataUserID: payer.ID.String()},
		})
		if err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		customerID = customer.ID
		if err := s.memberRepo.SetGatewayCustomerID(ctx, s.db, payer.ID, customerID, s.clock.Now().UTC()); err != nil {
			return fmt.Errorf("store customer: %w", err)
		}
	}
	result.CustomerID = customerID

	sub.GatewayCustomerID = &customerID
	sub.UpdatedAt = s.clock.Now().UTC()
	if err := s.subRepo.Update(ctx, s.db, sub); err != nil {
		return fmt.Errorf("link customer: %w", err)
	}

	intent, err := s.gateway.CreateSetupIntent(ctx, customerID, map[string]string{
		subscriptiondomain.MetadataInternalSubscriptionID: sub.ID.String(),
		subscriptiondomain.MetadataUserID:                 user.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("create setup intent: %w", err)
	}
	result.SetupIntentID = intent.ID
	result.ClientSecret = intent.ClientSecret
	return nil
}

func (s *Service) ConfirmPayment(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	setupID := strings.TrimSpace(req.SetupIntentID)
	if setupID == "" {
		return nil, domain.ErrInvalidSetupID
	}

	intent, err := s.gateway.GetSetupIntent(ctx, setupID)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrNotFound) {
			return nil, domain.ErrSetupIntentNotFound
		}
		return nil, err
	}
	if intent.Status != gatewaydomain.SetupIntentSucceeded {
		return nil, domain.ErrSetupIncomplete
	}

	subID, err := snowflake.ParseString(strings.TrimSpace(intent.Metadata[subscriptiondomain.MetadataInternalSubscriptionID]))
	if err != nil || subID == 0 {
		return nil, domain.ErrSetupIntentNotFound
	}
	sub, err := s.subRepo.FindByID(ctx, s.db, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if sub.HasGatewaySubscription() {
		return nil, domain.ErrAlreadyConfirmed
	}

	next, err := subscriptiondomain.Transition(sub.Status, subscriptiondomain.TriggerSetupConfirmed)
	if err != nil {
		return nil, err
	}

	customerID := intent.CustomerID
	if customerID == "" && sub.GatewayCustomerID != nil {
		customerID = *sub.GatewayCustomerID
	}

	now := s.clock.Now().UTC()
	proration := domain.Prorate(sub.MonthlyPrice, now)
	result := &domain.ConfirmResult{
		SubscriptionID: sub.ID,
		ProratedAmount: proration.Amount.InexactFloat64(),
		TrialEnd:       proration.TrialEnd,
	}

	metadata := map[string]string{
		subscriptiondomain.MetadataInternalSubscriptionID: sub.ID.String(),
		subscriptiondomain.MetadataUserID:                 sub.UserID.String(),
		subscriptiondomain.MetadataRoutedEntityID:         sub.RoutedEntityID.String(),
		subscriptiondomain.MetadataMembershipType:         sub.MembershipType,
	}

	if proration.Amount.IsPositive() {
		invoiceID, err := s.chargeProration(ctx, sub, customerID, intent.PaymentMethodID, proration, metadata)
		if err != nil {
			return nil, err
		}
		result.ProrationInvoiceID = invoiceID
	}

	price, err := s.gateway.FindOrCreateMonthlyPrice(ctx, gatewaydomain.ToMinor(sub.MonthlyPrice), strings.ToLower(s.currency))
	if err != nil {
		return nil, fmt.Errorf("find monthly price: %w", err)
	}
	trialEnd := proration.TrialEnd
	gwSub, err := s.gateway.CreateSubscription(ctx, gatewaydomain.CreateSubscriptionRequest{
		CustomerID:           customerID,
		PriceID:              price.ID,
		TrialEnd:             &trialEnd,
		DefaultPaymentMethod: intent.PaymentMethodID,
		Metadata:             metadata,
		IdempotencyKey:       "subscription-" + sub.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway subscription: %w", err)
	}

	sub.GatewaySubscriptionID = gwSub.ID
	sub.GatewayCustomerID = &customerID
	sub.Status = next
	// Cleared by the first settled invoice webhook.
	sub.Provisional = true
	sub.CurrentPeriodStart = &now
	sub.CurrentPeriodEnd = &trialEnd
	sub.NextBillingDate = &trialEnd
	sub.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.subRepo.Update(ctx, tx, sub); err != nil {
			return err
		}
		return s.subRepo.UpdateMembershipsByUser(ctx, tx, sub.UserID, subscriptiondomain.MembershipStatusActive, &trialEnd, now)
	})
	if err != nil {
		return nil, err
	}

	result.GatewaySubscriptionID = gwSub.ID
	result.Status = string(sub.Status)
	result.Provisional = sub.Provisional

	s.log.Info("membership payment confirmed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("gateway_subscription_id", gwSub.ID),
		zap.Float64("prorated_amount", result.ProratedAmount),
		zap.Time("trial_end", trialEnd),
	)
	return result, nil
}

// chargeProration bills the partial first month and records it PENDING; the
// paid-invoice webhook confirms the row.
func (s *Service) chargeProration(ctx context.Context, sub *subscriptiondomain.Subscription, customerID, paymentMethodID string, proration domain.Proration, metadata map[string]string) (string, error) {
	description := paymentdomain.BuildDescription("Membership proration", paymentdomain.Tags{
		MemberUserID:   sub.UserID.String(),
		SubscriptionID: sub.ID.String(),
	})
	invoice, err := s.gateway.ChargeInvoice(ctx, gatewaydomain.ChargeRequest{
		CustomerID:      customerID,
		Amount:          gatewaydomain.ToMinor(proration.Amount.InexactFloat64()),
		Currency:        strings.ToLower(s.currency),
		Description:     description,
		PaymentMethodID: paymentMethodID,
		Metadata:        metadata,
		IdempotencyKey:  "proration-" + sub.ID.String(),
	})
	if err != nil {
		return "", err
	}

	now := s.clock.Now().UTC()
	invoiceID := invoice.ID
	payment := &paymentdomain.Payment{
		ID:             s.genID.Generate(),
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		Amount:         proration.Amount.InexactFloat64(),
		Currency:       s.currency,
		Status:         paymentdomain.PaymentStatusPending,
		Description: paymentdomain.BuildDescription("Membership proration", paymentdomain.Tags{
			InvoiceID:       invoice.ID,
			PaymentIntentID: invoice.PaymentIntentID,
			MemberUserID:    sub.UserID.String(),
			SubscriptionID:  sub.ID.String(),
		}),
		RoutedEntityID:   sub.RoutedEntityID,
		GatewayInvoiceID: &invoiceID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if invoice.PaymentIntentID != "" {
		pi := invoice.PaymentIntentID
		payment.GatewayPaymentIntentID = &pi
	}
	if _, err := s.paymentRepo.Insert(ctx, s.db, payment); err != nil {
		return "", err
	}
	return invoice.ID, nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", domain.ErrInvalidEmail
	}
	return trimmed, nil
}

func subscriptionMetadata(user *memberdomain.User, subID snowflake.ID, decision *routingdomain.Decision, plan *domain.MembershipPlan, parent *memberdomain.User) map[string]string {
	metadata := map[string]string{
		subscriptiondomain.MetadataInternalSubscriptionID: subID.String(),
		subscriptiondomain.MetadataUserID:                 user.ID.String(),
		subscriptiondomain.MetadataRoutedEntityID:         decision.Selected.EntityID.String(),
		subscriptiondomain.MetadataMembershipType:         plan.MembershipType,
	}
	if parent != nil {
		metadata[subscriptiondomain.MetadataChildUserID] = user.ID.String()
	}
	return metadata
}
