package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	notificationdomain "github.com/smallbiznis/gymledger/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/gymledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/mapping"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
	Chain       *mapping.Chain
	Repo        domain.Repository
	SubRepo     subscriptiondomain.Repository
	PaymentRepo paymentdomain.Repository
	MemberRepo  memberdomain.Repository
	SettingSvc  settingdomain.Service
	Notifier    notificationdomain.Dispatcher
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	dunning     config.DunningConfig
	updateURL   string
	currency    string
	gateway     gatewaydomain.Gateway
	chain       *mapping.Chain
	repo        domain.Repository
	subRepo     subscriptiondomain.Repository
	paymentRepo paymentdomain.Repository
	memberRepo  memberdomain.Repository
	settingSvc  settingdomain.Service
	notifier    notificationdomain.Dispatcher
	obsMetrics  *obsmetrics.Metrics
	tracer      trace.Tracer
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	dunning := p.Cfg.Dunning
	if dunning.MaxAttempts <= 0 {
		dunning.MaxAttempts = 3
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Cfg.Stripe.Currency))
	if currency == "" {
		currency = "GBP"
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.engine"),
		genID:       p.GenID,
		clock:       p.Clock,
		dunning:     dunning,
		updateURL:   p.Cfg.UpdatePaymentURL(),
		currency:    currency,
		gateway:     p.Gateway,
		chain:       p.Chain,
		repo:        p.Repo,
		subRepo:     p.SubRepo,
		paymentRepo: p.PaymentRepo,
		memberRepo:  p.MemberRepo,
		settingSvc:  p.SettingSvc,
		notifier:    p.Notifier,
		obsMetrics:  p.ObsMetrics,
		tracer:      otel.Tracer("gymledger/reconciliation"),
	}
}

// HandleEvent dispatches a verified event to its handler. Unknown types
// return domain.ErrEventIgnored.
func (s *Service) HandleEvent(ctx context.Context, event *gatewaydomain.Event) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}

	switch event.Type {
	case gatewaydomain.EventInvoicePaymentSucceeded, gatewaydomain.EventInvoicePaid:
		if event.Invoice == nil {
			return domain.ErrInvalidEvent
		}
		return s.HandlePaymentSucceeded(ctx, event.Invoice)
	case gatewaydomain.EventInvoicePaymentFailed:
		if event.Invoice == nil {
			return domain.ErrInvalidEvent
		}
		return s.HandlePaymentFailed(ctx, event.Invoice)
	case gatewaydomain.EventSubscriptionCreated, gatewaydomain.EventSubscriptionUpdated:
		if event.Subscription == nil {
			return domain.ErrInvalidEvent
		}
		return s.HandleSubscriptionUpdated(ctx, event.Subscription)
	case gatewaydomain.EventSubscriptionDeleted:
		if event.Subscription == nil {
			return domain.ErrInvalidEvent
		}
		return s.HandleSubscriptionCancelled(ctx, event.Subscription)
	case gatewaydomain.EventSetupIntentSucceeded:
		// Confirmation runs through the interactive endpoint.
		return nil
	default:
		return domain.ErrEventIgnored
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// resolve runs the mapping chain and records failures for alerting.
func (s *Service) resolve(ctx context.Context, eventType string, inv *gatewaydomain.Invoice, opts ...mapping.Option) (*mapping.Match, error) {
	match, err := s.chain.Resolve(ctx, inv, opts...)
	if err != nil {
		s.obsMetrics.RecordMappingFailure(ctx, eventType)
		s.log.Error("webhook could not be attributed to a subscription",
			zap.String("event_type", eventType),
			zap.String("invoice_id", inv.ID),
			zap.String("gateway_subscription_id", inv.SubscriptionID),
			zap.String("gateway_customer_id", inv.CustomerID),
			zap.Any("metadata", inv.Metadata),
			zap.Error(err),
		)
		return nil, err
	}
	s.log.Debug("webhook attributed",
		zap.String("event_type", eventType),
		zap.String("invoice_id", inv.ID),
		zap.String("subscription_id", match.Subscription.ID.String()),
		zap.String("strategy", match.Strategy),
	)
	return match, nil
}

func (s *Service) transition(sub *subscriptiondomain.Subscription, trigger subscriptiondomain.Trigger) bool {
	next, err := subscriptiondomain.Transition(sub.Status, trigger)
	if err != nil {
		s.log.Warn("subscription transition rejected",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("status", string(sub.Status)),
			zap.String("trigger", string(trigger)),
		)
		return false
	}
	sub.Status = next
	return true
}

func (s *Service) syncMemberships(ctx context.Context, sub *subscriptiondomain.Subscription, dunningSuspended bool, at time.Time) error {
	status := subscriptiondomain.DeriveMembershipStatus(sub.Status, dunningSuspended)
	if err := s.subRepo.UpdateMembershipsByUser(ctx, s.db, sub.UserID, status, sub.NextBillingDate, at); err != nil {
		return fmt.Errorf("update memberships for user %s: %w", sub.UserID, err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, kind notificationdomain.Kind, sub *subscriptiondomain.Subscription, fill func(*notificationdomain.Notice)) {
	if s.notifier == nil {
		return
	}
	notice := notificationdomain.Notice{
		Kind:             kind,
		UserID:           sub.UserID,
		SubscriptionID:   sub.ID,
		MembershipType:   sub.MembershipType,
		Amount:           sub.MonthlyPrice,
		MaxAttempts:      int64(s.dunning.MaxAttempts),
		UpdatePaymentURL: s.updateURL,
	}
	user, err := s.memberRepo.FindByID(ctx, s.db, sub.UserID)
	if err != nil {
		s.log.Warn("load notification recipient", zap.String("user_id", sub.UserID.String()), zap.Error(err))
	}
	if user != nil {
		notice.Email = user.Email
		notice.FirstName = user.FirstName
	}
	if fill != nil {
		fill(&notice)
	}
	_ = s.notifier.Dispatch(ctx, notice)
}

func (s *Service) ListRecentEvents(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	return s.repo.ListRecent(ctx, s.db, limit)
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func idPtr(id snowflake.ID) *snowflake.ID {
	return &id
}
