// Package mapping attributes gateway invoices to local subscriptions through
// an ordered list of strategies. The first strategy that yields a usable
// subscription wins.
package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Strategy names, in default precedence order.
const (
	StrategyInternalSubscriptionID = "internal_subscription_id"
	StrategyGatewaySubscriptionID  = "gateway_subscription_id"
	StrategyMemberUserID           = "member_user_id"
	StrategyCustomerMetadata       = "customer_metadata"
)

// Resolver returns a candidate subscription id, or ok=false when the strategy
// has nothing to say about the invoice.
type Resolver func(ctx context.Context, inv *gatewaydomain.Invoice) (id snowflake.ID, ok bool, err error)

type Strategy struct {
	Name    string
	Resolve Resolver
}

// Match is the chain's verdict for one invoice.
type Match struct {
	Subscription *subscriptiondomain.Subscription
	Strategy     string
}

type options struct {
	exclude []subscriptiondomain.SubscriptionStatus
}

type Option func(*options)

// ExcludeStatuses makes the chain skip candidates in the given states and
// fall through to the next strategy.
func ExcludeStatuses(statuses ...subscriptiondomain.SubscriptionStatus) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, statuses...)
	}
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Gateway    gatewaydomain.Gateway
	SubRepo    subscriptiondomain.Repository
	MemberRepo memberdomain.Repository
}

type Chain struct {
	db         *gorm.DB
	log        *zap.Logger
	subRepo    subscriptiondomain.Repository
	strategies []Strategy
}

// New builds the default chain.
func New(p Params) *Chain {
	return NewChain(p.DB, p.Log, p.SubRepo,
		InternalSubscriptionID(),
		GatewaySubscriptionID(p.DB, p.SubRepo),
		MemberUserID(p.DB, p.SubRepo),
		CustomerMetadata(p.DB, p.Gateway, p.SubRepo, p.MemberRepo),
	)
}

func NewChain(db *gorm.DB, log *zap.Logger, subRepo subscriptiondomain.Repository, strategies ...Strategy) *Chain {
	return &Chain{
		db:         db,
		log:        log.Named("reconciliation.mapping"),
		subRepo:    subRepo,
		strategies: strategies,
	}
}

// Strategies lists the strategy names in precedence order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Resolve walks the strategies in order. It returns an error wrapping
// domain.ErrMappingFailed when none of them produce a usable subscription.
func (c *Chain) Resolve(ctx context.Context, inv *gatewaydomain.Invoice, opts ...Option) (*Match, error) {
	if inv == nil {
		return nil, domain.ErrInvalidEvent
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	for _, strategy := range c.strategies {
		id, ok, err := strategy.Resolve(ctx, inv)
		if err != nil {
			return nil, fmt.Errorf("mapping strategy %s: %w", strategy.Name, err)
		}
		if !ok || id == 0 {
			continue
		}

		sub, err := c.subRepo.FindByID(ctx, c.db, id)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			c.log.Debug("mapping candidate not found",
				zap.String("strategy", strategy.Name),
				zap.String("invoice_id", inv.ID),
				zap.String("subscription_id", id.String()),
			)
			continue
		}
		if excluded(sub.Status, o.exclude) {
			c.log.Debug("mapping candidate excluded",
				zap.String("strategy", strategy.Name),
				zap.String("invoice_id", inv.ID),
				zap.String("status", string(sub.Status)),
			)
			continue
		}
		return &Match{Subscription: sub, Strategy: strategy.Name}, nil
	}

	return nil, fmt.Errorf("%w: invoice %s (gateway subscription %q, customer %q)",
		domain.ErrMappingFailed, inv.ID, inv.SubscriptionID, inv.CustomerID)
}

func excluded(status subscriptiondomain.SubscriptionStatus, exclude []subscriptiondomain.SubscriptionStatus) bool {
	for _, s := range exclude {
		if s == status {
			return true
		}
	}
	return false
}

// InternalSubscriptionID reads the local id written onto the gateway
// subscription at creation.
func InternalSubscriptionID() Strategy {
	return Strategy{
		Name: StrategyInternalSubscriptionID,
		Resolve: func(_ context.Context, inv *gatewaydomain.Invoice) (snowflake.ID, bool, error) {
			return parseID(inv.MetadataValue(subscriptiondomain.MetadataInternalSubscriptionID))
		},
	}
}

func GatewaySubscriptionID(db *gorm.DB, subRepo subscriptiondomain.Repository) Strategy {
	return Strategy{
		Name: StrategyGatewaySubscriptionID,
		Resolve: func(ctx context.Context, inv *gatewaydomain.Invoice) (snowflake.ID, bool, error) {
			if inv.SubscriptionID == "" {
				return 0, false, nil
			}
			sub, err := subRepo.FindByGatewayID(ctx, db, inv.SubscriptionID)
			if err != nil || sub == nil {
				return 0, false, err
			}
			return sub.ID, true, nil
		},
	}
}

// MemberUserID covers family billing where the payer is not the member.
func MemberUserID(db *gorm.DB, subRepo subscriptiondomain.Repository) Strategy {
	return Strategy{
		Name: StrategyMemberUserID,
		Resolve: func(ctx context.Context, inv *gatewaydomain.Invoice) (snowflake.ID, bool, error) {
			for _, key := range []string{subscriptiondomain.MetadataMemberUserID, subscriptiondomain.MetadataChildUserID} {
				userID, ok, _ := parseID(inv.MetadataValue(key))
				if !ok {
					continue
				}
				id, found, err := latestOpenSubscription(ctx, db, subRepo, userID)
				if err != nil || found {
					return id, found, err
				}
			}
			return 0, false, nil
		},
	}
}

// CustomerMetadata fetches the gateway customer and reads the local user id
// from its metadata, falling back to the locally stored customer link.
func CustomerMetadata(db *gorm.DB, gw gatewaydomain.Gateway, subRepo subscriptiondomain.Repository, memberRepo memberdomain.Repository) Strategy {
	return Strategy{
		Name: StrategyCustomerMetadata,
		Resolve: func(ctx context.Context, inv *gatewaydomain.Invoice) (snowflake.ID, bool, error) {
			if inv.CustomerID == "" {
				return 0, false, nil
			}

			customer, err := gw.GetCustomer(ctx, inv.CustomerID)
			switch {
			case errors.Is(err, gatewaydomain.ErrNotFound):
			case err != nil:
				return 0, false, err
			default:
				if userID, ok, _ := parseID(customer.Metadata[subscriptiondomain.MetadataUserID]); ok {
					if id, found, err := latestOpenSubscription(ctx, db, subRepo, userID); err != nil || found {
						return id, found, err
					}
				}
			}

			user, err := memberRepo.FindByGatewayCustomerID(ctx, db, inv.CustomerID)
			if err != nil || user == nil {
				return 0, false, err
			}
			return latestOpenSubscription(ctx, db, subRepo, user.ID)
		},
	}
}

func latestOpenSubscription(ctx context.Context, db *gorm.DB, subRepo subscriptiondomain.Repository, userID snowflake.ID) (snowflake.ID, bool, error) {
	sub, err := subRepo.FindLatestByUser(ctx, db, userID, []subscriptiondomain.SubscriptionStatus{
		subscriptiondomain.SubscriptionStatusCancelled,
	})
	if err != nil || sub == nil {
		return 0, false, err
	}
	return sub.ID, true, nil
}

func parseID(value string) (snowflake.ID, bool, error) {
	if value == "" {
		return 0, false, nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}
