package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/smallbiznis/gymledger/internal/gateway/gatewaytest"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	memberrepository "github.com/smallbiznis/gymledger/internal/member/repository"
	"github.com/smallbiznis/gymledger/internal/notification/notificationtest"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/gymledger/internal/payment/repository"
	"github.com/smallbiznis/gymledger/internal/reconciliation/mapping"
	reconciliationrepository "github.com/smallbiznis/gymledger/internal/reconciliation/repository"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	settingrepository "github.com/smallbiznis/gymledger/internal/setting/repository"
	settingservice "github.com/smallbiznis/gymledger/internal/setting/service"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/gymledger/internal/subscription/repository"
	"github.com/smallbiznis/gymledger/internal/testing/sqlitetest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	clk      *clock.FakeClock
	gw       *gatewaytest.Fake
	notices  *notificationtest.Recorder
	subRepo  subscriptiondomain.Repository
	payRepo  paymentdomain.Repository
	settings settingdomain.Service
	svc      *Service
}

func newHarness(t *testing.T, tweak ...func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Config{
		BaseURL: "https://gym.example",
		Stripe:  config.StripeConfig{Currency: "gbp"},
		Dunning: config.DunningConfig{
			MaxAttempts:       3,
			AutoSuspend:       true,
			UpdatePaymentPath: "/account/payment-method",
		},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}

	db := sqlitetest.Open(t)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	gw := &gatewaytest.Fake{}
	subRepo := subscriptionrepository.Provide()
	payRepo := paymentrepository.Provide()
	memberRepo := memberrepository.Provide()
	settings := settingservice.New(settingservice.Params{
		DB:    db,
		Log:   log,
		Clock: clk,
		Repo:  settingrepository.Provide(),
	})
	notices := &notificationtest.Recorder{}

	chain := mapping.New(mapping.Params{
		DB:         db,
		Log:        log,
		Gateway:    gw,
		SubRepo:    subRepo,
		MemberRepo: memberRepo,
	})

	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Cfg:         cfg,
		Gateway:     gw,
		Chain:       chain,
		Repo:        reconciliationrepository.Provide(),
		SubRepo:     subRepo,
		PaymentRepo: payRepo,
		MemberRepo:  memberRepo,
		SettingSvc:  settings,
		Notifier:    notices,
	})

	return &harness{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		clk:      clk,
		gw:       gw,
		notices:  notices,
		subRepo:  subRepo,
		payRepo:  payRepo,
		settings: settings,
		svc:      svc,
	}
}

type seedOpts struct {
	status        subscriptiondomain.SubscriptionStatus
	gatewayID     string
	customerID    string
	provisional   bool
	createdOffset time.Duration
}

// seedMember creates a user with one subscription and one membership.
func (h *harness) seedMember(userID, subID int64, opts seedOpts) *subscriptiondomain.Subscription {
	h.t.Helper()
	if opts.status == "" {
		opts.status = subscriptiondomain.SubscriptionStatusActive
	}
	if opts.gatewayID == "" {
		opts.gatewayID = subscriptiondomain.PlaceholderGatewayID(snowflake.ID(subID))
	}
	created := testNow.Add(-30 * 24 * time.Hour).Add(opts.createdOffset)

	uid := snowflake.ID(userID)
	if existing, err := memberrepository.Provide().FindByID(h.ctx, h.db, uid); err == nil && existing == nil {
		user := memberdomain.User{
			ID:        uid,
			Email:     fmt.Sprintf("member%d@example.com", userID),
			FirstName: "Member",
			LastName:  fmt.Sprint(userID),
			CreatedAt: created,
			UpdatedAt: created,
		}
		if opts.customerID != "" {
			user.GatewayCustomerID = &opts.customerID
		}
		require.NoError(h.t, memberrepository.Provide().Insert(h.ctx, h.db, &user))
	}

	sub := subscriptiondomain.Subscription{
		ID:                    snowflake.ID(subID),
		UserID:                uid,
		GatewaySubscriptionID: opts.gatewayID,
		MembershipType:        "FULL_ADULT",
		MonthlyPrice:          75,
		RoutedEntityID:        1,
		Status:                opts.status,
		Provisional:           opts.provisional,
		CreatedAt:             created,
		UpdatedAt:             created,
	}
	if opts.customerID != "" {
		sub.GatewayCustomerID = &opts.customerID
	}
	require.NoError(h.t, h.subRepo.Insert(h.ctx, h.db, &sub))

	subRef := sub.ID
	membership := subscriptiondomain.Membership{
		ID:             snowflake.ID(subID + 1000),
		UserID:         uid,
		SubscriptionID: &subRef,
		MembershipType: "FULL_ADULT",
		Status:         subscriptiondomain.DeriveMembershipStatus(opts.status, false),
		MonthlyPrice:   75,
		BillingDay:     1,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(h.t, h.subRepo.InsertMembership(h.ctx, h.db, &membership))
	return &sub
}

func (h *harness) subscription(id snowflake.ID) *subscriptiondomain.Subscription {
	h.t.Helper()
	sub, err := h.subRepo.FindByID(h.ctx, h.db, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, sub)
	return sub
}

func (h *harness) membershipStatuses(userID snowflake.ID) []subscriptiondomain.MembershipStatus {
	h.t.Helper()
	items, err := h.subRepo.ListMembershipsByUser(h.ctx, h.db, userID)
	require.NoError(h.t, err)
	out := make([]subscriptiondomain.MembershipStatus, 0, len(items))
	for _, m := range items {
		out = append(out, m.Status)
	}
	return out
}

func (h *harness) payment(invoiceID string) *paymentdomain.Payment {
	h.t.Helper()
	p, err := h.payRepo.FindByGatewayInvoiceID(h.ctx, h.db, invoiceID)
	require.NoError(h.t, err)
	return p
}

func (h *harness) count(model any, where string, args ...any) int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func (h *harness) dunningFlag(subID snowflake.ID) bool {
	h.t.Helper()
	ok, err := h.settings.IsDunningSuspended(h.ctx, subID)
	require.NoError(h.t, err)
	return ok
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
