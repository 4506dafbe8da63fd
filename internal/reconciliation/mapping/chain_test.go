package mapping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	"github.com/smallbiznis/gymledger/internal/gateway/gatewaytest"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	memberrepository "github.com/smallbiznis/gymledger/internal/member/repository"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/gymledger/internal/subscription/repository"
	"github.com/smallbiznis/gymledger/internal/testing/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seededAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, db *gorm.DB, id int64, customerID string) {
	t.Helper()
	user := memberdomain.User{
		ID:        snowflake.ID(id),
		Email:     snowflake.ID(id).String() + "@example.com",
		FirstName: "Member",
		CreatedAt: seededAt,
		UpdatedAt: seededAt,
	}
	if customerID != "" {
		user.GatewayCustomerID = &customerID
	}
	require.NoError(t, memberrepository.Provide().Insert(context.Background(), db, &user))
}

func seedSubscription(t *testing.T, db *gorm.DB, id, userID int64, gatewayID string, status subscriptiondomain.SubscriptionStatus, age time.Duration) {
	t.Helper()
	if gatewayID == "" {
		gatewayID = subscriptiondomain.PlaceholderGatewayID(snowflake.ID(id))
	}
	created := seededAt.Add(-age)
	sub := subscriptiondomain.Subscription{
		ID:                    snowflake.ID(id),
		UserID:                snowflake.ID(userID),
		GatewaySubscriptionID: gatewayID,
		MembershipType:        "FULL_ADULT",
		MonthlyPrice:          75,
		RoutedEntityID:        1,
		Status:                status,
		CreatedAt:             created,
		UpdatedAt:             created,
	}
	require.NoError(t, subscriptionrepository.Provide().Insert(context.Background(), db, &sub))
}

func newTestChain(db *gorm.DB, gw gatewaydomain.Gateway) *Chain {
	return New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Gateway:    gw,
		SubRepo:    subscriptionrepository.Provide(),
		MemberRepo: memberrepository.Provide(),
	})
}

func TestChainOrder(t *testing.T) {
	chain := newTestChain(sqlitetest.Open(t), &gatewaytest.Fake{})
	assert.Equal(t, []string{
		StrategyInternalSubscriptionID,
		StrategyGatewaySubscriptionID,
		StrategyMemberUserID,
		StrategyCustomerMetadata,
	}, chain.Strategies())
}

func TestInternalSubscriptionIDTakesPrecedence(t *testing.T) {
	db := sqlitetest.Open(t)
	seedUser(t, db, 1, "")
	seedUser(t, db, 2, "cus_b")
	seedSubscription(t, db, 10, 1, "sub_a", subscriptiondomain.SubscriptionStatusActive, 0)
	seedSubscription(t, db, 20, 2, "sub_b", subscriptiondomain.SubscriptionStatusActive, 0)

	gw := &gatewaytest.Fake{Customers: map[string]*gatewaydomain.Customer{
		"cus_b": {ID: "cus_b", Metadata: map[string]string{subscriptiondomain.MetadataUserID: "2"}},
	}}
	chain := newTestChain(db, gw)

	match, err := chain.Resolve(context.Background(), &gatewaydomain.Invoice{
		ID:             "in_1",
		CustomerID:     "cus_b",
		SubscriptionID: "sub_b",
		Metadata: map[string]string{
			subscriptiondomain.MetadataInternalSubscriptionID: "10",
			subscriptiondomain.MetadataMemberUserID:           "2",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), match.Subscription.ID)
	assert.Equal(t, StrategyInternalSubscriptionID, match.Strategy)
}

func TestChainFallsThrough(t *testing.T) {
	db := sqlitetest.Open(t)
	seedUser(t, db, 1, "")
	seedUser(t, db, 2, "cus_local")
	seedUser(t, db, 3, "")
	seedSubscription(t, db, 10, 1, "sub_a", subscriptiondomain.SubscriptionStatusActive, 0)
	seedSubscription(t, db, 20, 2, "", subscriptiondomain.SubscriptionStatusPendingPayment, 0)
	// User 3 has an older live subscription and a newer cancelled one.
	seedSubscription(t, db, 30, 3, "sub_c_old", subscriptiondomain.SubscriptionStatusActive, 48*time.Hour)
	seedSubscription(t, db, 31, 3, "sub_c_new", subscriptiondomain.SubscriptionStatusCancelled, 0)

	gw := &gatewaytest.Fake{Customers: map[string]*gatewaydomain.Customer{
		"cus_meta": {ID: "cus_meta", Metadata: map[string]string{subscriptiondomain.MetadataUserID: "1"}},
	}}
	chain := newTestChain(db, gw)

	cases := []struct {
		name     string
		inv      gatewaydomain.Invoice
		wantID   snowflake.ID
		strategy string
	}{
		{
			name:     "gateway subscription id",
			inv:      gatewaydomain.Invoice{ID: "in_1", SubscriptionID: "sub_a"},
			wantID:   10,
			strategy: StrategyGatewaySubscriptionID,
		},
		{
			name:     "stale internal id falls through",
			inv:      gatewaydomain.Invoice{ID: "in_2", SubscriptionID: "sub_a", Metadata: map[string]string{subscriptiondomain.MetadataInternalSubscriptionID: "999"}},
			wantID:   10,
			strategy: StrategyGatewaySubscriptionID,
		},
		{
			name:     "child user skips cancelled subscriptions",
			inv:      gatewaydomain.Invoice{ID: "in_3", Metadata: map[string]string{subscriptiondomain.MetadataChildUserID: "3"}},
			wantID:   30,
			strategy: StrategyMemberUserID,
		},
		{
			name:     "customer metadata",
			inv:      gatewaydomain.Invoice{ID: "in_4", CustomerID: "cus_meta"},
			wantID:   10,
			strategy: StrategyCustomerMetadata,
		},
		{
			name:     "locally linked customer",
			inv:      gatewaydomain.Invoice{ID: "in_5", CustomerID: "cus_local"},
			wantID:   20,
			strategy: StrategyCustomerMetadata,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			match, err := chain.Resolve(context.Background(), &tc.inv)
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, match.Subscription.ID)
			assert.Equal(t, tc.strategy, match.Strategy)
		})
	}
}

func TestChainExcludesStatuses(t *testing.T) {
	db := sqlitetest.Open(t)
	seedUser(t, db, 1, "")
	seedSubscription(t, db, 10, 1, "sub_gone", subscriptiondomain.SubscriptionStatusCancelled, 0)
	chain := newTestChain(db, &gatewaytest.Fake{})

	inv := &gatewaydomain.Invoice{ID: "in_1", SubscriptionID: "sub_gone"}

	match, err := chain.Resolve(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), match.Subscription.ID)

	_, err = chain.Resolve(context.Background(), inv, ExcludeStatuses(subscriptiondomain.SubscriptionStatusCancelled))
	require.ErrorIs(t, err, domain.ErrMappingFailed)
}

func TestChainPropagatesGatewayErrors(t *testing.T) {
	db := sqlitetest.Open(t)
	failing := errors.New("gateway unavailable")
	chain := NewChain(db, zap.NewNop(), subscriptionrepository.Provide(), Strategy{
		Name: "broken",
		Resolve: func(context.Context, *gatewaydomain.Invoice) (snowflake.ID, bool, error) {
			return 0, false, failing
		},
	})

	_, err := chain.Resolve(context.Background(), &gatewaydomain.Invoice{ID: "in_1"})
	require.ErrorIs(t, err, failing)
	assert.False(t, errors.Is(err, domain.ErrMappingFailed))
}
