package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByGatewayID(ctx context.Context, db *gorm.DB, gatewaySubscriptionID string) (*Subscription, error)
	// FindLatestByUser returns the user's most recent subscription whose status is not excluded.
	FindLatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, exclude []SubscriptionStatus) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	CountByStatus(ctx context.Context, db *gorm.DB) (map[SubscriptionStatus]int64, error)

	InsertMembership(ctx context.Context, db *gorm.DB, m *Membership) error
	ListMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Membership, error)
	UpdateMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, status MembershipStatus, nextBilling *time.Time, at time.Time) error
	UpdateMembershipPlan(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, membershipType string, monthlyPrice float64, at time.Time) error
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidStatus        = errors.New("invalid_status")
)
