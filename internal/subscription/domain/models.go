// Package domain contains persistence models and the lifecycle rules for
// member subscriptions and the memberships projected from them.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingPayment    SubscriptionStatus = "PENDING_PAYMENT"
	SubscriptionStatusActive            SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue           SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusPaused            SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled         SubscriptionStatus = "CANCELLED"
	SubscriptionStatusIncomplete        SubscriptionStatus = "INCOMPLETE"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "INCOMPLETE_EXPIRED"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusPendingPayment,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusPaused,
		SubscriptionStatusCancelled,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return true
	default:
		return false
	}
}

func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusIncompleteExpired
}

// MembershipStatus is the access-control state derived from a subscription.
type MembershipStatus string

const (
	MembershipStatusPendingPayment MembershipStatus = "PENDING_PAYMENT"
	MembershipStatusActive         MembershipStatus = "ACTIVE"
	MembershipStatusSuspended      MembershipStatus = "SUSPENDED"
	MembershipStatusCancelled      MembershipStatus = "CANCELLED"
)

func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipStatusPendingPayment,
		MembershipStatusActive,
		MembershipStatusSuspended,
		MembershipStatusCancelled:
		return true
	default:
		return false
	}
}

const placeholderPrefix = "pending_"

// PlaceholderGatewayID is stored until the real gateway subscription exists.
func PlaceholderGatewayID(id snowflake.ID) string {
	return placeholderPrefix + id.String()
}

func IsPlaceholderGatewayID(value string) bool {
	return value == "" || strings.HasPrefix(value, placeholderPrefix)
}

// Subscription is one member's recurring billing arrangement. RoutedEntityID
// is fixed by the router at creation and never reassigned.
type Subscription struct {
	ID                    snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID                snowflake.ID       `gorm:"not null;index" json:"user_id"`
	GatewaySubscriptionID string             `gorm:"not null;uniqueIndex" json:"gateway_subscription_id"`
	GatewayCustomerID     *string            `gorm:"index" json:"gateway_customer_id,omitempty"`
	MembershipType        string             `gorm:"not null" json:"membership_type"`
	MonthlyPrice          float64            `gorm:"type:numeric(12,2);not null" json:"monthly_price"`
	RoutedEntityID        snowflake.ID       `gorm:"not null;index" json:"routed_entity_id"`
	Status                SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	Provisional           bool               `gorm:"not null;default:false" json:"provisional"`
	CurrentPeriodStart    *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time         `json:"current_period_end,omitempty"`
	NextBillingDate       *time.Time         `json:"next_billing_date,omitempty"`
	CancelAtPeriodEnd     bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	Metadata              datatypes.JSONMap  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt             time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s Subscription) HasGatewaySubscription() bool {
	return !IsPlaceholderGatewayID(s.GatewaySubscriptionID)
}

// Membership is the access-control projection of a subscription.
type Membership struct {
	ID              snowflake.ID     `gorm:"primaryKey" json:"id"`
	UserID          snowflake.ID     `gorm:"not null;index" json:"user_id"`
	SubscriptionID  *snowflake.ID    `gorm:"index" json:"subscription_id,omitempty"`
	MembershipType  string           `gorm:"not null" json:"membership_type"`
	Status          MembershipStatus `gorm:"type:text;not null" json:"status"`
	MonthlyPrice    float64          `gorm:"type:numeric(12,2);not null" json:"monthly_price"`
	BillingDay      int              `gorm:"not null;default:1" json:"billing_day"`
	NextBillingDate *time.Time       `json:"next_billing_date,omitempty"`
	CreatedAt       time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"not null" json:"updated_at"`
}

func (Membership) TableName() string { return "memberships" }

// Metadata keys written onto the gateway subscription.
const (
	MetadataInternalSubscriptionID = "internal_subscription_id"
	MetadataUserID                 = "user_id"
	MetadataMemberUserID           = "member_user_id"
	MetadataChildUserID            = "child_user_id"
	MetadataRoutedEntityID         = "routed_entity_id"
	MetadataMembershipType         = "membership_type"
	MetadataPendingPlanChange      = "pending_plan_change"
	MetadataPendingPlanChangeAt    = "pending_plan_change_at"
	MetadataPendingPlanPrice       = "pending_plan_price"
)
