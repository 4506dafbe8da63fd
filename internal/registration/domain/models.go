package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	routingdomain "github.com/smallbiznis/gymledger/internal/routing/domain"
)

// MembershipPlan is a purchasable plan. Plans are seeded, not edited here.
type MembershipPlan struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	PlanKey        string       `gorm:"not null;uniqueIndex" json:"plan_key"`
	Name           string       `gorm:"not null" json:"name"`
	MembershipType string       `gorm:"not null" json:"membership_type"`
	MonthlyPrice   float64      `gorm:"type:numeric(12,2);not null" json:"monthly_price"`
	IsActive       bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (MembershipPlan) TableName() string { return "membership_plans" }

type RegisterRequest struct {
	Email        string        `json:"email"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Phone        string        `json:"phone,omitempty"`
	PlanKey      string        `json:"plan_key"`
	ParentUserID *snowflake.ID `json:"parent_user_id,omitempty"`
}

// RegisterResult carries the local rows and, when the gateway calls
// succeeded, the setup intent the client completes card entry against.
// PartialSuccess means the rows exist but the gateway setup did not finish.
type RegisterResult struct {
	UserID         snowflake.ID            `json:"user_id"`
	SubscriptionID snowflake.ID            `json:"subscription_id"`
	MembershipID   snowflake.ID            `json:"membership_id"`
	Routing        *routingdomain.Decision `json:"routing"`
	CustomerID     string                  `json:"customer_id,omitempty"`
	SetupIntentID  string                  `json:"setup_intent_id,omitempty"`
	ClientSecret   string                  `json:"client_secret,omitempty"`
	PartialSuccess bool                    `json:"partial_success"`
	SetupError     string                  `json:"setup_error,omitempty"`
}

type ConfirmRequest struct {
	SetupIntentID string `json:"setup_intent_id"`
}

type ConfirmResult struct {
	SubscriptionID        snowflake.ID `json:"subscription_id"`
	GatewaySubscriptionID string       `json:"gateway_subscription_id"`
	Status                string       `json:"status"`
	Provisional           bool         `json:"provisional"`
	ProratedAmount        float64      `json:"prorated_amount"`
	ProrationInvoiceID    string       `json:"proration_invoice_id,omitempty"`
	TrialEnd              time.Time    `json:"trial_end"`
}
