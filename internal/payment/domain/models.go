package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusVoided    PaymentStatus = "VOIDED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending,
		PaymentStatusConfirmed,
		PaymentStatusFailed,
		PaymentStatusVoided,
		PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// Settled reports whether a late failure must leave the row untouched.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusVoided
}

// CanTransitionTo enforces forward-only movement: pending resolves once,
// failed may be retried into confirmed, confirmed only moves to refunded.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusConfirmed || next == PaymentStatusFailed || next == PaymentStatusVoided
	case PaymentStatusFailed:
		return next == PaymentStatusConfirmed || next == PaymentStatusFailed
	case PaymentStatusConfirmed:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "OPEN"
	InvoiceStatusPaid InvoiceStatus = "PAID"
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

// Invoice mirrors a gateway invoice the engine has seen paid.
type Invoice struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID  `gorm:"not null;index" json:"user_id"`
	SubscriptionID   *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	GatewayInvoiceID string        `gorm:"not null;uniqueIndex" json:"gateway_invoice_id"`
	Amount           float64       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string        `gorm:"not null" json:"currency"`
	Status           InvoiceStatus `gorm:"type:text;not null" json:"status"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
}

func (Invoice) TableName() string { return "invoices" }

// Payment records one attempted or completed charge. GatewayInvoiceID is the
// idempotency key: at most one row per gateway invoice.
type Payment struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID                 snowflake.ID  `gorm:"not null;index" json:"user_id"`
	SubscriptionID         *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	Amount                 float64       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency               string        `gorm:"not null" json:"currency"`
	Status                 PaymentStatus `gorm:"type:text;not null;index" json:"status"`
	Description            string        `gorm:"type:text" json:"description"`
	RoutedEntityID         snowflake.ID  `gorm:"not null;index" json:"routed_entity_id"`
	FailureReason          *string       `json:"failure_reason,omitempty"`
	RetryCount             int           `gorm:"not null;default:0" json:"retry_count"`
	GatewayInvoiceID       *string       `gorm:"uniqueIndex" json:"gateway_invoice_id,omitempty"`
	GatewayPaymentIntentID *string       `json:"gateway_payment_intent_id,omitempty"`
	ProcessedAt            *time.Time    `json:"processed_at,omitempty"`
	CreatedAt              time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

type ListFilter struct {
	Status         PaymentStatus
	UserID         *snowflake.ID
	RoutedEntityID *snowflake.ID
}
