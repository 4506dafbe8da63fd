package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SystemSetting is a generic key/value row. Rows are either TTL'd through
// ExpiresAt or deleted explicitly.
type SystemSetting struct {
	Key       string         `gorm:"column:setting_key;primaryKey;type:text" json:"key"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	ExpiresAt *time.Time     `gorm:"index" json:"expires_at,omitempty"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }

const (
	RevenueSnapshotKey   = "revenue_ledger:snapshot"
	dunningSuspendPrefix = "dunning:suspended:"
)

func DunningSuspendedKey(subscriptionID snowflake.ID) string {
	return dunningSuspendPrefix + subscriptionID.String()
}

// DunningFlag marks a past-due subscription whose access was revoked.
type DunningFlag struct {
	SubscriptionID   string    `json:"subscription_id"`
	GatewayInvoiceID string    `json:"gateway_invoice_id,omitempty"`
	AttemptCount     int64     `json:"attempt_count"`
	SuspendedAt      time.Time `json:"suspended_at"`
}
