// Package domain holds the webhook delivery log and the reconciliation
// engine's public surface.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	"gorm.io/datatypes"
)

const ProviderStripe = "stripe"

// WebhookEvent is one received gateway delivery. ProcessedAt is set only
// after every handler step succeeded.
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null;index"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// Outcome labels for webhook metrics and logs.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

type BackfillRequest struct {
	Since  time.Time
	Until  time.Time
	DryRun bool
}

type BackfillFailure struct {
	InvoiceID string `json:"invoice_id"`
	Error     string `json:"error"`
}

// BackfillReport summarises one repair run. In a dry run Created counts the
// payments that would have been written.
type BackfillReport struct {
	Since      time.Time         `json:"since"`
	Until      time.Time         `json:"until"`
	DryRun     bool              `json:"dry_run"`
	Scanned    int               `json:"scanned"`
	Skipped    int               `json:"skipped"`
	Created    int               `json:"created"`
	Failed     int               `json:"failed"`
	CreatedFor []string          `json:"created_for,omitempty"`
	Failures   []BackfillFailure `json:"failures,omitempty"`
}

type Service interface {
	// Ingest verifies a raw delivery, records it and runs its handler.
	Ingest(ctx context.Context, payload []byte, signatureHeader string) error
	HandleEvent(ctx context.Context, event *gatewaydomain.Event) error
	Backfill(ctx context.Context, req BackfillRequest) (*BackfillReport, error)
	ListRecentEvents(ctx context.Context, limit int) ([]WebhookEvent, error)
}
