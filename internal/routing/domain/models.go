package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	vatdomain "github.com/smallbiznis/gymledger/internal/vat/domain"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodManualOverride    Method = "MANUAL_OVERRIDE"
	MethodServicePreference Method = "SERVICE_PREFERENCE"
	MethodLoadBalancing     Method = "LOAD_BALANCING"
	MethodFallback          Method = "FALLBACK"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
	ConfidenceForced Confidence = "FORCED"
)

type Override struct {
	EntityID snowflake.ID `json:"entity_id"`
	Reason   string       `json:"reason"`
}

type RouteRequest struct {
	Amount         float64   `json:"amount"`
	MembershipType string    `json:"membership_type,omitempty"`
	Override       *Override `json:"override,omitempty"`
}

// Decision is the router's answer plus the snapshot it was made against.
type Decision struct {
	AuditID           *snowflake.ID        `json:"audit_id,omitempty"`
	Selected          vatdomain.Position   `json:"selected"`
	Method            Method               `json:"method"`
	Confidence        Confidence           `json:"confidence"`
	Reason            string               `json:"reason"`
	ThresholdDistance float64              `json:"threshold_distance"`
	Positions         []vatdomain.Position `json:"positions"`
	DecisionTime      time.Duration        `json:"decision_time_ns"`
}

// RoutingDecision is the insert-only audit row of one routing call.
type RoutingDecision struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	SelectedEntityID  snowflake.ID   `gorm:"not null;index" json:"selected_entity_id"`
	Amount            float64        `gorm:"type:numeric(12,2);not null" json:"amount"`
	MembershipType    string         `gorm:"type:text" json:"membership_type,omitempty"`
	Positions         datatypes.JSON `gorm:"type:jsonb;not null" json:"positions"`
	Reason            string         `gorm:"type:text;not null" json:"reason"`
	Method            Method         `gorm:"type:text;not null" json:"method"`
	Confidence        Confidence     `gorm:"type:text;not null" json:"confidence"`
	ThresholdDistance float64        `gorm:"type:numeric(12,2);not null" json:"threshold_distance"`
	DecisionTimeMs    int64          `gorm:"not null" json:"decision_time_ms"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
}

func (RoutingDecision) TableName() string { return "routing_decisions" }
