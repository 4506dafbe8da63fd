package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// BusinessEntity is a legal entity that can receive member payments.
// CurrentRevenue is a cache of confirmed revenue in the running VAT year.
type BusinessEntity struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Code            string       `gorm:"not null;uniqueIndex" json:"code"`
	Name            string       `gorm:"not null" json:"name"`
	VatThreshold    float64      `gorm:"type:numeric(12,2);not null" json:"vat_threshold"`
	CurrentRevenue  float64      `gorm:"type:numeric(12,2);not null;default:0" json:"current_revenue"`
	IsActive        bool         `gorm:"not null;default:true" json:"is_active"`
	RevenueCachedAt *time.Time   `json:"revenue_cached_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (BusinessEntity) TableName() string { return "business_entities" }

// ServiceCatalog confirms which entity a service line is contracted to.
type ServiceCatalog struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	ServiceType       string         `gorm:"not null" json:"service_type"`
	Name              string         `gorm:"not null" json:"name"`
	PreferredEntityID *snowflake.ID  `gorm:"index" json:"preferred_entity_id,omitempty"`
	MembershipTypes   pq.StringArray `gorm:"type:text[]" json:"membership_types"`
	IsActive          bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
}

func (ServiceCatalog) TableName() string { return "service_catalog" }

// Covers reports whether the catalog row applies to the membership type.
// A row without membership types applies to every type.
func (c ServiceCatalog) Covers(membershipType string) bool {
	if len(c.MembershipTypes) == 0 {
		return true
	}
	for _, t := range c.MembershipTypes {
		if t == membershipType {
			return true
		}
	}
	return false
}
