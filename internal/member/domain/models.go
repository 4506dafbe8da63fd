package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a gym member. ParentUserID links a sub-account to the payer.
type User struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email             string        `gorm:"not null;uniqueIndex" json:"email"`
	FirstName         string        `gorm:"not null" json:"first_name"`
	LastName          string        `gorm:"not null" json:"last_name"`
	Phone             string        `json:"phone,omitempty"`
	GatewayCustomerID *string       `gorm:"index" json:"gateway_customer_id,omitempty"`
	ParentUserID      *snowflake.ID `gorm:"index" json:"parent_user_id,omitempty"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
