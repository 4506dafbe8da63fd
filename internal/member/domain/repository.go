package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindByGatewayCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*User, error)
	SetGatewayCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) error
}

var ErrEmailTaken = errors.New("email_taken")
