package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertInvoice reports false when the gateway invoice id is already recorded.
	InsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	FindInvoiceByGatewayID(ctx context.Context, db *gorm.DB, gatewayInvoiceID string) (*Invoice, error)

	// Insert reports false when a payment for the same gateway invoice exists.
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByGatewayInvoiceID(ctx context.Context, db *gorm.DB, gatewayInvoiceID string) (*Payment, error)
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Payment, pagination.PageInfo, error)
	// SumConfirmedByEntity totals confirmed payments by routed entity for
	// processed_at (falling back to created_at) in [from, to).
	SumConfirmedByEntity(ctx context.Context, db *gorm.DB, from, to time.Time) (map[snowflake.ID]float64, error)
}

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrInvalidStatus   = errors.New("invalid_status")
)
