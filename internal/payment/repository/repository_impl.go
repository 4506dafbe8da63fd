package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_invoice_id"}}, DoNothing: true}).
		Create(invoice)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindInvoiceByGatewayID(ctx context.Context, db *gorm.DB, gatewayInvoiceID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, subscription_id, gateway_invoice_id, amount, currency, status, paid_at, created_at
		 FROM invoices WHERE gateway_invoice_id = ? LIMIT 1`,
		gatewayInvoiceID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_invoice_id"}}, DoNothing: true}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) FindByGatewayInvoiceID(ctx context.Context, db *gorm.DB, gatewayInvoiceID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).
		Where("gateway_invoice_id = ?", gatewayInvoiceID).
		Limit(1).
		Find(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET user_id = ?, subscription_id = ?, amount = ?, currency = ?, status = ?, description = ?,
		     failure_reason = ?, retry_count = ?, gateway_payment_intent_id = ?, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		payment.UserID,
		payment.SubscriptionID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.Description,
		payment.FailureReason,
		payment.RetryCount,
		payment.GatewayPaymentIntentID,
		payment.ProcessedAt,
		payment.UpdatedAt,
		payment.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.Payment, pagination.PageInfo, error) {
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	stmt := db.WithContext(ctx).Model(&domain.Payment{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if filter.RoutedEntityID != nil {
		stmt = stmt.Where("routed_entity_id = ?", *filter.RoutedEntityID)
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	limit := page.Limit()
	var items []domain.Payment
	if err := stmt.Order("created_at desc, id desc").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Page(items, limit, func(p domain.Payment) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String(), CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
}

func (r *repo) SumConfirmedByEntity(ctx context.Context, db *gorm.DB, from, to time.Time) (map[snowflake.ID]float64, error) {
	var rows []struct {
		RoutedEntityID snowflake.ID
		Total          float64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT routed_entity_id, COALESCE(SUM(amount), 0) AS total
		 FROM payments
		 WHERE status = ?
		   AND COALESCE(processed_at, created_at) >= ?
		   AND COALESCE(processed_at, created_at) < ?
		 GROUP BY routed_entity_id`,
		domain.PaymentStatusConfirmed,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[snowflake.ID]float64, len(rows))
	for _, row := range rows {
		totals[row.RoutedEntityID] = row.Total
	}
	return totals, nil
}
