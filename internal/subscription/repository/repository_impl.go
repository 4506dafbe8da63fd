package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, user_id, gateway_subscription_id, gateway_customer_id, membership_type,
	monthly_price, routed_entity_id, status, provisional, current_period_start, current_period_end,
	next_billing_date, cancel_at_period_end, metadata, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.GatewaySubscriptionID,
		sub.GatewayCustomerID,
		sub.MembershipType,
		sub.MonthlyPrice,
		sub.RoutedEntityID,
		sub.Status,
		sub.Provisional,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextBillingDate,
		sub.CancelAtPeriodEnd,
		sub.Metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByGatewayID(ctx context.Context, db *gorm.DB, gatewaySubscriptionID string) (*domain.Subscription, error) {
	if domain.IsPlaceholderGatewayID(gatewaySubscriptionID) {
		return nil, nil
	}
	return r.findOne(ctx, db, "gateway_subscription_id = ?", gatewaySubscriptionID)
}

func (r *repo) FindLatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, exclude []domain.SubscriptionStatus) (*domain.Subscription, error) {
	if len(exclude) == 0 {
		return r.findOne(ctx, db, "user_id = ? ORDER BY created_at DESC, id DESC", userID)
	}
	statuses := make([]string, 0, len(exclude))
	for _, s := range exclude {
		statuses = append(statuses, string(s))
	}
	return r.findOne(ctx, db, "user_id = ? AND status NOT IN ? ORDER BY created_at DESC, id DESC", userID, statuses)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET gateway_subscription_id = ?, gateway_customer_id = ?, membership_type = ?, monthly_price = ?,
		     status = ?, provisional = ?, current_period_start = ?, current_period_end = ?,
		     next_billing_date = ?, cancel_at_period_end = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		sub.GatewaySubscriptionID,
		sub.GatewayCustomerID,
		sub.MembershipType,
		sub.MonthlyPrice,
		sub.Status,
		sub.Provisional,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextBillingDate,
		sub.CancelAtPeriodEnd,
		sub.Metadata,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.SubscriptionStatus]int64, error) {
	var rows []struct {
		Status domain.SubscriptionStatus
		Total  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total FROM subscriptions GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.SubscriptionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *repo) InsertMembership(ctx context.Context, db *gorm.DB, m *domain.Membership) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO memberships (id, user_id, subscription_id, membership_type, status, monthly_price,
		 billing_day, next_billing_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.UserID,
		m.SubscriptionID,
		m.MembershipType,
		m.Status,
		m.MonthlyPrice,
		m.BillingDay,
		m.NextBillingDate,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) ListMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Membership, error) {
	var items []domain.Membership
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, status domain.MembershipStatus, nextBilling *time.Time, at time.Time) error {
	if nextBilling == nil {
		return db.WithContext(ctx).Exec(
			`UPDATE memberships SET status = ?, updated_at = ? WHERE user_id = ?`,
			status, at, userID,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE memberships SET status = ?, next_billing_date = ?, updated_at = ? WHERE user_id = ?`,
		status, nextBilling, at, userID,
	).Error
}

func (r *repo) UpdateMembershipPlan(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, membershipType string, monthlyPrice float64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE memberships SET membership_type = ?, monthly_price = ?, updated_at = ? WHERE subscription_id = ?`,
		membershipType, monthlyPrice, at, subscriptionID,
	).Error
}
