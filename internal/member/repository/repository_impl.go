package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/member/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, email, first_name, last_name, phone, gateway_customer_id, parent_user_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.FirstName,
		user.LastName,
		user.Phone,
		user.GatewayCustomerID,
		user.ParentUserID,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *repo) FindByGatewayCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.User, error) {
	return r.findOne(ctx, db, `gateway_customer_id = ?`, customerID)
}

func (r *repo) SetGatewayCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET gateway_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID,
		at,
		id,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}
