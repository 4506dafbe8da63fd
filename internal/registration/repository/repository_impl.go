package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/gymledger/internal/registration/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindPlanByKey(ctx context.Context, db *gorm.DB, planKey string) (*domain.MembershipPlan, error) {
	var plan domain.MembershipPlan
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_key, name, membership_type, monthly_price, is_active, created_at
		 FROM membership_plans WHERE plan_key = ? LIMIT 1`,
		strings.TrimSpace(planKey),
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.MembershipPlan) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "plan_key"}}, DoNothing: true}).
		Select("*").
		Create(plan)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.MembershipPlan, error) {
	var plans []domain.MembershipPlan
	stmt := db.WithContext(ctx).Model(&domain.MembershipPlan{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("monthly_price asc, plan_key asc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
