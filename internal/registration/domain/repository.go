package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindPlanByKey(ctx context.Context, db *gorm.DB, planKey string) (*MembershipPlan, error)
	// InsertPlan reports false when the plan key already exists.
	InsertPlan(ctx context.Context, db *gorm.DB, plan *MembershipPlan) (bool, error)
	ListPlans(ctx context.Context, db *gorm.DB, activeOnly bool) ([]MembershipPlan, error)
}
