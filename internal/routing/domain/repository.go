package domain

import (
	"context"

	"github.com/smallbiznis/gymledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, decision *RoutingDecision) error
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]RoutingDecision, pagination.PageInfo, error)
}
