package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entity *BusinessEntity) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BusinessEntity, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]BusinessEntity, error)
	UpdateRevenueCache(ctx context.Context, db *gorm.DB, id snowflake.ID, revenue float64, at time.Time) error

	InsertCatalog(ctx context.Context, db *gorm.DB, item *ServiceCatalog) error
	ListActiveCatalog(ctx context.Context, db *gorm.DB) ([]ServiceCatalog, error)
}
