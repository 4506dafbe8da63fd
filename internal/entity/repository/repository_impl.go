package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/entity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entity *domain.BusinessEntity) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO business_entities (id, code, name, vat_threshold, current_revenue, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entity.ID,
		entity.Code,
		entity.Name,
		entity.VatThreshold,
		entity.CurrentRevenue,
		entity.IsActive,
		entity.CreatedAt,
		entity.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BusinessEntity, error) {
	var entity domain.BusinessEntity
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, vat_threshold, current_revenue, is_active, revenue_cached_at, created_at, updated_at
		 FROM business_entities WHERE id = ?`,
		id,
	).Scan(&entity).Error
	if err != nil {
		return nil, err
	}
	if entity.ID == 0 {
		return nil, nil
	}
	return &entity, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.BusinessEntity, error) {
	var entities []domain.BusinessEntity
	stmt := db.WithContext(ctx).Model(&domain.BusinessEntity{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("name asc, id asc").Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *repo) UpdateRevenueCache(ctx context.Context, db *gorm.DB, id snowflake.ID, revenue float64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE business_entities
		 SET current_revenue = ?, revenue_cached_at = ?, updated_at = ?
		 WHERE id = ?`,
		revenue,
		at,
		at,
		id,
	).Error
}

func (r *repo) InsertCatalog(ctx context.Context, db *gorm.DB, item *domain.ServiceCatalog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO service_catalog (id, service_type, name, preferred_entity_id, membership_types, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.ServiceType,
		item.Name,
		item.PreferredEntityID,
		item.MembershipTypes,
		item.IsActive,
		item.CreatedAt,
	).Error
}

func (r *repo) ListActiveCatalog(ctx context.Context, db *gorm.DB) ([]domain.ServiceCatalog, error) {
	var items []domain.ServiceCatalog
	err := db.WithContext(ctx).
		Model(&domain.ServiceCatalog{}).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
