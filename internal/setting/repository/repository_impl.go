package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/gymledger/internal/setting/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, setting *domain.SystemSetting) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(setting).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.SystemSetting, error) {
	var setting domain.SystemSetting
	err := db.WithContext(ctx).
		Where("setting_key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Limit(1).
		Find(&setting).Error
	if err != nil {
		return nil, err
	}
	if setting.Key == "" {
		return nil, nil
	}
	return &setting, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	res := db.WithContext(ctx).Where("setting_key = ?", key).Delete(&domain.SystemSetting{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&domain.SystemSetting{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
