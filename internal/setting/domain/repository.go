package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, setting *SystemSetting) error
	// Get ignores rows whose expiry is at or before now.
	Get(ctx context.Context, db *gorm.DB, key string, now time.Time) (*SystemSetting, error)
	Delete(ctx context.Context, db *gorm.DB, key string) (bool, error)
	PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
