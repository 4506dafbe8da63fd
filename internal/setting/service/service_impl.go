package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/setting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("setting.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) SetDunningSuspended(ctx context.Context, flag domain.DunningFlag) error {
	id, err := snowflake.ParseString(flag.SubscriptionID)
	if err != nil || id == 0 {
		return domain.ErrInvalidKey
	}
	if flag.SuspendedAt.IsZero() {
		flag.SuspendedAt = s.clock.Now().UTC()
	}
	return s.put(ctx, domain.DunningSuspendedKey(id), flag, nil)
}

func (s *Service) IsDunningSuspended(ctx context.Context, subscriptionID snowflake.ID) (bool, error) {
	row, err := s.repo.Get(ctx, s.db, domain.DunningSuspendedKey(subscriptionID), s.clock.Now().UTC())
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (s *Service) ClearDunningSuspended(ctx context.Context, subscriptionID snowflake.ID) (bool, error) {
	return s.repo.Delete(ctx, s.db, domain.DunningSuspendedKey(subscriptionID))
}

func (s *Service) SaveRevenueSnapshot(ctx context.Context, snapshot any, ttl time.Duration) error {
	var expires *time.Time
	if ttl > 0 {
		at := s.clock.Now().UTC().Add(ttl)
		expires = &at
	}
	return s.put(ctx, domain.RevenueSnapshotKey, snapshot, expires)
}

func (s *Service) LoadRevenueSnapshot(ctx context.Context, into any) (bool, error) {
	row, err := s.repo.Get(ctx, s.db, domain.RevenueSnapshotKey, s.clock.Now().UTC())
	if err != nil || row == nil {
		return false, err
	}
	if err := json.Unmarshal(row.Value, into); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.PurgeExpired(ctx, s.db, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("purged expired settings", zap.Int64("removed", removed))
	}
	return removed, nil
}

func (s *Service) put(ctx context.Context, key string, value any, expires *time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.repo.Upsert(ctx, s.db, &domain.SystemSetting{
		Key:       key,
		Value:     datatypes.JSON(raw),
		ExpiresAt: expires,
		UpdatedAt: s.clock.Now().UTC(),
	})
}
