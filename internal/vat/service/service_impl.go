package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	"github.com/smallbiznis/gymledger/internal/vat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	RoutingCfg  *config.RoutingConfigHolder
	EntityRepo  entitydomain.Repository
	PaymentRepo paymentdomain.Repository
	SettingSvc  settingdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	routingCfg  *config.RoutingConfigHolder
	entityRepo  entitydomain.Repository
	paymentRepo paymentdomain.Repository
	settingSvc  settingdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("vat.service"),
		clock:       p.Clock,
		routingCfg:  p.RoutingCfg,
		entityRepo:  p.EntityRepo,
		paymentRepo: p.PaymentRepo,
		settingSvc:  p.SettingSvc,
	}
}

func (s *Service) CurrentYear() domain.Year {
	return domain.YearFor(s.clock.Now())
}

func (s *Service) Positions(ctx context.Context) ([]domain.Position, error) {
	now := s.clock.Now().UTC()
	year := domain.YearFor(now)
	cfg := s.routingCfg.Get()

	entities, err := s.entityRepo.List(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	totals, err := s.paymentRepo.SumConfirmedByEntity(ctx, s.db, year.Start, year.End)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(entities))
	for _, entity := range entities {
		revenue := totals[entity.ID]
		positions = append(positions, domain.BuildPosition(entity.ID, entity.Name, entity.VatThreshold, revenue, year, now, cfg.Risk))

		if err := s.entityRepo.UpdateRevenueCache(ctx, s.db, entity.ID, revenue, now); err != nil {
			s.log.Warn("failed to refresh revenue cache",
				zap.String("entity_id", entity.ID.String()),
				zap.Error(err),
			)
		}
	}

	snapshot := domain.Snapshot{Year: year, Positions: positions, ComputedAt: now}
	if err := s.settingSvc.SaveRevenueSnapshot(ctx, snapshot, cfg.SnapshotTTL); err != nil {
		s.log.Warn("failed to store revenue snapshot", zap.Error(err))
	}

	return positions, nil
}

func (s *Service) Position(ctx context.Context, entityID snowflake.ID) (*domain.Position, error) {
	entity, err := s.entityRepo.FindByID(ctx, s.db, entityID)
	if err != nil || entity == nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	year := domain.YearFor(now)
	totals, err := s.paymentRepo.SumConfirmedByEntity(ctx, s.db, year.Start, year.End)
	if err != nil {
		return nil, err
	}
	position := domain.BuildPosition(entity.ID, entity.Name, entity.VatThreshold, totals[entity.ID], year, now, s.routingCfg.Get().Risk)
	return &position, nil
}
