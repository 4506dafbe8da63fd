package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/entity/domain"
	"github.com/smallbiznis/gymledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("entity.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateEntityRequest) (domain.BusinessEntity, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.BusinessEntity{}, domain.ErrInvalidName
	}
	if req.VatThreshold <= 0 {
		return domain.BusinessEntity{}, domain.ErrInvalidVatThreshold
	}

	now := s.clock.Now()
	entity := domain.BusinessEntity{
		ID:           s.genID.Generate(),
		Code:         slug.Make(name),
		Name:         name,
		VatThreshold: req.VatThreshold,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.BusinessEntity{}, domain.ErrEntityExists
		}
		return domain.BusinessEntity{}, err
	}

	s.log.Info("business entity created",
		zap.String("entity_id", entity.ID.String()),
		zap.String("code", entity.Code),
	)
	return entity, nil
}

func (s *Service) List(ctx context.Context) ([]domain.BusinessEntity, error) {
	return s.repo.List(ctx, s.db, false)
}

func (s *Service) AddCatalogEntry(ctx context.Context, req domain.CreateCatalogRequest) (domain.ServiceCatalog, error) {
	serviceType := strings.ToUpper(strings.TrimSpace(req.ServiceType))
	if serviceType == "" {
		return domain.ServiceCatalog{}, domain.ErrInvalidServiceType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ServiceCatalog{}, domain.ErrInvalidName
	}
	if req.PreferredEntityID == 0 {
		return domain.ServiceCatalog{}, domain.ErrInvalidEntity
	}
	entity, err := s.repo.FindByID(ctx, s.db, req.PreferredEntityID)
	if err != nil {
		return domain.ServiceCatalog{}, err
	}
	if entity == nil {
		return domain.ServiceCatalog{}, domain.ErrInvalidEntity
	}

	types := make(pq.StringArray, 0, len(req.MembershipTypes))
	for _, t := range req.MembershipTypes {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}

	entityID := entity.ID
	item := domain.ServiceCatalog{
		ID:                s.genID.Generate(),
		ServiceType:       serviceType,
		Name:              name,
		PreferredEntityID: &entityID,
		MembershipTypes:   types,
		IsActive:          true,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.InsertCatalog(ctx, s.db, &item); err != nil {
		return domain.ServiceCatalog{}, err
	}
	return item, nil
}
