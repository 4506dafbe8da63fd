package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	obsmetrics "github.com/smallbiznis/gymledger/internal/observability/metrics"
	"github.com/smallbiznis/gymledger/internal/routing/domain"
	vatdomain "github.com/smallbiznis/gymledger/internal/vat/domain"
	"github.com/smallbiznis/gymledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	RoutingCfg *config.RoutingConfigHolder
	VatSvc     vatdomain.Service
	EntityRepo entitydomain.Repository
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	routingCfg *config.RoutingConfigHolder
	vatSvc     vatdomain.Service
	entityRepo entitydomain.Repository
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("routing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		routingCfg: p.RoutingCfg,
		vatSvc:     p.VatSvc,
		entityRepo: p.EntityRepo,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Route(ctx context.Context, req domain.RouteRequest) (*domain.Decision, error) {
	decision, err := s.decide(ctx, req)
	if err != nil {
		s.recordFailure(ctx, req, err)
		return nil, err
	}

	// The decision stands even when the audit write fails.
	if auditID, err := s.persist(ctx, req, decision); err != nil {
		s.log.Error("failed to persist routing decision",
			zap.String("entity_id", decision.Selected.EntityID.String()),
			zap.String("method", string(decision.Method)),
			zap.Error(err),
		)
	} else {
		decision.AuditID = &auditID
	}

	s.obsMetrics.RecordRoutingDecision(ctx, string(decision.Method), string(decision.Confidence))
	s.log.Info("payment routed",
		zap.String("entity_id", decision.Selected.EntityID.String()),
		zap.String("entity", decision.Selected.Name),
		zap.String("method", string(decision.Method)),
		zap.String("confidence", string(decision.Confidence)),
		zap.Float64("amount", req.Amount),
		zap.Float64("headroom", decision.Selected.Headroom),
	)
	return decision, nil
}

func (s *Service) Preview(ctx context.Context, req domain.RouteRequest) (*domain.Decision, error) {
	return s.decide(ctx, req)
}

func (s *Service) ListDecisions(ctx context.Context, page pagination.Pagination) ([]domain.RoutingDecision, pagination.PageInfo, error) {
	return s.repo.List(ctx, s.db, page)
}

func (s *Service) decide(ctx context.Context, req domain.RouteRequest) (*domain.Decision, error) {
	started := time.Now()

	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	positions, err := s.vatSvc.Positions(ctx)
	if err != nil {
		return nil, err
	}

	var catalog []entitydomain.ServiceCatalog
	if req.Override == nil && req.MembershipType != "" {
		catalog, err = s.entityRepo.ListActiveCatalog(ctx, s.db)
		if err != nil {
			return nil, err
		}
	}

	candidates := positions
	if req.Override != nil {
		candidates, err = s.withOverrideTarget(ctx, positions, req.Override.EntityID)
		if err != nil {
			return nil, err
		}
	}

	sel, err := selectEntity(candidates, catalog, s.routingCfg.Get(), req)
	if err != nil {
		return nil, err
	}

	return &domain.Decision{
		Selected:          sel.position,
		Method:            sel.method,
		Confidence:        sel.confidence,
		Reason:            sel.reason,
		ThresholdDistance: sel.position.Headroom,
		Positions:         positions,
		DecisionTime:      time.Since(started),
	}, nil
}

// withOverrideTarget adds an inactive override target to the candidates.
// The audited snapshot keeps active positions only.
func (s *Service) withOverrideTarget(ctx context.Context, positions []vatdomain.Position, entityID snowflake.ID) ([]vatdomain.Position, error) {
	if lo.SomeBy(positions, func(p vatdomain.Position) bool { return p.EntityID == entityID }) {
		return positions, nil
	}
	target, err := s.vatSvc.Position(ctx, entityID)
	if err != nil || target == nil {
		return positions, err
	}
	return append(slices.Clone(positions), *target), nil
}

func (s *Service) persist(ctx context.Context, req domain.RouteRequest, decision *domain.Decision) (snowflake.ID, error) {
	snapshot, err := json.Marshal(decision.Positions)
	if err != nil {
		return 0, err
	}
	row := domain.RoutingDecision{
		ID:                s.genID.Generate(),
		SelectedEntityID:  decision.Selected.EntityID,
		Amount:            req.Amount,
		MembershipType:    req.MembershipType,
		Positions:         datatypes.JSON(snapshot),
		Reason:            decision.Reason,
		Method:            decision.Method,
		Confidence:        decision.Confidence,
		ThresholdDistance: decision.ThresholdDistance,
		DecisionTimeMs:    decision.DecisionTime.Milliseconds(),
		CreatedAt:         s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Service) recordFailure(ctx context.Context, req domain.RouteRequest, err error) {
	reason := "error"
	switch {
	case errors.Is(err, domain.ErrNoViableEntity):
		reason = "no_viable_entity"
		s.log.Error("no viable entity for payment, manual routing required",
			zap.Float64("amount", req.Amount),
			zap.String("membership_type", req.MembershipType),
		)
	case errors.Is(err, domain.ErrInvalidEntity):
		reason = "invalid_entity"
	case errors.Is(err, domain.ErrInvalidAmount):
		reason = "invalid_amount"
	}
	s.obsMetrics.RecordRoutingFailure(ctx, reason)
}
