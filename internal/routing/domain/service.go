package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/gymledger/pkg/db/pagination"
)

type Service interface {
	// Route selects the receiving entity and records an audit row.
	Route(ctx context.Context, req RouteRequest) (*Decision, error)
	// Preview runs the same selection without recording anything.
	Preview(ctx context.Context, req RouteRequest) (*Decision, error)
	ListDecisions(ctx context.Context, page pagination.Pagination) ([]RoutingDecision, pagination.PageInfo, error)
}

var (
	ErrInvalidEntity  = errors.New("invalid_entity")
	ErrNoViableEntity = errors.New("no_viable_entity")
	ErrInvalidAmount  = errors.New("invalid_amount")
)
