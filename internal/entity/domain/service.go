package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateEntityRequest struct {
	Name         string
	VatThreshold float64
}

type CreateCatalogRequest struct {
	ServiceType       string
	Name              string
	PreferredEntityID snowflake.ID
	MembershipTypes   []string
}

type Service interface {
	Create(ctx context.Context, req CreateEntityRequest) (BusinessEntity, error)
	List(ctx context.Context) ([]BusinessEntity, error)
	AddCatalogEntry(ctx context.Context, req CreateCatalogRequest) (ServiceCatalog, error)
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidVatThreshold = errors.New("invalid_vat_threshold")
	ErrInvalidEntity       = errors.New("invalid_entity")
	ErrInvalidServiceType  = errors.New("invalid_service_type")
	ErrEntityExists        = errors.New("entity_exists")
	ErrNotFound            = errors.New("not_found")
)
