package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Positions recomputes every active entity's position from confirmed
	// payments and refreshes the revenue caches.
	Positions(ctx context.Context) ([]Position, error)
	// Position computes one entity's position whether or not it is active.
	// It returns nil for an unknown entity and writes no caches.
	Position(ctx context.Context, entityID snowflake.ID) (*Position, error)
	CurrentYear() Year
}
