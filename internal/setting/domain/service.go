package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	SetDunningSuspended(ctx context.Context, flag DunningFlag) error
	IsDunningSuspended(ctx context.Context, subscriptionID snowflake.ID) (bool, error)
	// ClearDunningSuspended reports whether a flag was present.
	ClearDunningSuspended(ctx context.Context, subscriptionID snowflake.ID) (bool, error)
	SaveRevenueSnapshot(ctx context.Context, snapshot any, ttl time.Duration) error
	LoadRevenueSnapshot(ctx context.Context, into any) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

var ErrInvalidKey = errors.New("invalid_key")
