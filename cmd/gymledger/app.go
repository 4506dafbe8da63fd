package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/smallbiznis/gymledger/internal/observability"
	"github.com/smallbiznis/gymledger/pkg/db"
	"go.uber.org/fx"
)

const commandTimeout = 10 * time.Minute

// coreOptions is the infrastructure every command needs.
func coreOptions() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(provideSnowflakeNode),
		db.Module,
		clock.Module,
	)
}

func provideSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// runOnce starts a short-lived app, fills targets and calls fn before
// stopping it again.
func runOnce(ctx context.Context, opts fx.Option, fn func(context.Context) error, targets ...any) error {
	app := fx.New(
		coreOptions(),
		opts,
		fx.Populate(targets...),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
