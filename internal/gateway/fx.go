package gateway

import (
	"github.com/smallbiznis/gymledger/internal/gateway/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.stripe",
	fx.Provide(stripe.New),
)
