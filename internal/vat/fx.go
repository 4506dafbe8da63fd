package vat

import (
	"github.com/smallbiznis/gymledger/internal/vat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vat.service",
	fx.Provide(service.New),
)
