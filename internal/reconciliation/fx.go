package reconciliation

import (
	"github.com/smallbiznis/gymledger/internal/reconciliation/mapping"
	"github.com/smallbiznis/gymledger/internal/reconciliation/repository"
	"github.com/smallbiznis/gymledger/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(repository.Provide),
	fx.Provide(mapping.New),
	fx.Provide(service.New),
)
