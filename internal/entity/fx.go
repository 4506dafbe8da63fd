package entity

import (
	"github.com/smallbiznis/gymledger/internal/entity/repository"
	"github.com/smallbiznis/gymledger/internal/entity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
