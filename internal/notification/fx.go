package notification

import (
	"github.com/smallbiznis/gymledger/internal/notification/domain"
	"github.com/smallbiznis/gymledger/internal/notification/service"
	obsmetrics "github.com/smallbiznis/gymledger/internal/observability/metrics"
	"github.com/smallbiznis/gymledger/internal/providers/email"
	"github.com/smallbiznis/gymledger/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type dispatcherParams struct {
	fx.In

	Log        *zap.Logger
	Email      *service.EmailDispatcher
	Staff      *service.StaffAlerter
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func provideDispatcher(p dispatcherParams) domain.Dispatcher {
	return service.NewFireAndLog(service.Fanout{p.Email, p.Staff}, p.Log, p.ObsMetrics)
}

var Module = fx.Module("notification.service",
	email.Module,
	slack.Module,
	fx.Provide(service.NewEmailDispatcher),
	fx.Provide(service.NewStaffAlerter),
	fx.Provide(provideDispatcher),
)
