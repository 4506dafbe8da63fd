package receipt

import (
	"github.com/smallbiznis/gymledger/internal/providers/pdf"
	"github.com/smallbiznis/gymledger/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	pdf.Module,
	fx.Provide(service.New),
)
