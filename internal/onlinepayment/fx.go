package onlinepayment

import (
	"github.com/smallbiznis/duesledger/internal/onlinepayment/repository"
	"github.com/smallbiznis/duesledger/internal/onlinepayment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onlinepayment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
