package fundraiser

import (
	"github.com/smallbiznis/duesledger/internal/fundraiser/repository"
	"github.com/smallbiznis/duesledger/internal/fundraiser/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fundraiser.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
