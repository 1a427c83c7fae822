package usage

import (
	"github.com/smallbiznis/pixora/internal/usage/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.ledger",
	fx.Provide(repository.NewLedger),
)
