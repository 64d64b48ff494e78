package ticketcode

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ticketcode",
	fx.Provide(
		fx.Annotate(NewGenerator, fx.As(new(Generator))),
		func(repo domain.Repository, gen Generator, genID *snowflake.Node, log *zap.Logger) *Issuer {
			return NewIssuer(repo, gen, genID, log)
		},
	),
)
