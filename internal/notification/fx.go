package notification

import (
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		New,
		func(s *Service) domain.Notifier { return s },
	),
)
