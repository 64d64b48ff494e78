package scheduler

import (
	"context"

	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(provideRunLocker),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func provideRunLocker(l *ratelimit.Locker) RunLocker {
	if l == nil {
		return nil
	}
	return l
}

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
