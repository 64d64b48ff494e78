package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/smallbiznis/boxoffice/internal/observability/context"
	obslogger "github.com/smallbiznis/boxoffice/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	"go.uber.org/zap"
)

// jobRun is one execution of a job. Nested calls (runJob wrapping a job
// function) share the run stored in the context.
type jobRun struct {
	job     string
	runID   string
	started time.Time
	tally   map[string]int
	failed  bool
}

type jobRunKey struct{}

// record counts orders by what happened to them and mirrors the count into
// the orders-processed metric.
func (r *jobRun) record(action string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.tally[action] += n
	if action == obsmetrics.SchedulerActionFailed {
		r.failed = true
	}
	obsmetrics.Scheduler().AddOrdersProcessed(r.job, action, n)
}

func (r *jobRun) markFailed() {
	if r != nil {
		r.failed = true
	}
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		job:     job,
		runID:   s.genID.Generate().String(),
		started: s.clock.Now(),
		tally:   map[string]int{},
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return obscontext.WithActor(ctx, "system", "scheduler"), run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
}

// logJobFinish writes one line per run with a counter for every action seen.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	actions := make([]string, 0, len(run.tally))
	for action := range run.tally {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Duration("elapsed", s.clock.Now().Sub(run.started)),
	}
	for _, action := range actions {
		fields = append(fields, zap.Int(action, run.tally[action]))
	}
	if run.failed {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logOrderError(ctx context.Context, run *jobRun, o orderdomain.Order, err error) {
	run.record(obsmetrics.SchedulerActionFailed, 1)
	s.logger(ctx).Error("scheduler.order.failed",
		zap.String("job", run.job),
		zap.String("order_number", o.OrderNumber),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
}
