package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/dbtest"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestJobRunTalliesActions(t *testing.T) {
	registry := useTestRegistry(t)
	core, logs := observer.New(zapcore.DebugLevel)
	fc := clock.NewFakeClock(base)
	s := &Scheduler{log: zap.New(core), genID: dbtest.Node(t), clock: fc, cfg: Config{}.withDefaults()}

	ctx, run, owner := s.ensureJobRun(context.Background(), JobOrderSweep)
	require.True(t, owner)
	_, nested, owner := s.ensureJobRun(ctx, JobOrderSweep)
	assert.False(t, owner)
	assert.Same(t, run, nested)

	run.record(obsmetrics.SchedulerActionReminderSent, 2)
	run.record(obsmetrics.SchedulerActionSkipped, 1)
	run.record(obsmetrics.SchedulerActionExpired, 0)
	fc.Advance(3 * time.Second)
	s.logJobFinish(ctx, run)

	entries := logs.FilterMessage("scheduler.job.finish").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 2, fields[obsmetrics.SchedulerActionReminderSent])
	assert.EqualValues(t, 1, fields[obsmetrics.SchedulerActionSkipped])
	assert.NotContains(t, fields, obsmetrics.SchedulerActionExpired)
	assert.Equal(t, 3*time.Second, fields["elapsed"])

	labels := map[string]string{"service": "boxoffice", "env": "test", "job": JobOrderSweep, "action": obsmetrics.SchedulerActionReminderSent}
	assert.Equal(t, float64(2), getCounterValue(t, registry, "boxoffice_scheduler_orders_processed_total", labels))
}

func TestJobRunFailureFinishesAtWarn(t *testing.T) {
	useTestRegistry(t)
	core, logs := observer.New(zapcore.DebugLevel)
	s := &Scheduler{log: zap.New(core), genID: dbtest.Node(t), clock: clock.NewFakeClock(base), cfg: Config{}.withDefaults()}

	ctx, run, _ := s.ensureJobRun(context.Background(), JobConfirmationRecovery)
	s.logOrderError(ctx, run, orderdomain.Order{OrderNumber: "FEST-0001"}, errors.New("smtp down"))
	s.logJobFinish(ctx, run)

	failed := logs.FilterMessage("scheduler.order.failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "FEST-0001", failed[0].ContextMap()["order_number"])

	finish := logs.FilterMessage("scheduler.job.finish").All()
	require.Len(t, finish, 1)
	assert.Equal(t, zapcore.WarnLevel, finish[0].Level)
	assert.EqualValues(t, 1, finish[0].ContextMap()[obsmetrics.SchedulerActionFailed])
}
