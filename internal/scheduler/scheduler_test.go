package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/dbtest"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/order/repository"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var base = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

// fakeOrders records the lifecycle calls the sweep makes.
type fakeOrders struct {
	orderdomain.Service

	mu        sync.Mutex
	reminders []string
	expired   []string
	resent    []string
	errFor    map[string]error
}

func (f *fakeOrders) SendReminder(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[id]; err != nil {
		return false, err
	}
	f.reminders = append(f.reminders, id)
	return true, nil
}

func (f *fakeOrders) Expire(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[id]; err != nil {
		return false, err
	}
	f.expired = append(f.expired, id)
	return true, nil
}

func (f *fakeOrders) ResendTickets(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[id]; err != nil {
		return err
	}
	f.resent = append(f.resent, id)
	return nil
}

type harness struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	repo   orderdomain.Repository
	orders *fakeOrders
	sched  *Scheduler
}

func newHarness(t *testing.T, locker RunLocker) *harness {
	t.Helper()
	useTestRegistry(t)

	h := &harness{
		db:     dbtest.Open(t),
		node:   dbtest.Node(t),
		clock:  clock.NewFakeClock(base),
		repo:   repository.Provide(),
		orders: &fakeOrders{errFor: map[string]error{}},
	}
	pricing, err := config.NewStaticPricingConfigHolder(config.DefaultPricingConfig())
	require.NoError(t, err)
	h.sched, err = New(Params{
		DB:      h.db,
		Log:     zap.NewNop(),
		GenID:   h.node,
		Clock:   h.clock,
		Repo:    h.repo,
		Orders:  h.orders,
		Pricing: pricing,
		Locker:  locker,
		Config:  Config{BatchSize: 2},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) insert(t *testing.T, mutate func(*orderdomain.Order)) orderdomain.Order {
	t.Helper()
	id := h.node.Generate()
	o := orderdomain.Order{
		ID:            id,
		OrderNumber:   orderdomain.OrderNumber(id, base),
		Channel:       orderdomain.ChannelRetail,
		CustomerName:  "Ion",
		CustomerEmail: "ion@example.com",
		Language:      "ro",
		Currency:      "MDL",
		TotalAmount:   30000,
		FinalAmount:   30000,
		DiscountKind:  "none",
		Status:        orderdomain.StatusPending,
		PaymentStatus: orderdomain.PaymentPending,
		Version:       1,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	if mutate != nil {
		mutate(&o)
	}
	require.NoError(t, h.repo.Insert(context.Background(), h.db, &o))
	return o
}

func TestOrderSweepSendsDueReminders(t *testing.T) {
	h := newHarness(t, nil)
	var due []string
	for i := 0; i < 3; i++ {
		due = append(due, h.insert(t, nil).ID.String())
	}
	h.insert(t, func(o *orderdomain.Order) {
		o.CreatedAt = base.Add(50 * time.Minute)
	})
	h.insert(t, func(o *orderdomain.Order) {
		o.Channel = orderdomain.ChannelInvitation
		o.IsInvitation = true
	})

	h.clock.Advance(time.Hour)
	require.NoError(t, h.sched.OrderSweepJob(context.Background()))

	assert.ElementsMatch(t, due, h.orders.reminders)
	assert.Empty(t, h.orders.expired)
}

func TestOrderSweepExpiresAfterSecondReminder(t *testing.T) {
	h := newHarness(t, nil)
	sentAt := base.Add(-25 * time.Hour)
	stale := h.insert(t, func(o *orderdomain.Order) {
		o.CreatedAt = base.Add(-72 * time.Hour)
		o.ReminderCount = 2
		o.ReminderSentAt = &sentAt
	})
	recent := base.Add(-time.Hour)
	h.insert(t, func(o *orderdomain.Order) {
		o.CreatedAt = base.Add(-48 * time.Hour)
		o.ReminderCount = 2
		o.ReminderSentAt = &recent
	})

	require.NoError(t, h.sched.OrderSweepJob(context.Background()))
	assert.Equal(t, []string{stale.ID.String()}, h.orders.expired)
	assert.Empty(t, h.orders.reminders)
}

func TestOrderSweepJoinsFailures(t *testing.T) {
	h := newHarness(t, nil)
	failing := h.insert(t, nil)
	raced := h.insert(t, nil)
	ok := h.insert(t, nil)
	h.orders.errFor[failing.ID.String()] = fmt.Errorf("%w: smtp down", orderdomain.ErrEmailDelivery)
	h.orders.errFor[raced.ID.String()] = orderdomain.ErrInvalidTransition

	h.clock.Advance(2 * time.Hour)
	err := h.sched.OrderSweepJob(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, orderdomain.ErrEmailDelivery)
	assert.NotErrorIs(t, err, orderdomain.ErrInvalidTransition)
	assert.Equal(t, []string{ok.ID.String()}, h.orders.reminders)
}

func TestOrderSweepSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	h := newHarness(t, locker)
	h.insert(t, nil)
	h.clock.Advance(2 * time.Hour)

	_, held, err := locker.TryLock(context.Background(), sweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, h.sched.OrderSweepJob(context.Background()))
	assert.Empty(t, h.orders.reminders)

	mr.Del(sweepLockKey)
	require.NoError(t, h.sched.OrderSweepJob(context.Background()))
	assert.Len(t, h.orders.reminders, 1)
	assert.False(t, mr.Exists(sweepLockKey), "lock released after the run")
}

func TestConfirmationRecoveryResendsMissedEmails(t *testing.T) {
	h := newHarness(t, nil)
	paidAt := base.Add(-30 * time.Minute)
	missed := h.insert(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.StatusPaid
		o.PaymentStatus = orderdomain.PaymentOK
		o.PaidAt = &paidAt
	})
	justPaid := base.Add(-time.Minute)
	h.insert(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.StatusPaid
		o.PaymentStatus = orderdomain.PaymentOK
		o.PaidAt = &justPaid
	})
	old := base.Add(-48 * time.Hour)
	h.insert(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.StatusPaid
		o.PaymentStatus = orderdomain.PaymentOK
		o.PaidAt = &old
	})
	sent := h.insert(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.StatusPaid
		o.PaymentStatus = orderdomain.PaymentOK
		o.PaidAt = &paidAt
	})
	require.NoError(t, h.repo.MarkConfirmationSent(context.Background(), h.db, sent.ID, paidAt))

	require.NoError(t, h.sched.ConfirmationRecoveryJob(context.Background()))
	assert.Equal(t, []string{missed.ID.String()}, h.orders.resent)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.cfg.EnabledJobs = []string{JobConfirmationRecovery}
	h.insert(t, nil)
	h.clock.Advance(2 * time.Hour)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.orders.reminders)

	h.sched.cfg.EnabledJobs = nil
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.orders.reminders, 1)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useTestRegistry(t)

	s := &Scheduler{log: zap.NewNop(), genID: dbtest.Node(t), clock: clock.NewFakeClock(time.Time{})}
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "boxoffice", "env": "test", "job": "timeout_job"}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "boxoffice_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "boxoffice",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "boxoffice_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsErrors(t *testing.T) {
	useTestRegistry(t)
	boom := errors.New("boom")
	s := &Scheduler{log: zap.NewNop(), genID: dbtest.Node(t), clock: clock.NewFakeClock(base)}
	err := s.runJob(context.Background(), "failing", time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
}

// useTestRegistry points the scheduler metrics at a fresh registry for the
// duration of the test.
func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "boxoffice", Environment: "test"})
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	})
	return registry
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
