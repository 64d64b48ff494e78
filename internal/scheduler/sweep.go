package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/config"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	"go.uber.org/zap"
)

const sweepLockKey = "boxoffice:scheduler:order_sweep"

// OrderSweepJob walks pending orders oldest first and hands every order that
// is due for a reminder or expiry to the order service, which re-checks the
// timing under the row lock.
func (s *Scheduler) OrderSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOrderSweep)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	release, acquired, err := s.acquire(ctx, sweepLockKey)
	if err != nil {
		return err
	}
	if !acquired {
		obsmetrics.Scheduler().IncLockSkipped(JobOrderSweep)
		s.logger(ctx).Debug("order sweep held by another replica")
		return nil
	}
	defer release()

	policy := s.pricing.Get().Reminders
	now := s.clock.Now()
	cutoff := now.Add(-policy.FirstReminderAfter)

	var (
		afterID snowflake.ID
		jobErr  error
	)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		batch, err := s.repo.ListPendingForSweep(ctx, s.db, cutoff, afterID, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		for _, o := range batch {
			afterID = o.ID
			jobErr = errors.Join(jobErr, s.sweepOrder(ctx, run, o, policy))
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
	}
	return jobErr
}

func (s *Scheduler) sweepOrder(ctx context.Context, run *jobRun, o orderdomain.Order, policy config.ReminderPolicy) error {
	var (
		done   bool
		err    error
		action string
	)
	switch orderdomain.NextSweepAction(o, policy, s.clock.Now()) {
	case orderdomain.SweepFirstReminder, orderdomain.SweepSecondReminder:
		action = obsmetrics.SchedulerActionReminderSent
		done, err = s.orders.SendReminder(ctx, o.ID.String())
	case orderdomain.SweepExpire:
		action = obsmetrics.SchedulerActionExpired
		done, err = s.orders.Expire(ctx, o.ID.String())
	default:
		return nil
	}

	switch {
	case errors.Is(err, orderdomain.ErrInvalidTransition), errors.Is(err, orderdomain.ErrConcurrentTransition):
		// paid or cancelled between the scan and the lock
		run.record(obsmetrics.SchedulerActionSkipped, 1)
		return nil
	case err != nil:
		s.logOrderError(ctx, run, o, err)
		return fmt.Errorf("order %s: %w", o.OrderNumber, err)
	case !done:
		run.record(obsmetrics.SchedulerActionSkipped, 1)
		return nil
	}
	run.record(action, 1)
	return nil
}

// ConfirmationRecoveryJob resends tickets for paid orders whose confirmation
// email failed after the payment was applied.
func (s *Scheduler) ConfirmationRecoveryJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobConfirmationRecovery)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	from := now.Add(-s.cfg.RecoveryWindow)
	to := now.Add(-s.cfg.RecoveryDelay)

	var (
		afterID snowflake.ID
		jobErr  error
	)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		batch, err := s.repo.ListUnconfirmedPaid(ctx, s.db, from, to, afterID, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		for _, o := range batch {
			afterID = o.ID
			if err := s.orders.ResendTickets(ctx, o.ID.String()); err != nil {
				s.logOrderError(ctx, run, o, err)
				jobErr = errors.Join(jobErr, fmt.Errorf("order %s: %w", o.OrderNumber, err))
				continue
			}
			run.record(obsmetrics.SchedulerActionRecovered, 1)
			s.logger(ctx).Info("confirmation recovered", zap.String("order_number", o.OrderNumber))
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
	}
	return jobErr
}

// acquire takes the run lock when a locker is configured. Without one the
// caller always proceeds.
func (s *Scheduler) acquire(ctx context.Context, key string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger(ctx).Warn("release scheduler lock failed", zap.Error(err))
		}
	}, true, nil
}
