package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cancel lets a customer drop a pending order. A wrong email looks the same
// as an unknown order number.
func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) (domain.Order, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return domain.Order{}, err
	}
	found, err := s.repo.FindByNumber(ctx, s.db, req.OrderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	if found == nil || !strings.EqualFold(found.CustomerEmail, email) {
		return domain.Order{}, domain.ErrNotFound
	}
	return s.cancel(ctx, found.ID)
}

func (s *Service) CancelByOperator(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := parseID(id)
	if err != nil {
		return domain.Order{}, err
	}
	return s.cancel(ctx, orderID)
}

func (s *Service) cancel(ctx context.Context, orderID snowflake.ID) (domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.transition(ctx, tx, o, domain.StatusCancelled, func(o *domain.Order) {
			o.CancelledAt = &now
		}); err != nil {
			return err
		}
		order = *o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order cancelled", zap.String("order_number", order.OrderNumber))
	s.publish(ctx, events.OrderCancelled, order)
	return order, nil
}

// Refund reverses a paid order as a whole and voids every ticket on it.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.Order, error) {
	orderID, err := parseID(req.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" || len(reason) > 500 {
		return domain.Order{}, domain.ErrInvalidReason
	}
	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		return domain.Order{}, domain.ErrInvalidOperator
	}
	reference := strings.TrimSpace(req.RefundReference)

	var order domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		err = s.transition(ctx, tx, o, domain.StatusRefunded, func(o *domain.Order) {
			o.PaymentStatus = domain.PaymentReversed
			o.RefundedAt = &now
			o.RefundReason = &reason
			o.RefundedBy = &operator
			if reference != "" {
				o.RefundReference = &reference
			}
		})
		if err != nil {
			return err
		}
		if err := s.repo.SetItemsStatus(ctx, tx, o.ID, domain.ItemRefunded, now); err != nil {
			return err
		}
		if err := s.load(ctx, tx, o); err != nil {
			return err
		}
		order = *o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order refunded",
		zap.String("order_number", order.OrderNumber),
		zap.String("refunded_by", operator),
		zap.String("reason", reason),
	)
	s.publish(ctx, events.OrderRefunded, order)
	return order, nil
}

// SendReminder mails the next due payment reminder. The email goes out
// while the row is locked, so count and timestamp only move once it was
// delivered and a second sweeper cannot send it twice. The send is capped
// at reminderTimeout.
func (s *Service) SendReminder(ctx context.Context, id string) (bool, error) {
	orderID, err := parseID(id)
	if err != nil {
		return false, err
	}

	policy := s.pricing.Get().Reminders
	sent := false
	var order domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		action := domain.NextSweepAction(*o, policy, now)
		if action != domain.SweepFirstReminder && action != domain.SweepSecondReminder {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.reminderTimeout)
		err = s.notifier.SendReminder(sendCtx, *o, action == domain.SweepSecondReminder)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrEmailDelivery, err)
		}

		ok, err := s.repo.UpdateReminder(ctx, tx, o.ID, o.Version, o.ReminderCount+1, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentTransition
		}
		o.ReminderCount++
		o.ReminderSentAt = &now
		o.Version++
		order = *o
		sent = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if sent {
		s.log.Info("payment reminder sent",
			zap.String("order_number", order.OrderNumber),
			zap.Int("reminder_count", order.ReminderCount),
		)
	}
	return sent, nil
}

// Expire closes a pending order once both reminders went unanswered for the
// final grace period. It reports false when the order is not due.
func (s *Service) Expire(ctx context.Context, id string) (bool, error) {
	orderID, err := parseID(id)
	if err != nil {
		return false, err
	}

	policy := s.pricing.Get().Reminders
	var order *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if domain.NextSweepAction(*o, policy, now) != domain.SweepExpire {
			return nil
		}
		if err := s.transition(ctx, tx, o, domain.StatusExpired, func(o *domain.Order) {
			o.ExpiredAt = &now
		}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil || order == nil {
		return false, err
	}

	s.log.Info("order expired", zap.String("order_number", order.OrderNumber))
	s.publish(ctx, events.OrderExpired, *order)
	return true, nil
}
