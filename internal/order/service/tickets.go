package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/notification"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResendTickets mails the stored codes of a paid order again.
func (s *Service) ResendTickets(ctx context.Context, id string) error {
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusPaid {
		return domain.ErrTicketsUnavailable
	}
	if err := s.sendConfirmation(ctx, o); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEmailDelivery, err)
	}
	s.log.Info("tickets resent", zap.String("order_number", o.OrderNumber))
	return nil
}

func (s *Service) DownloadTickets(ctx context.Context, number string) (domain.TicketDocument, error) {
	o, err := s.GetByNumber(ctx, number)
	if err != nil {
		return domain.TicketDocument{}, err
	}
	if o.Status != domain.StatusPaid {
		return domain.TicketDocument{}, domain.ErrTicketsUnavailable
	}
	content, err := s.notifier.RenderTickets(ctx, o)
	if err != nil {
		return domain.TicketDocument{}, err
	}
	return domain.TicketDocument{
		Filename: notification.TicketsFilename(o.OrderNumber),
		Content:  content,
	}, nil
}

// RedeemTicket marks a scanned code used. Only the first scan succeeds.
func (s *Service) RedeemTicket(ctx context.Context, code string) (domain.OrderItem, error) {
	code = ticketcode.Normalize(code)
	if !ticketcode.Valid(code) {
		return domain.OrderItem{}, domain.ErrTicketNotFound
	}

	var (
		item  domain.OrderItem
		order domain.Order
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindItemByCode(ctx, tx, code, true)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrTicketNotFound
		}
		o, err := s.repo.FindByID(ctx, tx, found.OrderID)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrTicketNotFound
		}

		switch found.Status {
		case domain.ItemRefunded:
			return domain.ErrTicketRefunded
		case domain.ItemUsed:
			return usedError(found)
		}
		if o.Status != domain.StatusPaid {
			return domain.ErrTicketsUnavailable
		}

		now := s.clock.Now()
		ok, err := s.repo.MarkItemUsed(ctx, tx, found.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			again, err := s.repo.FindItemByCode(ctx, tx, code, false)
			if err != nil {
				return err
			}
			return usedError(again)
		}
		found.Status = domain.ItemUsed
		found.ScannedAt = &now
		found.UpdatedAt = now
		item, order = *found, *o
		return nil
	})
	if err != nil {
		var used *domain.TicketUsedError
		if errors.As(err, &used) {
			s.log.Warn("ticket scanned twice", zap.String("ticket_code", code), zap.Time("first_scan", used.ScannedAt))
		}
		return domain.OrderItem{}, err
	}

	s.log.Info("ticket redeemed", zap.String("ticket_code", code), zap.String("order_number", order.OrderNumber))
	ev := events.FromOrder(events.TicketRedeemed, order, s.clock.Now())
	ev.TicketCode = code
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish ticket event failed", zap.Error(err))
	}
	return item, nil
}

func usedError(item *domain.OrderItem) error {
	e := &domain.TicketUsedError{}
	if item != nil && item.ScannedAt != nil {
		e.ScannedAt = *item.ScannedAt
	}
	return e
}
