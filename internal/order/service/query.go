package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := parseID(id)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	if err := s.load(ctx, s.db, o); err != nil {
		return domain.Order{}, err
	}
	return *o, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	if strings.TrimSpace(number) == "" {
		return domain.Order{}, domain.ErrNotFound
	}
	o, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return domain.Order{}, err
	}
	if o == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	if err := s.load(ctx, s.db, o); err != nil {
		return domain.Order{}, err
	}
	return *o, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	rows, err := s.repo.List(ctx, s.db, req.Filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}

	orders, info, err := pagination.Trim(rows, page.Limit(), func(o domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: int64(o.ID), CreatedAt: o.CreatedAt.Unix()}
	})
	if err != nil {
		s.log.Error("encode page token failed", zap.Error(err))
		return domain.ListResponse{}, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return domain.ListResponse{Orders: orders, PageInfo: info}, nil
}

func (s *Service) RevenueSummary(ctx context.Context, from, to *time.Time) (domain.RevenueSummary, error) {
	summary, err := s.repo.RevenueSummary(ctx, s.db, from, to)
	if err != nil {
		return domain.RevenueSummary{}, err
	}
	summary.Currency = s.cfg.Currency
	return summary, nil
}

func (s *Service) UpdateEmail(ctx context.Context, req domain.UpdateEmailRequest) (domain.Order, error) {
	orderID, err := parseID(req.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o == nil {
		return domain.Order{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	if err := s.repo.UpdateEmail(ctx, s.db, o.ID, email, now); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order email updated", zap.String("order_number", o.OrderNumber))
	o.CustomerEmail = email
	o.UpdatedAt = now
	return *o, nil
}
