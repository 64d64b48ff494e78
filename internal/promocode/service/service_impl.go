package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog catalogdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	catalog catalogdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("promocode.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.PromoCode, error) {
	code := discount.NormalizeCode(req.Code)
	if !discount.ValidCode(code) {
		return domain.PromoCode{}, domain.ErrInvalidCode
	}
	if (req.DiscountPercent == nil) == (req.DiscountAmount == nil) {
		return domain.PromoCode{}, domain.ErrInvalidDiscount
	}
	if req.DiscountPercent != nil && (*req.DiscountPercent <= 0 || *req.DiscountPercent > 100) {
		return domain.PromoCode{}, domain.ErrInvalidDiscount
	}
	if req.DiscountAmount != nil && *req.DiscountAmount <= 0 {
		return domain.PromoCode{}, domain.ErrInvalidDiscount
	}

	now := s.clock.Now()
	p := domain.PromoCode{
		ID:                   s.genID.Generate(),
		Code:                 code,
		Description:          strings.TrimSpace(req.Description),
		DiscountPercent:      req.DiscountPercent,
		DiscountAmount:       req.DiscountAmount,
		UsageLimit:           req.UsageLimit,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		MinOrderAmount:       req.MinOrderAmount,
		AllowedTicketTypeIDs: allowList(req.AllowedTicketTypeIDs),
		OnePerEmail:          req.OnePerEmail,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := validateLimits(&p); err != nil {
		return domain.PromoCode{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.PromoCode{}, domain.ErrDuplicateCode
		}
		return domain.PromoCode{}, err
	}

	s.log.Info("promo code created", zap.String("promo_code_id", p.ID.String()), zap.String("code", p.Code))
	return p, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.PromoCode, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return domain.PromoCode{}, err
	}

	var updated domain.PromoCode
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrNotFound
		}

		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if req.ClearUsageLimit {
			p.UsageLimit = nil
		} else if req.UsageLimit != nil {
			p.UsageLimit = req.UsageLimit
		}
		if req.ValidFrom != nil {
			p.ValidFrom = req.ValidFrom
		}
		if req.ValidUntil != nil {
			p.ValidUntil = req.ValidUntil
		}
		if req.MinOrderAmount != nil {
			p.MinOrderAmount = *req.MinOrderAmount
		}
		if req.AllowedTicketTypeIDs != nil {
			p.AllowedTicketTypeIDs = allowList(*req.AllowedTicketTypeIDs)
		}
		if req.OnePerEmail != nil {
			p.OnePerEmail = *req.OnePerEmail
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		if err := validateLimits(p); err != nil {
			return err
		}
		if p.UsageLimit != nil && *p.UsageLimit < p.UsedCount {
			return domain.ErrInvalidUsageLimit
		}

		p.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return domain.PromoCode{}, err
	}
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	inactive := false
	_, err := s.Update(ctx, domain.UpdateRequest{ID: id, IsActive: &inactive})
	return err
}

func (s *Service) Get(ctx context.Context, id string) (domain.PromoCode, error) {
	promoID, err := parseID(id)
	if err != nil {
		return domain.PromoCode{}, err
	}
	p, err := s.repo.FindByID(ctx, s.db, promoID)
	if err != nil {
		return domain.PromoCode{}, err
	}
	if p == nil {
		return domain.PromoCode{}, domain.ErrNotFound
	}
	return *p, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.PromoCode, error) {
	return s.repo.List(ctx, s.db, activeOnly)
}

// Evaluate prices cart under the promo code. A rejected code is not an
// error: the returned quote carries the reason.
func (s *Service) Evaluate(ctx context.Context, req domain.EvaluateRequest) (discount.Quote, error) {
	code := discount.NormalizeCode(req.Code)
	p, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return discount.Quote{}, err
	}

	policy := discount.Promo{Code: code, Terms: p.Terms()}
	if p != nil && p.OnePerEmail {
		policy.PriorUses, err = s.repo.CountPriorUses(ctx, s.db, p.ID, req.Email)
		if err != nil {
			return discount.Quote{}, err
		}
	}

	quote := discount.Price(req.Cart, policy, s.clock.Now())
	if quote.Rejected() {
		s.metrics.RecordPromoRejection(ctx, string(quote.Rejection))
		s.log.Debug("promo code rejected", zap.String("code", code), zap.String("reason", string(quote.Rejection)))
	}
	return quote, nil
}

func (s *Service) Check(ctx context.Context, req domain.CheckRequest) (discount.Quote, error) {
	lines, err := s.catalog.Resolve(ctx, req.Lines, catalogdomain.ResolveOptions{})
	if err != nil {
		return discount.Quote{}, err
	}
	return s.Evaluate(ctx, domain.EvaluateRequest{
		Code:  req.Code,
		Email: req.Email,
		Cart:  CartFromLines(lines),
	})
}

// CartFromLines adapts catalog-priced lines to the pricing input.
func CartFromLines(lines []catalogdomain.PricedLine) discount.Cart {
	cart := discount.Cart{Lines: make([]discount.Line, 0, len(lines))}
	for _, l := range lines {
		cart.Lines = append(cart.Lines, discount.Line{
			TicketTypeID: int64(l.TicketTypeID),
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
		})
	}
	return cart
}

func validateLimits(p *domain.PromoCode) error {
	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		return domain.ErrInvalidUsageLimit
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && !p.ValidUntil.After(*p.ValidFrom) {
		return domain.ErrInvalidWindow
	}
	if p.MinOrderAmount < 0 {
		return domain.ErrInvalidMinimum
	}
	return nil
}

func allowList(ids []int64) pq.Int64Array {
	if len(ids) == 0 {
		return nil
	}
	return pq.Int64Array(append([]int64(nil), ids...))
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
