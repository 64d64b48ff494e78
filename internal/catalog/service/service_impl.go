package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	currency string
	repo     domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("catalog.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		currency: p.Config.Currency,
		repo:     p.Repo,
	}
}

func (s *Service) CreateTicketType(ctx context.Context, req domain.CreateTicketTypeRequest) (domain.TicketType, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.TicketType{}, domain.ErrInvalidName
	}
	if req.Price < 0 {
		return domain.TicketType{}, domain.ErrInvalidPrice
	}
	if req.SalesStartAt != nil && req.SalesEndAt != nil && !req.SalesEndAt.After(*req.SalesStartAt) {
		return domain.TicketType{}, domain.ErrInvalidSalesWindow
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	t := domain.TicketType{
		ID:           id,
		Slug:         fmt.Sprintf("%s-%s", slug.Make(name), strings.ToLower(id.Base36())),
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Price:        req.Price,
		Currency:     s.currency,
		IsActive:     true,
		SalesStartAt: req.SalesStartAt,
		SalesEndAt:   req.SalesEndAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertTicketType(ctx, s.db, &t); err != nil {
		return domain.TicketType{}, err
	}

	s.log.Info("ticket type created", zap.String("ticket_type_id", t.ID.String()), zap.String("slug", t.Slug))
	return t, nil
}

func (s *Service) AddOption(ctx context.Context, req domain.CreateOptionRequest) (domain.TicketOption, error) {
	typeID, err := parseID(req.TicketTypeID)
	if err != nil {
		return domain.TicketOption{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.TicketOption{}, domain.ErrInvalidName
	}

	parent, err := s.repo.FindTicketType(ctx, s.db, typeID)
	if err != nil {
		return domain.TicketOption{}, err
	}
	if parent == nil {
		return domain.TicketOption{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	o := domain.TicketOption{
		ID:            s.genID.Generate(),
		TicketTypeID:  typeID,
		Name:          name,
		PriceModifier: req.PriceModifier,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertOption(ctx, s.db, &o); err != nil {
		return domain.TicketOption{}, err
	}
	return o, nil
}

func (s *Service) SetTicketTypeActive(ctx context.Context, id string, active bool) error {
	typeID, err := parseID(id)
	if err != nil {
		return err
	}
	ok, err := s.repo.SetTicketTypeActive(ctx, s.db, typeID, active, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.TicketType, error) {
	types, err := s.repo.ListTicketTypes(ctx, s.db, activeOnly)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(types))
	for _, t := range types {
		ids = append(ids, t.ID)
	}
	options, err := s.repo.ListOptions(ctx, s.db, ids, activeOnly)
	if err != nil {
		return nil, err
	}
	byType := make(map[snowflake.ID][]domain.TicketOption, len(types))
	for _, o := range options {
		byType[o.TicketTypeID] = append(byType[o.TicketTypeID], o)
	}
	for i := range types {
		types[i].Options = byType[types[i].ID]
	}
	return types, nil
}

// Resolve validates cart lines against the catalog and fixes unit prices.
// Lines naming the same type and option are merged.
func (s *Service) Resolve(ctx context.Context, lines []domain.LineRequest, opts domain.ResolveOptions) ([]domain.PricedLine, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	type key struct {
		typeID   snowflake.ID
		optionID snowflake.ID
	}
	merged := make(map[key]int, len(lines))
	order := make([]key, 0, len(lines))
	typeIDs := make([]snowflake.ID, 0, len(lines))
	optionIDs := make([]snowflake.ID, 0, len(lines))

	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > domain.MaxLineQuantity {
			return nil, domain.ErrInvalidQuantity
		}
		typeID, err := snowflake.ParseString(strings.TrimSpace(l.TicketTypeID))
		if err != nil || typeID == 0 {
			return nil, domain.ErrUnknownTicketType
		}
		var optionID snowflake.ID
		if raw := strings.TrimSpace(l.TicketOptionID); raw != "" {
			optionID, err = snowflake.ParseString(raw)
			if err != nil || optionID == 0 {
				return nil, domain.ErrUnknownTicketOption
			}
			optionIDs = append(optionIDs, optionID)
		}
		k := key{typeID: typeID, optionID: optionID}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
			typeIDs = append(typeIDs, typeID)
		}
		merged[k] += l.Quantity
		if merged[k] > domain.MaxLineQuantity {
			return nil, domain.ErrInvalidQuantity
		}
	}

	types, err := s.repo.FindTicketTypes(ctx, s.db, typeIDs)
	if err != nil {
		return nil, err
	}
	typeByID := make(map[snowflake.ID]domain.TicketType, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
	}
	options, err := s.repo.FindOptions(ctx, s.db, optionIDs)
	if err != nil {
		return nil, err
	}
	optionByID := make(map[snowflake.ID]domain.TicketOption, len(options))
	for _, o := range options {
		optionByID[o.ID] = o
	}

	now := s.clock.Now()
	out := make([]domain.PricedLine, 0, len(order))
	for _, k := range order {
		t, ok := typeByID[k.typeID]
		if !ok {
			return nil, domain.ErrUnknownTicketType
		}
		if !t.IsActive {
			return nil, domain.ErrTicketTypeInactive
		}
		if !opts.IgnoreSalesWindow && !t.OnSale(now) {
			return nil, domain.ErrTicketTypeNotOnSale
		}

		line := domain.PricedLine{
			TicketTypeID:   t.ID,
			TicketTypeName: t.Name,
			Quantity:       merged[k],
			UnitPrice:      t.Price,
		}
		if k.optionID != 0 {
			o, ok := optionByID[k.optionID]
			if !ok || !o.IsActive {
				return nil, domain.ErrUnknownTicketOption
			}
			if o.TicketTypeID != t.ID {
				return nil, domain.ErrOptionMismatch
			}
			optionID := o.ID
			line.TicketOptionID = &optionID
			line.OptionName = o.Name
			line.UnitPrice = max(t.Price+o.PriceModifier, 0)
		}
		out = append(out, line)
	}
	return out, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
