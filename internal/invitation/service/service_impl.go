package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/invitation/domain"
	"github.com/smallbiznis/boxoffice/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	orderservice "github.com/smallbiznis/boxoffice/internal/order/service"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNoteLength = 1000

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     orderdomain.Repository
	Catalog  catalogdomain.Service
	Issuer   *ticketcode.Issuer
	Notifier orderdomain.Notifier
	Events   events.Publisher
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     orderdomain.Repository
	catalog  catalogdomain.Service
	issuer   *ticketcode.Issuer
	notifier orderdomain.Notifier
	events   events.Publisher
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invitation.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		repo:     p.Repo,
		catalog:  p.Catalog,
		issuer:   p.Issuer,
		notifier: p.Notifier,
		events:   p.Events,
		metrics:  p.Metrics,
	}
}

// Issue creates a zero-priced order that is paid on creation and carries its
// ticket codes. Promo codes and the payment gateway are never involved.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (orderdomain.Order, error) {
	name := strings.TrimSpace(req.Customer.Name)
	if name == "" || len(name) > 200 {
		return orderdomain.Order{}, orderdomain.ErrInvalidName
	}
	email, err := orderservice.NormalizeEmail(req.Customer.Email)
	if err != nil {
		return orderdomain.Order{}, err
	}
	lang, ok := orderdomain.NormalizeLanguage(req.Language)
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrInvalidLanguage
	}
	note := strings.TrimSpace(req.Note)
	if len(note) > maxNoteLength {
		return orderdomain.Order{}, domain.ErrInvalidNote
	}
	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		return orderdomain.Order{}, domain.ErrInvalidOperator
	}

	priced, err := s.catalog.Resolve(ctx, req.Lines, catalogdomain.ResolveOptions{IgnoreSalesWindow: true})
	if err != nil {
		return orderdomain.Order{}, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	order := orderdomain.Order{
		ID:            id,
		OrderNumber:   orderdomain.OrderNumber(id, now),
		Channel:       orderdomain.ChannelInvitation,
		IsInvitation:  true,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: strings.TrimSpace(req.Customer.Phone),
		Language:      lang,
		Currency:      s.cfg.Currency,
		DiscountKind:  string(discount.KindNone),
		Status:        orderdomain.StatusPaid,
		PaymentStatus: orderdomain.PaymentOK,
		PaidAt:        &now,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if note != "" {
		order.Note = &note
	}
	for _, p := range priced {
		order.Lines = append(order.Lines, orderdomain.OrderLine{
			ID:             s.genID.Generate(),
			OrderID:        id,
			TicketTypeID:   p.TicketTypeID,
			TicketOptionID: p.TicketOptionID,
			TicketTypeName: p.TicketTypeName,
			OptionName:     p.OptionName,
			Quantity:       p.Quantity,
			CreatedAt:      now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &order); err != nil {
			return err
		}
		if err := s.repo.InsertLines(ctx, tx, order.Lines); err != nil {
			return err
		}
		items, err := s.issuer.Issue(ctx, tx, order, order.Lines, now)
		if err != nil {
			return err
		}
		order.Items = items
		return nil
	})
	if err != nil {
		if errors.Is(err, ticketcode.ErrIssuanceExhausted) {
			return orderdomain.Order{}, orderdomain.ErrTicketIssuanceFailed
		}
		return orderdomain.Order{}, err
	}

	s.metrics.RecordOrderCreated(ctx, string(order.Channel))
	s.metrics.RecordTicketsIssued(ctx, string(order.Channel), len(order.Items))
	s.log.Info("invitation issued",
		zap.String("order_number", order.OrderNumber),
		zap.String("operator", operator),
		zap.Int("tickets", len(order.Items)),
	)

	if err := s.notifier.SendConfirmation(ctx, order); err != nil {
		s.log.Error("invitation email failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
	} else if err := s.repo.MarkConfirmationSent(ctx, s.db, order.ID, s.clock.Now()); err != nil {
		s.log.Warn("mark confirmation sent failed", zap.Error(err))
	}
	if err := s.events.Publish(ctx, events.FromOrder(events.OrderInvitationIssued, order, s.clock.Now())); err != nil {
		s.log.Warn("publish invitation event failed", zap.Error(err))
	}
	return order, nil
}
