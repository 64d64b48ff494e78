package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	"github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	promoservice "github.com/smallbiznis/boxoffice/internal/promocode/service"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Pricing   *config.PricingConfigHolder
	Repo      domain.Repository
	Catalog   catalogdomain.Service
	Promo     promodomain.Service
	PromoRepo promodomain.Repository
	Issuer    *ticketcode.Issuer
	Gateway   gateway.Client
	Notifier  domain.Notifier
	Events    events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	pricing   *config.PricingConfigHolder
	repo      domain.Repository
	catalog   catalogdomain.Service
	promo     promodomain.Service
	promoRepo promodomain.Repository
	issuer    *ticketcode.Issuer
	gateway   gateway.Client
	notifier  domain.Notifier
	events    events.Publisher
	metrics   *metrics.Metrics

	reminderTimeout time.Duration
}

// ReminderSendTimeout bounds a reminder email. The order row stays locked
// while it is sent; an unsent reminder is retried on the next sweep.
const ReminderSendTimeout = 3 * time.Second

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		pricing:   p.Pricing,
		repo:      p.Repo,
		catalog:   p.Catalog,
		promo:     p.Promo,
		promoRepo: p.PromoRepo,
		issuer:    p.Issuer,
		gateway:   p.Gateway,
		notifier:  p.Notifier,
		events:    p.Events,
		metrics:   p.Metrics,

		reminderTimeout: ReminderSendTimeout,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResult, error) {
	customer, err := validateCustomer(req.Customer)
	if err != nil {
		return domain.CreateOrderResult{}, err
	}
	lang, ok := domain.NormalizeLanguage(req.Language)
	if !ok {
		return domain.CreateOrderResult{}, domain.ErrInvalidLanguage
	}
	channel := req.Channel
	if channel == "" {
		channel = domain.ChannelRetail
	}
	if channel != domain.ChannelRetail && channel != domain.ChannelB2B {
		return domain.CreateOrderResult{}, domain.ErrInvalidChannel
	}
	code := discount.NormalizeCode(req.PromoCode)
	if channel == domain.ChannelB2B && code != "" {
		return domain.CreateOrderResult{}, domain.ErrPromoNotApplicable
	}

	priced, err := s.catalog.Resolve(ctx, req.Lines, catalogdomain.ResolveOptions{})
	if err != nil {
		return domain.CreateOrderResult{}, err
	}
	cart := promoservice.CartFromLines(priced)

	quote, err := s.quote(ctx, channel, code, customer.Email, cart)
	if err != nil {
		return domain.CreateOrderResult{}, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	order := domain.Order{
		ID:              id,
		OrderNumber:     domain.OrderNumber(id, now),
		Channel:         channel,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		Language:        lang,
		ClientIP:        strings.TrimSpace(req.ClientIP),
		Currency:        s.cfg.Currency,
		TotalAmount:     quote.Subtotal,
		DiscountAmount:  quote.DiscountAmount,
		FinalAmount:     quote.FinalAmount,
		DiscountKind:    string(quote.Kind),
		DiscountPercent: quote.Percent,
		Status:          domain.StatusPending,
		PaymentStatus:   domain.PaymentPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if quote.PromoID != 0 {
		promoID := snowflake.ID(quote.PromoID)
		order.PromoCodeID = &promoID
		order.PromoCode = &quote.PromoCode
	}
	order.Lines = buildLines(s.genID, id, priced, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order.PromoCodeID != nil {
			if err := s.redeemPromo(ctx, tx, *order.PromoCodeID, customer.Email); err != nil {
				return err
			}
		}
		if err := s.repo.Insert(ctx, tx, &order); err != nil {
			return err
		}
		return s.repo.InsertLines(ctx, tx, order.Lines)
	})
	if err != nil {
		return domain.CreateOrderResult{}, err
	}

	s.metrics.RecordOrderCreated(ctx, string(channel))
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("channel", string(channel)),
		zap.Int64("final_amount", order.FinalAmount),
		zap.String("discount_kind", order.DiscountKind),
	)
	s.publish(ctx, events.OrderCreated, order)

	result := domain.CreateOrderResult{Order: order}
	if url, ok := s.openPaymentSession(ctx, &order); ok {
		result.Order.PaymentURL = &url
	} else {
		result.PaymentPending = true
	}
	return result, nil
}

func (s *Service) quote(ctx context.Context, channel domain.Channel, code, email string, cart discount.Cart) (discount.Quote, error) {
	switch {
	case channel == domain.ChannelB2B:
		table, err := discount.TierTableFromConfig(s.pricing.Get().TierBands)
		if err != nil {
			return discount.Quote{}, err
		}
		q := discount.Price(cart, discount.Tiered{Table: table}, s.clock.Now())
		if q.Rejected() {
			return discount.Quote{}, domain.ErrBelowTierMinimum
		}
		return q, nil
	case code != "":
		q, err := s.promo.Evaluate(ctx, promodomain.EvaluateRequest{Code: code, Email: email, Cart: cart})
		if err != nil {
			return discount.Quote{}, err
		}
		if q.Rejected() {
			return discount.Quote{}, &domain.PromoRejectedError{Reason: q.Rejection}
		}
		return q, nil
	default:
		return discount.Price(cart, discount.None{}, s.clock.Now()), nil
	}
}

// redeemPromo consumes one use of the code. The guarded update takes the
// promo row lock, so the one-per-email recount after it cannot race.
func (s *Service) redeemPromo(ctx context.Context, tx *gorm.DB, promoID snowflake.ID, email string) error {
	ok, err := s.promoRepo.Redeem(ctx, tx, promoID)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.RecordPromoRejection(ctx, string(discount.ReasonUsageExhausted))
		return domain.ErrUsageExhausted
	}

	p, err := s.promoRepo.FindByID(ctx, tx, promoID)
	if err != nil {
		return err
	}
	if p != nil && p.OnePerEmail {
		n, err := s.promoRepo.CountPriorUses(ctx, tx, promoID, email)
		if err != nil {
			return err
		}
		if n > 0 {
			s.metrics.RecordPromoRejection(ctx, string(discount.ReasonAlreadyUsedByEmail))
			return &domain.PromoRejectedError{Reason: discount.ReasonAlreadyUsedByEmail}
		}
	}
	return nil
}

// openPaymentSession asks the gateway for a hosted payment page. Any
// failure leaves the order pending; reminders carry the customer from there.
func (s *Service) openPaymentSession(ctx context.Context, order *domain.Order) (string, bool) {
	timeout := s.cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sessionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := s.gateway.CreateSession(sessionCtx, gateway.SessionRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.FinalAmount,
		Currency:    order.Currency,
		Email:       order.CustomerEmail,
		Language:    order.Language,
		Description: s.cfg.AppName + " " + order.OrderNumber,
		ClientIP:    order.ClientIP,
	})
	if err != nil {
		s.log.Warn("payment session unavailable; order left pending",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
		return "", false
	}

	if err := s.repo.SetPaymentURL(ctx, s.db, order.ID, session.PaymentURL, s.clock.Now()); err != nil {
		s.log.Error("store payment url failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
	return session.PaymentURL, true
}

func buildLines(genID *snowflake.Node, orderID snowflake.ID, priced []catalogdomain.PricedLine, now time.Time) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(priced))
	for _, p := range priced {
		lines = append(lines, domain.OrderLine{
			ID:             genID.Generate(),
			OrderID:        orderID,
			TicketTypeID:   p.TicketTypeID,
			TicketOptionID: p.TicketOptionID,
			TicketTypeName: p.TicketTypeName,
			OptionName:     p.OptionName,
			Quantity:       p.Quantity,
			UnitPrice:      p.UnitPrice,
			CreatedAt:      now,
		})
	}
	return lines
}

func validateCustomer(c domain.Customer) (domain.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	if c.Name == "" || len(c.Name) > 200 {
		return domain.Customer{}, domain.ErrInvalidName
	}
	email, err := NormalizeEmail(c.Email)
	if err != nil {
		return domain.Customer{}, err
	}
	c.Email = email
	return c, nil
}

// NormalizeEmail accepts a bare address and lowercases it.
func NormalizeEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func (s *Service) publish(ctx context.Context, t events.Type, o domain.Order) {
	if err := s.events.Publish(ctx, events.FromOrder(t, o, s.clock.Now())); err != nil {
		s.log.Warn("publish order event failed",
			zap.String("event", string(t)),
			zap.String("order_number", o.OrderNumber),
			zap.Error(err),
		)
	}
}

// transition moves o to next under the caller's row lock. The update only
// lands while the row still has the status and version that were read.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, o *domain.Order, next domain.Status, mutate func(*domain.Order)) error {
	if !domain.CanTransition(o.Status, next) {
		return domain.ErrInvalidTransition
	}
	from, version := o.Status, o.Version

	o.Status = next
	o.UpdatedAt = s.clock.Now()
	if mutate != nil {
		mutate(o)
	}

	ok, err := s.repo.UpdateTransition(ctx, tx, domain.Transition{
		OrderID: o.ID,
		From:    from,
		Version: version,
		Order:   o,
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConcurrentTransition
	}
	o.Version++
	s.metrics.RecordTransition(ctx, string(from), string(next))
	return nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	o, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// load fills lines and items of o.
func (s *Service) load(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	lines, err := s.repo.ListLines(ctx, db, o.ID)
	if err != nil {
		return err
	}
	items, err := s.repo.ListItems(ctx, db, o.ID)
	if err != nil {
		return err
	}
	o.Lines, o.Items = lines, items
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
