package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/boxoffice/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/boxoffice/internal/catalog/service"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/dbtest"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/order/repository"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	promorepo "github.com/smallbiznis/boxoffice/internal/promocode/repository"
	promoservice "github.com/smallbiznis/boxoffice/internal/promocode/service"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *fakeGateway) CreateSession(_ context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return gateway.Session{}, g.err
	}
	return gateway.Session{TransactionID: "tx-" + req.OrderNumber, PaymentURL: "https://pay.example/" + req.OrderNumber}, nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []domain.Order
	reminders     []domain.Order
	reminderErr   error
	confirmErr    error
	// stallReminders makes SendReminder wait for its context to end.
	stallReminders bool
}

func (n *fakeNotifier) SendConfirmation(_ context.Context, o domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.confirmErr != nil {
		return n.confirmErr
	}
	n.confirmations = append(n.confirmations, o)
	return nil
}

func (n *fakeNotifier) SendReminder(ctx context.Context, o domain.Order, _ bool) error {
	if n.stallReminders {
		<-ctx.Done()
		return ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reminderErr != nil {
		return n.reminderErr
	}
	n.reminders = append(n.reminders, o)
	return nil
}

func (n *fakeNotifier) RenderTickets(_ context.Context, o domain.Order) ([]byte, error) {
	return []byte("%PDF " + o.OrderNumber), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type constGenerator struct{ code string }

func (g constGenerator) Generate() (string, error) { return g.code, nil }

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	svc      *Service
	repo     domain.Repository
	catalog  catalogdomain.Service
	promo    promodomain.Service
	gateway  *fakeGateway
	notifier *fakeNotifier
	events   *recordingPublisher

	general catalogdomain.TicketType
	vip     catalogdomain.TicketType
}

type fixtureOption func(*Params)

func withGenerator(gen ticketcode.Generator) fixtureOption {
	return func(p *Params) {
		p.Issuer = ticketcode.NewIssuer(p.Repo, gen, p.GenID, zap.NewNop())
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	cfg := config.Config{AppName: "Codru Fest", Currency: "MDL", Gateway: config.GatewayConfig{Timeout: time.Second}}

	catalog := catalogservice.New(catalogservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Config: cfg, Repo: catalogrepo.Provide(),
	})
	pRepo := promorepo.Provide()
	promo := promoservice.New(promoservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: pRepo, Catalog: catalog,
	})
	pricing, err := config.NewStaticPricingConfigHolder(config.DefaultPricingConfig())
	require.NoError(t, err)

	repo := repository.Provide()
	f := &fixture{
		db:       db,
		clock:    clk,
		repo:     repo,
		catalog:  catalog,
		promo:    promo,
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
		events:   &recordingPublisher{},
	}
	p := Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
		Pricing:   pricing,
		Repo:      repo,
		Catalog:   catalog,
		Promo:     promo,
		PromoRepo: pRepo,
		Issuer:    ticketcode.NewIssuer(repo, ticketcode.NewGenerator(), node, zap.NewNop()),
		Gateway:   f.gateway,
		Notifier:  f.notifier,
		Events:    f.events,
	}
	for _, opt := range opts {
		opt(&p)
	}
	f.svc = New(p).(*Service)

	ctx := context.Background()
	f.general, err = catalog.CreateTicketType(ctx, catalogdomain.CreateTicketTypeRequest{Name: "General", Price: 30000})
	require.NoError(t, err)
	f.vip, err = catalog.CreateTicketType(ctx, catalogdomain.CreateTicketTypeRequest{Name: "VIP", Price: 100000})
	require.NoError(t, err)
	return f
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) line(tt catalogdomain.TicketType, qty int) catalogdomain.LineRequest {
	return catalogdomain.LineRequest{TicketTypeID: tt.ID.String(), Quantity: qty}
}

func (f *fixture) checkout(t *testing.T, email string, promo string, lines ...catalogdomain.LineRequest) domain.Order {
	t.Helper()
	res, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		Customer:  domain.Customer{Name: "Ion Popescu", Email: email},
		Lines:     lines,
		PromoCode: promo,
		Language:  "ro",
	})
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) pay(t *testing.T, o domain.Order) domain.Order {
	t.Helper()
	outcome, err := f.svc.HandleGatewayCallback(context.Background(), domain.CallbackRequest{
		TransactionID:  "tx-" + o.OrderNumber,
		OrderReference: o.OrderNumber,
		Result:         domain.CallbackOK,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomePaid, outcome)
	paid, err := f.svc.Get(context.Background(), o.ID.String())
	require.NoError(t, err)
	return paid
}

var errSMTP = errors.New("smtp unavailable")
