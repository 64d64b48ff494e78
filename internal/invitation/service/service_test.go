package service

import (
	"context"
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
	"github.com/smallbiznis/boxoffice/internal/invitation/domain"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/order/repository"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []orderdomain.Order
}

func (n *captureNotifier) SendConfirmation(_ context.Context, o orderdomain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, o)
	return nil
}

func (n *captureNotifier) SendReminder(context.Context, orderdomain.Order, bool) error { return nil }

func (n *captureNotifier) RenderTickets(context.Context, orderdomain.Order) ([]byte, error) {
	return nil, nil
}

type capturePublisher struct{ got []events.Event }

func (p *capturePublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.got = append(p.got, evs...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestIssueInvitation(t *testing.T) {
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	cfg := config.Config{Currency: "MDL"}
	ctx := context.Background()

	catalog := catalogservice.New(catalogservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Config: cfg, Repo: catalogrepo.Provide(),
	})
	closed := clk.Now().Add(-time.Hour)
	vip, err := catalog.CreateTicketType(ctx, catalogdomain.CreateTicketTypeRequest{
		Name: "VIP", Price: 100000, SalesEndAt: &closed,
	})
	require.NoError(t, err)

	repo := repository.Provide()
	notifier := &captureNotifier{}
	pub := &capturePublisher{}
	svc := New(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Config: cfg,
		Repo: repo, Catalog: catalog,
		Issuer:   ticketcode.NewIssuer(repo, ticketcode.NewGenerator(), node, zap.NewNop()),
		Notifier: notifier, Events: pub,
	})

	o, err := svc.Issue(ctx, domain.IssueRequest{
		Customer: orderdomain.Customer{Name: "Press Desk", Email: "Press@Example.com"},
		Lines:    []catalogdomain.LineRequest{{TicketTypeID: vip.ID.String(), Quantity: 3}},
		Language: "en",
		Note:     "media partner",
		Operator: "op-1",
	})
	require.NoError(t, err)

	assert.True(t, o.IsInvitation)
	assert.Equal(t, orderdomain.ChannelInvitation, o.Channel)
	assert.Equal(t, orderdomain.StatusPaid, o.Status)
	assert.Equal(t, orderdomain.PaymentOK, o.PaymentStatus)
	assert.Zero(t, o.TotalAmount)
	assert.Zero(t, o.DiscountAmount)
	assert.Zero(t, o.FinalAmount)
	assert.Equal(t, "none", o.DiscountKind)
	assert.Equal(t, "press@example.com", o.CustomerEmail)
	require.NotNil(t, o.Note)
	assert.Equal(t, "media partner", *o.Note)
	require.Len(t, o.Items, 3)
	for _, item := range o.Items {
		assert.Zero(t, item.UnitPrice)
		assert.True(t, ticketcode.Valid(item.TicketCode))
	}
	assert.Equal(t, int64(3), dbtest.Count(t, db, "order_items", "order_id = ?", o.ID))
	assert.Equal(t, int64(0), dbtest.Count(t, db, "promo_codes", ""))

	require.Len(t, notifier.sent, 1)
	require.Len(t, pub.got, 1)
	assert.Equal(t, events.OrderInvitationIssued, pub.got[0].Type)
	assert.True(t, pub.got[0].IsInvitation)

	summary, err := repo.RevenueSummary(ctx, db, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.OrderCount)
	assert.Zero(t, summary.TicketCount)

	stored, err := repo.FindByID(ctx, db, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotNil(t, stored.ConfirmationSentAt)
	assert.Equal(t, orderdomain.SweepNone, orderdomain.NextSweepAction(*stored, config.DefaultPricingConfig().Reminders, clk.Now().Add(72*time.Hour)))
}

func TestIssueInvitationValidation(t *testing.T) {
	svc := &Service{}
	ctx := context.Background()
	base := domain.IssueRequest{
		Customer: orderdomain.Customer{Name: "Guest", Email: "guest@example.com"},
		Operator: "op-1",
	}

	req := base
	req.Customer.Name = " "
	_, err := svc.Issue(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidName)

	req = base
	req.Customer.Email = "nope"
	_, err = svc.Issue(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidEmail)

	req = base
	req.Language = "de"
	_, err = svc.Issue(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidLanguage)

	req = base
	req.Operator = ""
	_, err = svc.Issue(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidOperator)
}
