package service

import (
	"context"
	"strings"
	"testing"

	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.pay(t, f.checkout(t, "ion@example.com", "", f.line(f.general, 2)))
	code := paid.Items[0].TicketCode

	item, err := f.svc.RedeemTicket(ctx, strings.ToLower(code))
	require.NoError(t, err)
	assert.Equal(t, domain.ItemUsed, item.Status)
	require.NotNil(t, item.ScannedAt)
	assert.True(t, f.clock.Now().Equal(*item.ScannedAt))

	f.clock.Advance(1)
	_, err = f.svc.RedeemTicket(ctx, code)
	var used *domain.TicketUsedError
	require.ErrorAs(t, err, &used)
	assert.True(t, item.ScannedAt.Equal(used.ScannedAt))

	_, err = f.svc.RedeemTicket(ctx, "0000-0000-0000")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
	_, err = f.svc.RedeemTicket(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	_, err = f.svc.Refund(ctx, domain.RefundRequest{OrderID: paid.ID.String(), Reason: "duplicate", Operator: "op"})
	require.NoError(t, err)
	_, err = f.svc.RedeemTicket(ctx, paid.Items[1].TicketCode)
	assert.ErrorIs(t, err, domain.ErrTicketRefunded)
}

func TestDownloadAndResendTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))

	_, err := f.svc.DownloadTickets(ctx, o.OrderNumber)
	assert.ErrorIs(t, err, domain.ErrTicketsUnavailable)
	assert.ErrorIs(t, f.svc.ResendTickets(ctx, o.ID.String()), domain.ErrTicketsUnavailable)
	_, err = f.svc.DownloadTickets(ctx, "BO-000000-NONE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.pay(t, o)
	doc, err := f.svc.DownloadTickets(ctx, strings.ToLower(o.OrderNumber))
	require.NoError(t, err)
	assert.Equal(t, "tickets-"+o.OrderNumber+".pdf", doc.Filename)
	assert.Contains(t, string(doc.Content), o.OrderNumber)

	require.NoError(t, f.svc.ResendTickets(ctx, o.ID.String()))
	assert.Len(t, f.notifier.confirmations, 2)

	f.notifier.confirmErr = errSMTP
	assert.ErrorIs(t, f.svc.ResendTickets(ctx, o.ID.String()), domain.ErrEmailDelivery)
}

func TestUpdateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, "ion@example.com", "", f.line(f.general, 1))

	_, err := f.svc.UpdateEmail(ctx, domain.UpdateEmailRequest{OrderID: o.ID.String(), Email: "bad"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	updated, err := f.svc.UpdateEmail(ctx, domain.UpdateEmailRequest{OrderID: o.ID.String(), Email: "New@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.CustomerEmail)
	assert.Equal(t, domain.StatusPending, updated.Status)

	got, err := f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.CustomerEmail)
	assert.Equal(t, o.Version, got.Version)
}

func TestListAndRevenueSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.pay(t, f.checkout(t, "a@example.com", "", f.line(f.general, 2)))
	f.pay(t, f.checkout(t, "b@example.com", "", f.line(f.vip, 1)))
	f.checkout(t, "c@example.com", "", f.line(f.general, 5))

	summary, err := f.svc.RevenueSummary(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "MDL", summary.Currency)
	assert.Equal(t, int64(2), summary.OrderCount)
	assert.Equal(t, int64(3), summary.TicketCount)
	assert.Equal(t, int64(160000), summary.GrossAmount)
	assert.Equal(t, int64(160000), summary.NetAmount)

	page, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.True(t, page.PageInfo.HasMore)

	rest, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.False(t, rest.PageInfo.HasMore)
	assert.Equal(t, a.ID, rest.Orders[0].ID)

	paidOnly, err := f.svc.List(ctx, domain.ListRequest{Filter: domain.ListFilter{Status: domain.StatusPaid}})
	require.NoError(t, err)
	assert.Len(t, paidOnly.Orders, 2)
}
