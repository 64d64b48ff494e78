package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/dbtest"
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderWithPercentPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.promo.Create(ctx, promodomain.CreateRequest{Code: "WOLF10", DiscountPercent: ptr(10)})
	require.NoError(t, err)

	// 1000.00 MDL cart
	res, err := f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		Customer:  domain.Customer{Name: "Ion", Email: "Ion@Example.com"},
		Lines:     []catalogdomain.LineRequest{f.line(f.vip, 1)},
		PromoCode: "wolf10",
		Language:  "en",
	})
	require.NoError(t, err)

	o := res.Order
	assert.False(t, res.PaymentPending)
	assert.Equal(t, int64(100000), o.TotalAmount)
	assert.Equal(t, int64(10000), o.DiscountAmount)
	assert.Equal(t, int64(90000), o.FinalAmount)
	assert.Equal(t, string(discount.KindPromoPercent), o.DiscountKind)
	require.NotNil(t, o.PromoCode)
	assert.Equal(t, "WOLF10", *o.PromoCode)
	assert.Equal(t, "ion@example.com", o.CustomerEmail)
	assert.Equal(t, domain.StatusPending, o.Status)
	require.NotNil(t, o.PaymentURL)
	assert.Regexp(t, `^BO-260701-[0-9A-Z]+$`, o.OrderNumber)

	stored, err := f.svc.Get(ctx, o.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, *o.PaymentURL, *stored.PaymentURL)
	assert.Empty(t, stored.Items)

	p, err := f.promo.List(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, p[0].UsedCount)
	assert.Equal(t, []events.Type{events.OrderCreated}, f.events.types())
}

func TestCreateOrderB2BTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 120 x 300.00 MDL
	res, err := f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		Customer: domain.Customer{Name: "Acme SRL", Email: "events@acme.md"},
		Lines:    []catalogdomain.LineRequest{f.line(f.general, 120)},
		Channel:  domain.ChannelB2B,
	})
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, domain.ChannelB2B, o.Channel)
	assert.Equal(t, int64(3600000), o.TotalAmount)
	require.NotNil(t, o.DiscountPercent)
	assert.Equal(t, 12, *o.DiscountPercent)
	assert.Equal(t, int64(432000), o.DiscountAmount)
	assert.Equal(t, int64(3168000), o.FinalAmount)
	assert.Equal(t, string(discount.KindTier), o.DiscountKind)

	_, err = f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		Customer: domain.Customer{Name: "Acme SRL", Email: "events@acme.md"},
		Lines:    []catalogdomain.LineRequest{f.line(f.general, 49)},
		Channel:  domain.ChannelB2B,
	})
	assert.ErrorIs(t, err, domain.ErrBelowTierMinimum)

	_, err = f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		Customer:  domain.Customer{Name: "Acme SRL", Email: "events@acme.md"},
		Lines:     []catalogdomain.LineRequest{f.line(f.general, 60)},
		Channel:   domain.ChannelB2B,
		PromoCode: "WOLF10",
	})
	assert.ErrorIs(t, err, domain.ErrPromoNotApplicable)
}

func TestCreateOrderRejectedPromoPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.promo.Create(ctx, promodomain.CreateRequest{
		Code:            "SPRING",
		DiscountPercent: ptr(15),
		ValidUntil:      ptr(f.clock.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		Customer:  domain.Customer{Name: "Ion", Email: "ion@example.com"},
		Lines:     []catalogdomain.LineRequest{f.line(f.general, 2)},
		PromoCode: "SPRING",
	})
	var rejected *domain.PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, discount.ReasonExpired, rejected.Reason)
	assert.Zero(t, dbtest.Count(t, f.db, "orders", ""))
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateOrderRequest
		want error
	}{
		{"name", domain.CreateOrderRequest{Customer: domain.Customer{Email: "a@b.md"}, Lines: []catalogdomain.LineRequest{f.line(f.general, 1)}}, domain.ErrInvalidName},
		{"email", domain.CreateOrderRequest{Customer: domain.Customer{Name: "A", Email: "nope"}, Lines: []catalogdomain.LineRequest{f.line(f.general, 1)}}, domain.ErrInvalidEmail},
		{"language", domain.CreateOrderRequest{Customer: domain.Customer{Name: "A", Email: "a@b.md"}, Language: "de", Lines: []catalogdomain.LineRequest{f.line(f.general, 1)}}, domain.ErrInvalidLanguage},
		{"channel", domain.CreateOrderRequest{Customer: domain.Customer{Name: "A", Email: "a@b.md"}, Channel: domain.ChannelInvitation, Lines: []catalogdomain.LineRequest{f.line(f.general, 1)}}, domain.ErrInvalidChannel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateOrderGatewayDownLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = gateway.ErrUnavailable

	res, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		Customer: domain.Customer{Name: "Ion", Email: "ion@example.com"},
		Lines:    []catalogdomain.LineRequest{f.line(f.general, 1)},
	})
	require.NoError(t, err)
	assert.True(t, res.PaymentPending)
	assert.Nil(t, res.Order.PaymentURL)
	assert.Equal(t, domain.StatusPending, res.Order.Status)
	assert.Equal(t, 1, f.gateway.calls)
}

func TestConcurrentPromoRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 6
	_, err := f.promo.Create(ctx, promodomain.CreateRequest{Code: "LIMITED", DiscountPercent: ptr(20), UsageLimit: ptr(n - 1)})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
				Customer:  domain.Customer{Name: "Buyer", Email: "buyer" + string(rune('a'+i)) + "@example.com"},
				Lines:     []catalogdomain.LineRequest{f.line(f.general, 1)},
				PromoCode: "LIMITED",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n-1, successes)
	require.Len(t, failures, 1)
	var rejected *domain.PromoRejectedError
	if errors.As(failures[0], &rejected) {
		assert.Equal(t, discount.ReasonUsageExhausted, rejected.Reason)
	} else {
		assert.ErrorIs(t, failures[0], domain.ErrUsageExhausted)
	}
	assert.Equal(t, int64(n-1), dbtest.Count(t, f.db, "orders", "promo_code = ?", "LIMITED"))
}

func TestOnePerEmailPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.promo.Create(ctx, promodomain.CreateRequest{Code: "ONCE", DiscountAmount: ptr(int64(5000)), OnePerEmail: true})
	require.NoError(t, err)

	first := f.checkout(t, "ion@example.com", "ONCE", f.line(f.general, 1))
	assert.Equal(t, int64(25000), first.FinalAmount)

	_, err = f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		Customer:  domain.Customer{Name: "Ion", Email: "ION@example.com"},
		Lines:     []catalogdomain.LineRequest{f.line(f.general, 1)},
		PromoCode: "ONCE",
	})
	var rejected *domain.PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, discount.ReasonAlreadyUsedByEmail, rejected.Reason)

	// a cancelled order no longer counts
	_, err = f.svc.Cancel(ctx, domain.CancelRequest{OrderNumber: first.OrderNumber, Email: "ion@example.com"})
	require.NoError(t, err)
	f.checkout(t, "ion@example.com", "ONCE", f.line(f.general, 1))
}
