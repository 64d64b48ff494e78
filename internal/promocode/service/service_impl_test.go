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
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/internal/promocode/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	svc     domain.Service
	repo    domain.Repository
	catalog catalogdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	catalog := catalogservice.New(catalogservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
		Config: config.Config{Currency: "MDL"}, Repo: catalogrepo.Provide(),
	})
	repo := repository.Provide()
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repo, Catalog: catalog})
	return fixture{db: db, clock: clk, svc: svc, repo: repo, catalog: catalog}
}

func ptr[T any](v T) *T { return &v }

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"bad code", domain.CreateRequest{Code: "a!", DiscountPercent: ptr(10)}, domain.ErrInvalidCode},
		{"both discounts", domain.CreateRequest{Code: "BOTH", DiscountPercent: ptr(10), DiscountAmount: ptr(int64(100))}, domain.ErrInvalidDiscount},
		{"no discount", domain.CreateRequest{Code: "NONE"}, domain.ErrInvalidDiscount},
		{"percent range", domain.CreateRequest{Code: "BIG", DiscountPercent: ptr(101)}, domain.ErrInvalidDiscount},
		{"negative limit", domain.CreateRequest{Code: "NEG", DiscountPercent: ptr(5), UsageLimit: ptr(-1)}, domain.ErrInvalidUsageLimit},
		{"window", domain.CreateRequest{Code: "WIN", DiscountPercent: ptr(5),
			ValidFrom: ptr(f.clock.Now()), ValidUntil: ptr(f.clock.Now().Add(-time.Hour))}, domain.ErrInvalidWindow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, domain.CreateRequest{Code: " wolf10 ", DiscountPercent: ptr(10), AllowedTicketTypeIDs: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "WOLF10", p.Code)

	stored, err := f.svc.Get(ctx, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, []int64(stored.AllowedTicketTypeIDs))

	_, err = f.svc.Create(ctx, domain.CreateRequest{Code: "WOLF10", DiscountPercent: ptr(20)})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pass, err := f.catalog.CreateTicketType(ctx, catalogdomain.CreateTicketTypeRequest{Name: "Festival Pass", Price: 100000})
	require.NoError(t, err)
	lines := []catalogdomain.LineRequest{{TicketTypeID: pass.ID.String(), Quantity: 1}}

	_, err = f.svc.Create(ctx, domain.CreateRequest{
		Code:            "WOLF10",
		DiscountPercent: ptr(10),
		ValidFrom:       ptr(f.clock.Now().Add(-time.Hour)),
		ValidUntil:      ptr(f.clock.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	quote, err := f.svc.Check(ctx, domain.CheckRequest{Code: "wolf10", Email: "a@example.md", Lines: lines})
	require.NoError(t, err)
	assert.False(t, quote.Rejected())
	assert.Equal(t, int64(10000), quote.DiscountAmount)
	assert.Equal(t, int64(90000), quote.FinalAmount)

	f.clock.Advance(2 * time.Hour)
	quote, err = f.svc.Check(ctx, domain.CheckRequest{Code: "WOLF10", Email: "a@example.md", Lines: lines})
	require.NoError(t, err)
	assert.Equal(t, discount.ReasonExpired, quote.Rejection)
	assert.Equal(t, quote.Subtotal, quote.FinalAmount)

	quote, err = f.svc.Check(ctx, domain.CheckRequest{Code: "NOPE", Lines: lines})
	require.NoError(t, err)
	assert.Equal(t, discount.ReasonNotFound, quote.Rejection)

	// Check never consumes a use.
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "promo_codes", "used_count > 0"))
}

func TestRedeemRespectsUsageLimitUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	p, err := f.svc.Create(ctx, domain.CreateRequest{Code: "LIMITED", DiscountPercent: ptr(5), UsageLimit: ptr(n - 1)})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.repo.Redeem(ctx, f.db, p.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n-1, successes)
	stored, err := f.svc.Get(ctx, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, n-1, stored.UsedCount)
}

func TestUpdateAndDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, domain.CreateRequest{Code: "SUMMER", DiscountAmount: ptr(int64(5000)), UsageLimit: ptr(10)})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, domain.UpdateRequest{ID: p.ID.String(), ClearUsageLimit: true, Description: ptr("summer sale")})
	require.NoError(t, err)
	assert.Nil(t, updated.UsageLimit)
	assert.Equal(t, "summer sale", updated.Description)

	require.NoError(t, f.svc.Deactivate(ctx, p.ID.String()))
	ok, err := f.repo.Redeem(ctx, f.db, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := f.svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.svc.Update(ctx, domain.UpdateRequest{ID: "999"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
