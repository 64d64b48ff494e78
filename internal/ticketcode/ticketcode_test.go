package ticketcode

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestGenerateFormat(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9A-HJKMNP-TV-Z]{4}-[0-9A-HJKMNP-TV-Z]{4}-[0-9A-HJKMNP-TV-Z]{4}$`, code)
		assert.True(t, Valid(code))
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 500)
}

func TestGenerateDeterministicSource(t *testing.T) {
	g := &RandomGenerator{src: bytes.NewReader(make([]byte, codeLength))}
	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "0000-0000-0000", code)

	_, err = g.Generate()
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "0A1B-2C3D-4E5F", Normalize("oa1b 2c3d-4e5f"))
	assert.Equal(t, "1111-0000-ABCD", Normalize("ilI1-OOoo-abcd"))
	assert.False(t, Valid(Normalize("short")))
	assert.False(t, Valid("UUUU-0000-0000"))
}

type fakeStore struct {
	taken map[string]bool
	items []domain.OrderItem
	err   error
}

func (f *fakeStore) InsertItem(_ context.Context, _ *gorm.DB, item *domain.OrderItem) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.taken[item.TicketCode] {
		return false, nil
	}
	f.taken[item.TicketCode] = true
	f.items = append(f.items, *item)
	return true, nil
}

type seqGenerator struct {
	codes []string
	i     int
}

func (s *seqGenerator) Generate() (string, error) {
	code := s.codes[s.i%len(s.codes)]
	s.i++
	return code, nil
}

func newIssuer(t *testing.T, store ItemStore, gen Generator) *Issuer {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewIssuer(store, gen, node, zap.NewNop())
}

func TestIssueFansOutLines(t *testing.T) {
	store := &fakeStore{taken: map[string]bool{}}
	issuer := newIssuer(t, store, NewGenerator())

	order := domain.Order{ID: 10, Lines: []domain.OrderLine{{ID: 1, Quantity: 2}, {ID: 2, Quantity: 3}}}
	items, err := issuer.Issue(context.Background(), nil, order, order.Lines, time.Now())
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Len(t, store.items, 5)

	perLine := map[snowflake.ID]int{}
	for _, it := range items {
		assert.Equal(t, domain.ItemValid, it.Status)
		assert.Equal(t, snowflake.ID(10), it.OrderID)
		perLine[it.OrderLineID]++
	}
	assert.Equal(t, 2, perLine[1])
	assert.Equal(t, 3, perLine[2])
}

func TestIssueRetriesCollisions(t *testing.T) {
	store := &fakeStore{taken: map[string]bool{"AAAA-AAAA-AAAA": true}}
	gen := &seqGenerator{codes: []string{"AAAA-AAAA-AAAA", "AAAA-AAAA-AAAA", "BBBB-BBBB-BBBB"}}
	issuer := newIssuer(t, store, gen)

	order := domain.Order{ID: 1}
	items, err := issuer.Issue(context.Background(), nil, order, []domain.OrderLine{{ID: 1, Quantity: 1}}, time.Now())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BBBB-BBBB-BBBB", items[0].TicketCode)
	assert.Equal(t, 3, gen.i)
}

func TestIssueExhausted(t *testing.T) {
	store := &fakeStore{taken: map[string]bool{"AAAA-AAAA-AAAA": true}}
	gen := &seqGenerator{codes: []string{"AAAA-AAAA-AAAA"}}
	issuer := newIssuer(t, store, gen).WithMaxAttempts(3)

	_, err := issuer.Issue(context.Background(), nil, domain.Order{ID: 1}, []domain.OrderLine{{ID: 1, Quantity: 1}}, time.Now())
	assert.ErrorIs(t, err, ErrIssuanceExhausted)
	assert.Equal(t, 3, gen.i)
}

func TestIssueStoreError(t *testing.T) {
	boom := errors.New("boom")
	issuer := newIssuer(t, &fakeStore{err: boom}, NewGenerator())

	_, err := issuer.Issue(context.Background(), nil, domain.Order{ID: 1}, []domain.OrderLine{{ID: 1, Quantity: 1}}, time.Now())
	assert.ErrorIs(t, err, boom)
}
