package ticketcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultMaxAttempts = 5

var ErrIssuanceExhausted = errors.New("ticket_code_issuance_exhausted")

// ItemStore persists one order item, reporting false on a code collision.
type ItemStore interface {
	InsertItem(ctx context.Context, db *gorm.DB, item *domain.OrderItem) (bool, error)
}

type Issuer struct {
	store       ItemStore
	gen         Generator
	genID       *snowflake.Node
	log         *zap.Logger
	maxAttempts int
}

func NewIssuer(store ItemStore, gen Generator, genID *snowflake.Node, log *zap.Logger) *Issuer {
	return &Issuer{
		store:       store,
		gen:         gen,
		genID:       genID,
		log:         log.Named("ticketcode.issuer"),
		maxAttempts: DefaultMaxAttempts,
	}
}

func (i *Issuer) WithMaxAttempts(n int) *Issuer {
	if n > 0 {
		i.maxAttempts = n
	}
	return i
}

// Issue fans every line out into one item per unit. It must run inside the
// transaction that moves the order to paid so a failure rolls back both.
func (i *Issuer) Issue(ctx context.Context, tx *gorm.DB, order domain.Order, lines []domain.OrderLine, now time.Time) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, order.TicketCount())
	for _, line := range lines {
		for unit := 0; unit < line.Quantity; unit++ {
			item := domain.OrderItem{
				ID:             i.genID.Generate(),
				OrderID:        order.ID,
				OrderLineID:    line.ID,
				TicketTypeID:   line.TicketTypeID,
				TicketOptionID: line.TicketOptionID,
				UnitPrice:      line.UnitPrice,
				Status:         domain.ItemValid,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := i.insertUnique(ctx, tx, &item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (i *Issuer) insertUnique(ctx context.Context, tx *gorm.DB, item *domain.OrderItem) error {
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		code, err := i.gen.Generate()
		if err != nil {
			return err
		}
		item.TicketCode = code

		inserted, err := i.store.InsertItem(ctx, tx, item)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		if inserted {
			return nil
		}
		i.log.Warn("ticket code collision",
			zap.String("order_id", item.OrderID.String()),
			zap.Int("attempt", attempt),
		)
	}
	return ErrIssuanceExhausted
}
