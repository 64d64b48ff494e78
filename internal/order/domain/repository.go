package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

// Transition is a compare-and-set status change. The row is updated only
// while it still carries From and Version.
type Transition struct {
	OrderID snowflake.ID
	From    Status
	Version int
	Order   *Order
}

type ListFilter struct {
	Status       Status
	Channel      Channel
	Email        string
	IsInvitation *bool
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, o *Order) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []OrderLine) error

	// InsertItem reports false when the ticket code is already taken.
	InsertItem(ctx context.Context, db *gorm.DB, item *OrderItem) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Order, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderLine, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Order, error)

	// UpdateTransition writes every mutable status column of t.Order and
	// bumps version. It reports false when the compare-and-set lost.
	UpdateTransition(ctx context.Context, db *gorm.DB, t Transition) (bool, error)
	UpdateReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, version, count int, sentAt time.Time) (bool, error)
	SetItemsStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status ItemStatus, now time.Time) error
	UpdateEmail(ctx context.Context, db *gorm.DB, id snowflake.ID, email string, now time.Time) error
	SetAttention(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error
	SetPaymentURL(ctx context.Context, db *gorm.DB, id snowflake.ID, url string, now time.Time) error
	MarkConfirmationSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error

	FindItemByCode(ctx context.Context, db *gorm.DB, code string, lock bool) (*OrderItem, error)
	MarkItemUsed(ctx context.Context, db *gorm.DB, itemID snowflake.ID, scannedAt time.Time) (bool, error)

	// ListPendingForSweep returns pending, non-invitation orders created
	// before cutoff and not flagged for attention, oldest first, starting
	// after the given id.
	ListPendingForSweep(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]Order, error)
	// ListUnconfirmedPaid returns paid orders whose confirmation email never
	// went out and that were paid inside [from, to].
	ListUnconfirmedPaid(ctx context.Context, db *gorm.DB, from, to time.Time, afterID snowflake.ID, limit int) ([]Order, error)
	RevenueSummary(ctx context.Context, db *gorm.DB, from, to *time.Time) (RevenueSummary, error)

	InsertCallback(ctx context.Context, db *gorm.DB, cb *GatewayCallback) (bool, error)
	MarkCallbackProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, now time.Time) error
}
