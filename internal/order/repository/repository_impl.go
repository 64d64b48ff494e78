package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, order_number, channel, is_invitation, customer_name, customer_email,
	customer_phone, language, client_ip, currency, total_amount, discount_amount, final_amount,
	discount_kind, discount_percent, promo_code, promo_code_id, status, payment_status,
	gateway_transaction_id, payment_url, failure_reason, attention_reason, refund_reason,
	refunded_by, refund_reference, note, reminder_count, reminder_sent_at, paid_at, refunded_at,
	cancelled_at, expired_at, confirmation_sent_at, version, created_at, updated_at`

const lineColumns = `id, order_id, ticket_type_id, ticket_option_id, ticket_type_name, option_name,
	quantity, unit_price, created_at`

const itemColumns = `id, order_id, order_line_id, ticket_type_id, ticket_option_id, unit_price,
	ticket_code, status, scanned_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderNumber, o.Channel, o.IsInvitation, o.CustomerName, o.CustomerEmail,
		o.CustomerPhone, o.Language, o.ClientIP, o.Currency, o.TotalAmount, o.DiscountAmount, o.FinalAmount,
		o.DiscountKind, o.DiscountPercent, o.PromoCode, o.PromoCodeID, o.Status, o.PaymentStatus,
		o.GatewayTransactionID, o.PaymentURL, o.FailureReason, o.AttentionReason, o.RefundReason,
		o.RefundedBy, o.RefundReference, o.Note, o.ReminderCount, o.ReminderSentAt, o.PaidAt, o.RefundedAt,
		o.CancelledAt, o.ExpiredAt, o.ConfirmationSentAt, o.Version, o.CreatedAt, o.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.OrderLine) error {
	for _, l := range lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_lines (`+lineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.OrderID, l.TicketTypeID, l.TicketOptionID, l.TicketTypeName, l.OptionName,
			l.Quantity, l.UnitPrice, l.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.OrderItem) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ticket_code"}}, DoNothing: true}).
		Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error) {
	return r.findOne(ctx, db, `order_number = ?`, domain.NormalizeOrderNumber(number))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Raw(`SELECT `+orderColumns+` FROM orders WHERE `+where, arg).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

// LockByID reads the order with SELECT ... FOR UPDATE. Dialects without row
// locks drop the clause.
func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderLine, error) {
	var out []domain.OrderLine
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+` FROM order_lines WHERE order_id = ? ORDER BY id`, orderID,
	).Scan(&out).Error
	return out, err
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var out []domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ? ORDER BY order_line_id, id`, orderID,
	).Scan(&out).Error
	return out, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.Order, error) {
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, filter.Channel)
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		where = append(where, "lower(customer_email) = ?")
		args = append(args, strings.ToLower(email))
	}
	if filter.IsInvitation != nil {
		where = append(where, "is_invitation = ?")
		args = append(args, *filter.IsInvitation)
	}
	if filter.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		where = append(where, "created_at < ?")
		args = append(args, *filter.CreatedTo)
	}
	// Snowflake ids grow with creation time, so id alone is a stable keyset.
	if cursor != nil {
		where = append(where, "id < ?")
		args = append(args, cursor.ID)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, page.Limit()+1)

	var out []domain.Order
	err = db.WithContext(ctx).Raw(query, args...).Scan(&out).Error
	return out, err
}

func (r *repo) UpdateTransition(ctx context.Context, db *gorm.DB, t domain.Transition) (bool, error) {
	o := t.Order
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, payment_status = ?, gateway_transaction_id = ?, failure_reason = ?,
		     refund_reason = ?, refunded_by = ?, refund_reference = ?,
		     paid_at = ?, refunded_at = ?, cancelled_at = ?, expired_at = ?,
		     updated_at = ?, version = version + 1
		 WHERE id = ? AND status = ? AND version = ?`,
		o.Status, o.PaymentStatus, o.GatewayTransactionID, o.FailureReason,
		o.RefundReason, o.RefundedBy, o.RefundReference,
		o.PaidAt, o.RefundedAt, o.CancelledAt, o.ExpiredAt,
		o.UpdatedAt,
		t.OrderID, t.From, t.Version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdateReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, version, count int, sentAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET reminder_count = ?, reminder_sent_at = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND status = 'pending' AND version = ?`,
		count, sentAt, sentAt, id, version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetItemsStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status domain.ItemStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_items SET status = ?, updated_at = ? WHERE order_id = ?`,
		status, now, orderID,
	).Error
}

func (r *repo) UpdateEmail(ctx context.Context, db *gorm.DB, id snowflake.ID, email string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET customer_email = ?, updated_at = ? WHERE id = ?`, email, now, id,
	).Error
}

func (r *repo) SetAttention(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET attention_reason = ?, updated_at = ? WHERE id = ?`, reason, now, id,
	).Error
}

func (r *repo) SetPaymentURL(ctx context.Context, db *gorm.DB, id snowflake.ID, url string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET payment_url = ?, updated_at = ? WHERE id = ?`, url, now, id,
	).Error
}

func (r *repo) MarkConfirmationSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET confirmation_sent_at = ?, updated_at = ? WHERE id = ?`, now, now, id,
	).Error
}

func (r *repo) FindItemByCode(ctx context.Context, db *gorm.DB, code string, lock bool) (*domain.OrderItem, error) {
	var item domain.OrderItem
	q := db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("ticket_code = ?", code).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) MarkItemUsed(ctx context.Context, db *gorm.DB, itemID snowflake.ID, scannedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE order_items SET status = 'used', scanned_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'valid'`,
		scannedAt, scannedAt, itemID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListPendingForSweep(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'pending' AND is_invitation = FALSE AND attention_reason IS NULL
		   AND created_at <= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		cutoff, afterID, limit,
	).Scan(&out).Error
	return out, err
}

func (r *repo) ListUnconfirmedPaid(ctx context.Context, db *gorm.DB, from, to time.Time, afterID snowflake.ID, limit int) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'paid' AND confirmation_sent_at IS NULL
		   AND paid_at >= ? AND paid_at <= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		from, to, afterID, limit,
	).Scan(&out).Error
	return out, err
}

func (r *repo) RevenueSummary(ctx context.Context, db *gorm.DB, from, to *time.Time) (domain.RevenueSummary, error) {
	where := `o.is_invitation = FALSE AND o.status = 'paid'`
	var args []any
	if from != nil {
		where += ` AND o.paid_at >= ?`
		args = append(args, *from)
	}
	if to != nil {
		where += ` AND o.paid_at < ?`
		args = append(args, *to)
	}

	var row struct {
		OrderCount     int64
		GrossAmount    int64
		DiscountAmount int64
		NetAmount      int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS order_count,
		        COALESCE(SUM(o.total_amount), 0) AS gross_amount,
		        COALESCE(SUM(o.discount_amount), 0) AS discount_amount,
		        COALESCE(SUM(o.final_amount), 0) AS net_amount
		 FROM orders o WHERE `+where, args...,
	).Scan(&row).Error
	if err != nil {
		return domain.RevenueSummary{}, err
	}

	var tickets int64
	err = db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(l.quantity), 0)
		 FROM order_lines l JOIN orders o ON o.id = l.order_id
		 WHERE `+where, args...,
	).Scan(&tickets).Error
	if err != nil {
		return domain.RevenueSummary{}, err
	}

	return domain.RevenueSummary{
		OrderCount:     row.OrderCount,
		TicketCount:    tickets,
		GrossAmount:    row.GrossAmount,
		DiscountAmount: row.DiscountAmount,
		NetAmount:      row.NetAmount,
	}, nil
}

// InsertCallback reports false when the (provider, transaction_id, result)
// triple was already journaled.
func (r *repo) InsertCallback(ctx context.Context, db *gorm.DB, cb *domain.GatewayCallback) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "transaction_id"}, {Name: "result"}},
			DoNothing: true,
		}).
		Create(cb)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkCallbackProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateway_callbacks SET outcome = ?, processed_at = ? WHERE id = ?`, outcome, now, id,
	).Error
}
