// Package dbtest opens an isolated in-memory SQLite database carrying the
// same tables the postgres migrations create.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE ticket_types (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		sales_start_at DATETIME NULL,
		sales_end_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE ticket_options (
		id INTEGER PRIMARY KEY,
		ticket_type_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		price_modifier INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE promo_codes (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		discount_percent INTEGER NULL,
		discount_amount INTEGER NULL,
		usage_limit INTEGER NULL,
		used_count INTEGER NOT NULL DEFAULT 0,
		valid_from DATETIME NULL,
		valid_until DATETIME NULL,
		min_order_amount INTEGER NOT NULL DEFAULT 0,
		allowed_ticket_type_ids TEXT NULL,
		one_per_email BOOLEAN NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		channel TEXT NOT NULL,
		is_invitation BOOLEAN NOT NULL DEFAULT 0,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'ro',
		client_ip TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		total_amount INTEGER NOT NULL,
		discount_amount INTEGER NOT NULL DEFAULT 0,
		final_amount INTEGER NOT NULL,
		discount_kind TEXT NOT NULL DEFAULT 'none',
		discount_percent INTEGER NULL,
		promo_code TEXT NULL,
		promo_code_id INTEGER NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		gateway_transaction_id TEXT NULL,
		payment_url TEXT NULL,
		failure_reason TEXT NULL,
		attention_reason TEXT NULL,
		refund_reason TEXT NULL,
		refunded_by TEXT NULL,
		refund_reference TEXT NULL,
		note TEXT NULL,
		reminder_count INTEGER NOT NULL DEFAULT 0,
		reminder_sent_at DATETIME NULL,
		paid_at DATETIME NULL,
		refunded_at DATETIME NULL,
		cancelled_at DATETIME NULL,
		expired_at DATETIME NULL,
		confirmation_sent_at DATETIME NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (discount_amount >= 0 AND discount_amount <= total_amount),
		CHECK (final_amount >= 0),
		CHECK (reminder_count BETWEEN 0 AND 2)
	)`,
	`CREATE TABLE order_lines (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		ticket_type_id INTEGER NOT NULL,
		ticket_option_id INTEGER NULL,
		ticket_type_name TEXT NOT NULL,
		option_name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL,
		unit_price INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		order_line_id INTEGER NOT NULL,
		ticket_type_id INTEGER NOT NULL,
		ticket_option_id INTEGER NULL,
		unit_price INTEGER NOT NULL,
		ticket_code TEXT NOT NULL,
		status TEXT NOT NULL,
		scanned_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_order_items_ticket_code ON order_items(ticket_code)`,
	`CREATE TABLE gateway_callbacks (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		result TEXT NOT NULL,
		order_reference TEXT NOT NULL,
		payload TEXT NOT NULL,
		outcome TEXT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME NULL
	)`,
	`CREATE UNIQUE INDEX ux_gateway_callbacks_event ON gateway_callbacks(provider, transaction_id, result)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh database. The pool is pinned to a single connection
// so concurrent tests serialize on it the way row locks would in postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:boxoffice_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Count returns the number of rows matching where in table.
func Count(t testing.TB, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
