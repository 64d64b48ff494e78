package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TicketType struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug         string       `gorm:"column:slug" json:"slug"`
	Name         string       `gorm:"column:name" json:"name"`
	Description  string       `gorm:"column:description" json:"description,omitempty"`
	Price        int64        `gorm:"column:price" json:"price"`
	Currency     string       `gorm:"column:currency" json:"currency"`
	IsActive     bool         `gorm:"column:is_active" json:"is_active"`
	SalesStartAt *time.Time   `gorm:"column:sales_start_at" json:"sales_start_at,omitempty"`
	SalesEndAt   *time.Time   `gorm:"column:sales_end_at" json:"sales_end_at,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at" json:"updated_at"`

	Options []TicketOption `gorm:"-" json:"options,omitempty"`
}

func (TicketType) TableName() string { return "ticket_types" }

// OnSale reports whether the type can be bought at now.
func (t TicketType) OnSale(now time.Time) bool {
	if t.SalesStartAt != nil && now.Before(*t.SalesStartAt) {
		return false
	}
	if t.SalesEndAt != nil && now.After(*t.SalesEndAt) {
		return false
	}
	return true
}

// TicketOption is a variant of a ticket type, e.g. camping or VIP parking,
// that shifts the unit price by PriceModifier (which may be negative).
type TicketOption struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TicketTypeID  snowflake.ID `gorm:"column:ticket_type_id" json:"ticket_type_id"`
	Name          string       `gorm:"column:name" json:"name"`
	PriceModifier int64        `gorm:"column:price_modifier" json:"price_modifier"`
	IsActive      bool         `gorm:"column:is_active" json:"is_active"`
	CreatedAt     time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (TicketOption) TableName() string { return "ticket_options" }

// PricedLine is a cart line with its unit price fixed from the catalog.
type PricedLine struct {
	TicketTypeID   snowflake.ID
	TicketOptionID *snowflake.ID
	TicketTypeName string
	OptionName     string
	Quantity       int
	UnitPrice      int64
}
