package domain

import (
	"context"
	"errors"
	"time"
)

const MaxLineQuantity = 1000

type CreateTicketTypeRequest struct {
	Name         string
	Description  string
	Price        int64
	SalesStartAt *time.Time
	SalesEndAt   *time.Time
}

type CreateOptionRequest struct {
	TicketTypeID  string
	Name          string
	PriceModifier int64
}

// LineRequest is a cart line as submitted by a customer or operator.
type LineRequest struct {
	TicketTypeID   string
	TicketOptionID string
	Quantity       int
}

type ResolveOptions struct {
	// IgnoreSalesWindow lets operators issue invitations outside the sales period.
	IgnoreSalesWindow bool
}

type Service interface {
	CreateTicketType(context.Context, CreateTicketTypeRequest) (TicketType, error)
	AddOption(context.Context, CreateOptionRequest) (TicketOption, error)
	SetTicketTypeActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context, activeOnly bool) ([]TicketType, error)
	Resolve(ctx context.Context, lines []LineRequest, opts ResolveOptions) ([]PricedLine, error)
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidSalesWindow  = errors.New("invalid_sales_window")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("ticket_type_not_found")
	ErrEmptyCart           = errors.New("empty_cart")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrUnknownTicketType   = errors.New("unknown_ticket_type")
	ErrUnknownTicketOption = errors.New("unknown_ticket_option")
	ErrTicketTypeInactive  = errors.New("ticket_type_inactive")
	ErrTicketTypeNotOnSale = errors.New("ticket_type_not_on_sale")
	ErrOptionMismatch      = errors.New("option_mismatch")
)
