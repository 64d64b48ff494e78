package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
)

type Customer struct {
	Name  string
	Email string
	Phone string
}

type CreateOrderRequest struct {
	Customer  Customer
	Lines     []catalogdomain.LineRequest
	PromoCode string
	Language  string
	Channel   Channel
	ClientIP  string
}

type CreateOrderResult struct {
	Order Order
	// PaymentPending is set when no gateway session could be opened. The
	// order stays pending and the customer can retry from the reminder email.
	PaymentPending bool
}

type CallbackResult string

const (
	CallbackOK     CallbackResult = "ok"
	CallbackFailed CallbackResult = "failed"
)

type CallbackRequest struct {
	Provider       string
	TransactionID  string
	OrderReference string
	Result         CallbackResult
	FailureReason  string
	Amount         *int64
	Payload        []byte
}

// CallbackOutcome records what a callback did to the order.
type CallbackOutcome string

const (
	OutcomePaid      CallbackOutcome = "paid"
	OutcomeFailed    CallbackOutcome = "failed"
	OutcomeDuplicate CallbackOutcome = "duplicate"
	OutcomeAnomalous CallbackOutcome = "anomalous"
	OutcomeRejected  CallbackOutcome = "rejected"
)

type CancelRequest struct {
	OrderNumber string
	Email       string
}

type RefundRequest struct {
	OrderID         string
	Reason          string
	Operator        string
	RefundReference string
}

type UpdateEmailRequest struct {
	OrderID string
	Email   string
}

type ListRequest struct {
	Filter    ListFilter
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Orders   []Order             `json:"orders"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type TicketDocument struct {
	Filename string
	Content  []byte
}

type Service interface {
	CreateOrder(context.Context, CreateOrderRequest) (CreateOrderResult, error)
	HandleGatewayCallback(context.Context, CallbackRequest) (CallbackOutcome, error)
	Cancel(context.Context, CancelRequest) (Order, error)
	CancelByOperator(ctx context.Context, id string) (Order, error)
	Refund(context.Context, RefundRequest) (Order, error)
	ResendTickets(ctx context.Context, id string) error
	DownloadTickets(ctx context.Context, number string) (TicketDocument, error)
	UpdateEmail(context.Context, UpdateEmailRequest) (Order, error)
	RedeemTicket(ctx context.Context, code string) (OrderItem, error)
	SendReminder(ctx context.Context, id string) (bool, error)
	Expire(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	List(context.Context, ListRequest) (ListResponse, error)
	RevenueSummary(ctx context.Context, from, to *time.Time) (RevenueSummary, error)
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidLanguage      = errors.New("invalid_language")
	ErrPromoNotApplicable   = errors.New("promo_not_applicable")
	ErrBelowTierMinimum     = errors.New("quantity_below_minimum")
	ErrInvalidChannel       = errors.New("invalid_channel")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidReason        = errors.New("invalid_refund_reason")
	ErrInvalidOperator      = errors.New("invalid_operator")
	ErrInvalidCallback      = errors.New("invalid_callback")
	ErrAmountMismatch       = errors.New("amount_mismatch")
	ErrNotFound             = errors.New("order_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrConcurrentTransition = errors.New("concurrent_transition")
	ErrUsageExhausted       = errors.New("usage_exhausted")
	ErrTicketIssuanceFailed = errors.New("ticket_issuance_failed")
	ErrTicketsUnavailable   = errors.New("tickets_unavailable")
	ErrTicketNotFound       = errors.New("ticket_not_found")
	ErrTicketRefunded       = errors.New("ticket_refunded")
	ErrEmailDelivery        = errors.New("email_delivery_failed")
	ErrGatewayUnavailable   = errors.New("gateway_unavailable")
)

// PromoRejectedError carries the discount engine's rejection reason.
type PromoRejectedError struct {
	Reason discount.Reason
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("promo_rejected: %s", e.Reason)
}

// TicketUsedError is returned when a ticket is scanned a second time.
type TicketUsedError struct {
	ScannedAt time.Time
}

func (e *TicketUsedError) Error() string {
	return "ticket_already_used"
}

// Notifier sends customer email for an order. Implementations need Lines
// and Items loaded on the order.
type Notifier interface {
	SendConfirmation(ctx context.Context, o Order) error
	SendReminder(ctx context.Context, o Order, final bool) error
	RenderTickets(ctx context.Context, o Order) ([]byte, error)
}
