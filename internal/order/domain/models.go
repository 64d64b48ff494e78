package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentOK       PaymentStatus = "ok"
	PaymentFailed   PaymentStatus = "failed"
	PaymentReversed PaymentStatus = "reversed"
)

type Channel string

const (
	ChannelRetail     Channel = "retail"
	ChannelB2B        Channel = "b2b"
	ChannelInvitation Channel = "invitation"
)

type ItemStatus string

const (
	ItemValid    ItemStatus = "valid"
	ItemUsed     ItemStatus = "used"
	ItemRefunded ItemStatus = "refunded"
)

type Order struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrderNumber          string        `gorm:"column:order_number" json:"order_number"`
	Channel              Channel       `gorm:"column:channel" json:"channel"`
	IsInvitation         bool          `gorm:"column:is_invitation" json:"is_invitation"`
	CustomerName         string        `gorm:"column:customer_name" json:"customer_name"`
	CustomerEmail        string        `gorm:"column:customer_email" json:"customer_email"`
	CustomerPhone        string        `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	Language             string        `gorm:"column:language" json:"language"`
	ClientIP             string        `gorm:"column:client_ip" json:"-"`
	Currency             string        `gorm:"column:currency" json:"currency"`
	TotalAmount          int64         `gorm:"column:total_amount" json:"total_amount"`
	DiscountAmount       int64         `gorm:"column:discount_amount" json:"discount_amount"`
	FinalAmount          int64         `gorm:"column:final_amount" json:"final_amount"`
	DiscountKind         string        `gorm:"column:discount_kind" json:"discount_kind"`
	DiscountPercent      *int          `gorm:"column:discount_percent" json:"discount_percent,omitempty"`
	PromoCode            *string       `gorm:"column:promo_code" json:"promo_code,omitempty"`
	PromoCodeID          *snowflake.ID `gorm:"column:promo_code_id" json:"promo_code_id,omitempty"`
	Status               Status        `gorm:"column:status" json:"status"`
	PaymentStatus        PaymentStatus `gorm:"column:payment_status" json:"payment_status"`
	GatewayTransactionID *string       `gorm:"column:gateway_transaction_id" json:"gateway_transaction_id,omitempty"`
	PaymentURL           *string       `gorm:"column:payment_url" json:"payment_url,omitempty"`
	FailureReason        *string       `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	AttentionReason      *string       `gorm:"column:attention_reason" json:"attention_reason,omitempty"`
	RefundReason         *string       `gorm:"column:refund_reason" json:"refund_reason,omitempty"`
	RefundedBy           *string       `gorm:"column:refunded_by" json:"refunded_by,omitempty"`
	RefundReference      *string       `gorm:"column:refund_reference" json:"refund_reference,omitempty"`
	Note                 *string       `gorm:"column:note" json:"note,omitempty"`
	ReminderCount        int           `gorm:"column:reminder_count" json:"reminder_count"`
	ReminderSentAt       *time.Time    `gorm:"column:reminder_sent_at" json:"reminder_sent_at,omitempty"`
	PaidAt               *time.Time    `gorm:"column:paid_at" json:"paid_at,omitempty"`
	RefundedAt           *time.Time    `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CancelledAt          *time.Time    `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	ExpiredAt            *time.Time    `gorm:"column:expired_at" json:"expired_at,omitempty"`
	ConfirmationSentAt   *time.Time    `gorm:"column:confirmation_sent_at" json:"confirmation_sent_at,omitempty"`
	Version              int           `gorm:"column:version" json:"version"`
	CreatedAt            time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"column:updated_at" json:"updated_at"`

	Lines []OrderLine `gorm:"-" json:"lines,omitempty"`
	Items []OrderItem `gorm:"-" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// TicketCount is the number of tickets the order fans out to.
func (o Order) TicketCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

type OrderLine struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID  `gorm:"column:order_id" json:"order_id"`
	TicketTypeID   snowflake.ID  `gorm:"column:ticket_type_id" json:"ticket_type_id"`
	TicketOptionID *snowflake.ID `gorm:"column:ticket_option_id" json:"ticket_option_id,omitempty"`
	TicketTypeName string        `gorm:"column:ticket_type_name" json:"ticket_type_name"`
	OptionName     string        `gorm:"column:option_name" json:"option_name,omitempty"`
	Quantity       int           `gorm:"column:quantity" json:"quantity"`
	UnitPrice      int64         `gorm:"column:unit_price" json:"unit_price"`
	CreatedAt      time.Time     `gorm:"column:created_at" json:"created_at"`
}

func (OrderLine) TableName() string { return "order_lines" }

type OrderItem struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID  `gorm:"column:order_id" json:"order_id"`
	OrderLineID    snowflake.ID  `gorm:"column:order_line_id" json:"order_line_id"`
	TicketTypeID   snowflake.ID  `gorm:"column:ticket_type_id" json:"ticket_type_id"`
	TicketOptionID *snowflake.ID `gorm:"column:ticket_option_id" json:"ticket_option_id,omitempty"`
	UnitPrice      int64         `gorm:"column:unit_price" json:"unit_price"`
	TicketCode     string        `gorm:"column:ticket_code" json:"ticket_code"`
	Status         ItemStatus    `gorm:"column:status" json:"status"`
	ScannedAt      *time.Time    `gorm:"column:scanned_at" json:"scanned_at,omitempty"`
	CreatedAt      time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (OrderItem) TableName() string { return "order_items" }

// GatewayCallback journals every payment-result notification as received.
type GatewayCallback struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	Provider       string         `gorm:"column:provider"`
	TransactionID  string         `gorm:"column:transaction_id"`
	Result         string         `gorm:"column:result"`
	OrderReference string         `gorm:"column:order_reference"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	Outcome        *string        `gorm:"column:outcome"`
	ReceivedAt     time.Time      `gorm:"column:received_at"`
	ProcessedAt    *time.Time     `gorm:"column:processed_at"`
}

func (GatewayCallback) TableName() string { return "gateway_callbacks" }

// RevenueSummary aggregates paid, non-invitation orders only.
type RevenueSummary struct {
	Currency       string `json:"currency"`
	OrderCount     int64  `json:"order_count"`
	TicketCount    int64  `json:"ticket_count"`
	GrossAmount    int64  `json:"gross_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	NetAmount      int64  `json:"net_amount"`
}

var Languages = []string{"ro", "ru", "en"}

const DefaultLanguage = "ro"

// NormalizeLanguage lowercases lang and defaults an empty value. It reports
// false for languages without templates.
func NormalizeLanguage(lang string) (string, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return DefaultLanguage, true
	}
	for _, l := range Languages {
		if l == lang {
			return lang, true
		}
	}
	return "", false
}
