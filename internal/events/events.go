// Package events publishes order lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/smallbiznis/boxoffice/internal/order/domain"
)

type Type string

const (
	OrderCreated          Type = "order.created"
	OrderPaid             Type = "order.paid"
	OrderFailed           Type = "order.failed"
	OrderCancelled        Type = "order.cancelled"
	OrderExpired          Type = "order.expired"
	OrderRefunded         Type = "order.refunded"
	OrderInvitationIssued Type = "order.invitation_issued"
	TicketRedeemed        Type = "ticket.redeemed"
)

// Event carries is_invitation so revenue consumers can skip invitations.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	OrderID      string    `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	Status       string    `json:"status"`
	Channel      string    `json:"channel"`
	IsInvitation bool      `json:"is_invitation"`
	Currency     string    `json:"currency"`
	TotalAmount  int64     `json:"total_amount"`
	FinalAmount  int64     `json:"final_amount"`
	TicketCount  int       `json:"ticket_count"`
	TicketCode   string    `json:"ticket_code,omitempty"`
}

func FromOrder(t Type, o domain.Order, at time.Time) Event {
	return Event{
		ID:           o.ID.String() + ":" + string(t) + ":" + o.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Type:         t,
		OccurredAt:   at.UTC(),
		OrderID:      o.ID.String(),
		OrderNumber:  o.OrderNumber,
		Status:       string(o.Status),
		Channel:      string(o.Channel),
		IsInvitation: o.IsInvitation,
		Currency:     o.Currency,
		TotalAmount:  o.TotalAmount,
		FinalAmount:  o.FinalAmount,
		TicketCount:  o.TicketCount(),
	}
}

// Publisher delivers events after the state change committed. Callers log
// failures; they never roll anything back.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NoopPublisher) Close() error                            { return nil }
