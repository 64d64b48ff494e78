package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	ActionOrderRefunded     = "order.refunded"
	ActionOrderCancelled    = "order.cancelled"
	ActionOrderResent       = "order.tickets_resent"
	ActionOrderEmailUpdated = "order.email_updated"
	ActionInvitationIssued  = "invitation.issued"
	ActionTicketRedeemed    = "ticket.redeemed"
	ActionPromoCreated      = "promo_code.created"
	ActionPromoUpdated      = "promo_code.updated"
	ActionPromoDeactivated  = "promo_code.deactivated"
	ActionTicketTypeCreated = "ticket_type.created"
	ActionTicketOptionAdded = "ticket_option.created"
	ActionAuthorizationDeny = "authorization.denied"
)

// Entry is what callers record. Actor, IP and user agent come from the
// request context.
type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListResponse struct {
	AuditLogs []AuditLog          `json:"audit_logs"`
	PageInfo  pagination.PageInfo `json:"page_info"`
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	BeforeID   snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
