package authorization

import (
	"context"
	"errors"
)

const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
	RoleScanner = "scanner"
)

const (
	ObjectOrder      = "order"
	ObjectInvitation = "invitation"
	ObjectTicket     = "ticket"
	ObjectPromoCode  = "promo_code"
	ObjectCatalog    = "catalog"
	ObjectReport     = "report"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionOrderView        = "order.view"
	ActionOrderRefund      = "order.refund"
	ActionOrderResend      = "order.resend"
	ActionOrderUpdateEmail = "order.update_email"
	ActionOrderCancel      = "order.cancel"

	ActionInvitationIssue = "invitation.issue"

	ActionTicketRedeem = "ticket.redeem"

	ActionPromoCodeView   = "promo_code.view"
	ActionPromoCodeManage = "promo_code.manage"

	ActionCatalogManage = "catalog.manage"

	ActionReportRevenue = "report.revenue"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// Service decides whether an operator holding role may perform action on
// object.
type Service interface {
	Authorize(ctx context.Context, operatorID, role, object, action string) error
}
