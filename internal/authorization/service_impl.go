package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/boxoffice/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var knownRoles = map[string]bool{
	RoleAdmin:   true,
	RoleSupport: true,
	RoleScanner: true,
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, operatorID, role, object, action string) error {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !knownRoles[role] {
		s.auditDenied(ctx, operatorID, role, object, action)
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := "operator:" + operatorID
	if err := s.ensureGrouping(subject, "role:"+role); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, operatorID, role, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per operator; the role header
// is authoritative, so a changed role replaces the stored one.
func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, operatorID, role, object, action string) {
	s.log.Warn("operator action denied",
		zap.String("operator_id", operatorID),
		zap.String("role", role),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionAuthorizationDeny,
		TargetType: object,
		TargetID:   action,
		Metadata: map[string]any{
			"operator_id": operatorID,
			"role":        role,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectOrder, ActionOrderView},
		{"role:admin", ObjectOrder, ActionOrderRefund},
		{"role:admin", ObjectOrder, ActionOrderResend},
		{"role:admin", ObjectOrder, ActionOrderUpdateEmail},
		{"role:admin", ObjectOrder, ActionOrderCancel},
		{"role:admin", ObjectInvitation, ActionInvitationIssue},
		{"role:admin", ObjectTicket, ActionTicketRedeem},
		{"role:admin", ObjectPromoCode, ActionPromoCodeView},
		{"role:admin", ObjectPromoCode, ActionPromoCodeManage},
		{"role:admin", ObjectCatalog, ActionCatalogManage},
		{"role:admin", ObjectReport, ActionReportRevenue},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// support handles customer requests but never moves money
		{"role:support", ObjectOrder, ActionOrderView},
		{"role:support", ObjectOrder, ActionOrderResend},
		{"role:support", ObjectOrder, ActionOrderUpdateEmail},
		{"role:support", ObjectOrder, ActionOrderCancel},
		{"role:support", ObjectPromoCode, ActionPromoCodeView},
		{"role:support", ObjectTicket, ActionTicketRedeem},

		{"role:scanner", ObjectTicket, ActionTicketRedeem},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
