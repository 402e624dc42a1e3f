package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/auth"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectResident   = "resident"
	ObjectCollector  = "collector"
	ObjectInvoice    = "invoice"
	ObjectPayment    = "payment"
	ObjectClaim      = "claim"
	ObjectSettlement = "settlement"
	ObjectTreasury   = "treasury"
	ObjectLedger     = "ledger"
	ObjectExpense    = "expense"
	ObjectFundraiser = "fundraiser"
	ObjectOverdue    = "overdue"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionResidentOnboard = "resident.onboard"
	ActionResidentView    = "resident.view"

	ActionCollectorAssign = "collector.assign"
	ActionCollectorView   = "collector.view"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceViewOwn  = "invoice.view_own"
	ActionInvoiceCreate   = "invoice.create"
	ActionInvoiceDelete   = "invoice.delete"
	ActionInvoiceOverride = "invoice.override"

	ActionPaymentCollect = "payment.collect"
	ActionPaymentViewOwn = "payment.view_own"

	ActionClaimSubmit  = "claim.submit"
	ActionClaimViewOwn = "claim.view_own"
	ActionClaimReview  = "claim.review"

	ActionSettlementRecord = "settlement.record"
	ActionTreasuryView     = "treasury.view"

	ActionLedgerView   = "ledger.view"
	ActionLedgerVerify = "ledger.verify"

	ActionExpenseCreate = "expense.create"
	ActionExpenseView   = "expense.view"

	ActionFundraiserCreate = "fundraiser.create"
	ActionFundraiserUpdate = "fundraiser.update"

	ActionOverdueView = "overdue.view"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

// Authorizer answers capability questions for request principals.
type Authorizer struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

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
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewAuthorizer(p Params) *Authorizer {
	return &Authorizer{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// RequirePrincipal returns the request principal, restricted to roles when
// any are given.
func (a *Authorizer) RequirePrincipal(ctx context.Context, roles ...userdomain.Role) (auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, ErrUnauthenticated
	}
	if len(roles) > 0 && !principal.HasRole(roles...) {
		return auth.Principal{}, ErrForbidden
	}
	return principal, nil
}

func (a *Authorizer) Authorize(ctx context.Context, principal auth.Principal, object string, action string) error {
	if principal.ID == 0 || !principal.Role.Valid() {
		return ErrUnauthenticated
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := principal.Subject()
	if err := a.ensureGrouping(subject, roleSubject(principal.Role)); err != nil {
		return err
	}

	allowed, err := a.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		a.log.Debug("capability denied",
			zap.String("subject", subject),
			zap.String("role", string(principal.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		a.audit(ctx, principal, "authorization.denied", object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		a.audit(ctx, principal, "authorization.granted", object, action)
	}
	return nil
}

// ensureGrouping links subject to exactly one role. Roles come from the
// token, so a stale link from an earlier role is dropped.
func (a *Authorizer) ensureGrouping(subject string, roleName string) error {
	existing, err := a.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = a.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := a.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = a.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (a *Authorizer) audit(ctx context.Context, principal auth.Principal, action string, object string, capability string) {
	if a.auditSvc == nil {
		return
	}
	actorID := principal.ID.String()
	targetID := "capability"
	if err := a.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, action, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  capability,
		"role":    string(principal.Role),
		"subject": principal.Subject(),
	}); err != nil {
		a.log.Warn("failed to write authorization audit log", zap.Error(err))
	}
}

func roleSubject(role userdomain.Role) string {
	return fmt.Sprintf("role:%s", strings.ToLower(string(role)))
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoiceOverride, ActionLedgerVerify:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	resident := roleSubject(userdomain.RoleResident)
	admin := roleSubject(userdomain.RoleAdmin)
	onlineAdmin := roleSubject(userdomain.RoleOnlineAdmin)
	treasurer := roleSubject(userdomain.RoleTreasurer)
	superAdmin := roleSubject(userdomain.RoleSuperAdmin)

	policies := [][]string{
		// Residents act on their own invoices and claims
		{resident, ObjectInvoice, ActionInvoiceViewOwn},
		{resident, ObjectClaim, ActionClaimSubmit},
		{resident, ObjectClaim, ActionClaimViewOwn},

		// Field collectors
		{admin, ObjectInvoice, ActionInvoiceView},
		{admin, ObjectInvoice, ActionInvoiceCreate},
		{admin, ObjectInvoice, ActionInvoiceDelete},
		{admin, ObjectPayment, ActionPaymentCollect},
		{admin, ObjectPayment, ActionPaymentViewOwn},
		{admin, ObjectOverdue, ActionOverdueView},

		// Online transfer reviewers
		{onlineAdmin, ObjectInvoice, ActionInvoiceView},
		{onlineAdmin, ObjectPayment, ActionPaymentViewOwn},
		{onlineAdmin, ObjectClaim, ActionClaimReview},

		// Treasury
		{treasurer, ObjectCollector, ActionCollectorView},
		{treasurer, ObjectSettlement, ActionSettlementRecord},
		{treasurer, ObjectTreasury, ActionTreasuryView},
		{treasurer, ObjectLedger, ActionLedgerView},
		{treasurer, ObjectLedger, ActionLedgerVerify},
		{treasurer, ObjectExpense, ActionExpenseCreate},
		{treasurer, ObjectExpense, ActionExpenseView},
		{treasurer, ObjectFundraiser, ActionFundraiserCreate},
		{treasurer, ObjectFundraiser, ActionFundraiserUpdate},
		{treasurer, ObjectOverdue, ActionOverdueView},
		{treasurer, ObjectAuditLog, ActionAuditLogView},

		// Super admin
		{superAdmin, ObjectResident, ActionResidentOnboard},
		{superAdmin, ObjectResident, ActionResidentView},
		{superAdmin, ObjectCollector, ActionCollectorAssign},
		{superAdmin, ObjectInvoice, ActionInvoiceView},
		{superAdmin, ObjectInvoice, ActionInvoiceCreate},
		{superAdmin, ObjectInvoice, ActionInvoiceDelete},
		{superAdmin, ObjectInvoice, ActionInvoiceOverride},
		{superAdmin, ObjectClaim, ActionClaimReview},
		{superAdmin, ObjectTreasury, ActionTreasuryView},
		{superAdmin, ObjectLedger, ActionLedgerView},
		{superAdmin, ObjectLedger, ActionLedgerVerify},
		{superAdmin, ObjectOverdue, ActionOverdueView},
		{superAdmin, ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
