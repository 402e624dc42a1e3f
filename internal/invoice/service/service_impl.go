package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"github.com/smallbiznis/duesledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/duesledger/internal/settlement/domain"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           invoicedomain.Repository
	PaymentRepo    paymentdomain.Repository
	SettlementRepo settlementdomain.Repository
	UserRepo       userdomain.Repository
	Policy         *config.DuesPolicyHolder          `optional:"true"`
	Clock          clock.Clock                       `optional:"true"`
	AuditSvc       auditdomain.Service               `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics               `optional:"true"`
	Recon          *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           invoicedomain.Repository
	paymentRepo    paymentdomain.Repository
	settlementRepo settlementdomain.Repository
	userRepo       userdomain.Repository
	policy         *config.DuesPolicyHolder
	clock          clock.Clock
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
	recon          *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) invoicedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("invoice.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		paymentRepo:    p.PaymentRepo,
		settlementRepo: p.SettlementRepo,
		userRepo:       p.UserRepo,
		policy:         p.Policy,
		clock:          c,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
		recon:          p.Recon,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if req.UserID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidUser
	}
	if err := invoicedomain.ValidatePeriod(req.Year, req.Month); err != nil {
		return invoicedomain.Invoice{}, err
	}

	policy := s.policy.Get()
	amount := policy.Amount()
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !money.Valid(amount) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	dueDate := invoicedomain.DueDateFor(req.Year, req.Month, policy.DueDay)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}

	now := s.clock.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Year:      req.Year,
		Month:     req.Month,
		Amount:    amount,
		Status:    invoicedomain.InvoiceStatusUnpaid,
		DueDate:   dueDate,
		Notes:     normalizeNotes(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.FindByID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil || user.Role != userdomain.RoleResident {
			return invoicedomain.ErrInvalidUser
		}
		exists, err := s.repo.Exists(ctx, tx, req.UserID, req.Year, req.Month)
		if err != nil {
			return err
		}
		if exists {
			return invoicedomain.ErrDuplicateInvoice
		}
		return s.repo.Insert(ctx, tx, &invoice)
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.audit(ctx, req.ActorID, "invoice.created", invoice.ID, map[string]any{
		"user_id": invoice.UserID.String(),
		"year":    invoice.Year,
		"month":   invoice.Month,
		"amount":  invoice.Amount.StringFixed(money.Places),
	})
	return invoice, nil
}

// CreateBatch creates the months from the one containing from through
// December of the following year. Months that already have an invoice are
// skipped.
func (s *Service) CreateBatch(ctx context.Context, tx *gorm.DB, userID snowflake.ID, from time.Time) ([]invoicedomain.Invoice, error) {
	if userID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}
	if tx == nil {
		tx = s.db
	}

	policy := s.policy.Get()
	amount := policy.Amount()
	if !money.Valid(amount) {
		return nil, invoicedomain.ErrInvalidAmount
	}

	from = from.UTC()
	now := s.clock.Now().UTC()
	start := from.Year()*12 + int(from.Month()) - 1
	end := (from.Year()+1)*12 + 11

	created := make([]invoicedomain.Invoice, 0, end-start+1)
	for period := start; period <= end; period++ {
		year, month := period/12, period%12+1

		exists, err := s.repo.Exists(ctx, tx, userID, year, month)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		status := invoicedomain.InvoiceStatusPending
		if period == start {
			status = invoicedomain.InvoiceStatusUnpaid
		}
		invoice := invoicedomain.Invoice{
			ID:        s.genID.Generate(),
			UserID:    userID,
			Year:      year,
			Month:     month,
			Amount:    amount,
			Status:    status,
			DueDate:   invoicedomain.DueDateFor(year, month, policy.DueDay),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return nil, err
		}
		created = append(created, invoice)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) GetBalance(ctx context.Context, id snowflake.ID) (invoicedomain.InvoiceBalance, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return invoicedomain.InvoiceBalance{}, err
	}
	paid, err := s.paymentRepo.SumByInvoice(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceBalance{}, err
	}
	return invoicedomain.InvoiceBalance{
		Invoice:   invoice,
		Paid:      paid,
		Remaining: invoice.Amount.Sub(paid),
	}, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]invoicedomain.InvoiceBalance, error) {
	if userID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID, actorID snowflake.ID) error {
	var deleted invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		payments, err := s.paymentRepo.CountByInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		claims, err := s.repo.CountPendingClaims(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := invoice.CheckDeletable(payments, claims); err != nil {
			return err
		}
		deleted = *invoice
		return s.repo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, actorID, "invoice.deleted", deleted.ID, map[string]any{
		"user_id": deleted.UserID.String(),
		"year":    deleted.Year,
		"month":   deleted.Month,
	})
	return nil
}

func (s *Service) Paid(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error) {
	if tx == nil {
		tx = s.db
	}
	return s.paymentRepo.SumByInvoice(ctx, tx, invoiceID)
}

// ApplyPayment locks the invoice, writes the payment and moves the invoice to
// PAID once payments cover its amount. With a nil tx it runs in its own
// transaction.
func (s *Service) ApplyPayment(ctx context.Context, tx *gorm.DB, req invoicedomain.ApplyPaymentRequest) (invoicedomain.ApplyPaymentResult, error) {
	if err := validateApply(&req); err != nil {
		return invoicedomain.ApplyPaymentResult{}, err
	}
	if tx == nil {
		var result invoicedomain.ApplyPaymentResult
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = s.applyPayment(ctx, tx, req)
			return err
		})
		return result, err
	}
	return s.applyPayment(ctx, tx, req)
}

func (s *Service) applyPayment(ctx context.Context, tx *gorm.DB, req invoicedomain.ApplyPaymentRequest) (invoicedomain.ApplyPaymentResult, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.apply_payment",
		attribute.String("source", string(req.Source)),
		attribute.String("invoice_id", req.InvoiceID.String()),
	)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	invoice, err := s.lockInvoice(ctx, tx, req.InvoiceID)
	if err != nil {
		return invoicedomain.ApplyPaymentResult{}, err
	}
	if req.UserID != 0 && invoice.UserID != req.UserID {
		err = invoicedomain.ErrInvoiceNotFound
		return invoicedomain.ApplyPaymentResult{}, err
	}
	if err = invoice.CheckPayable(req.Source); err != nil {
		return invoicedomain.ApplyPaymentResult{}, err
	}

	paid, err := s.paymentRepo.SumByInvoice(ctx, tx, invoice.ID)
	if err != nil {
		return invoicedomain.ApplyPaymentResult{}, err
	}
	remaining := invoice.Amount.Sub(paid)
	result := invoicedomain.ApplyPaymentResult{Invoice: invoice, Paid: paid, Remaining: remaining}

	amount := req.Amount
	if req.Source == invoicedomain.SourceOverride {
		if invoice.Status == invoicedomain.InvoiceStatusPaid {
			return result, nil
		}
		amount = remaining
	} else if money.Exceeds(amount, remaining) {
		err = invoicedomain.ErrAmountExceedsRemaining
		return invoicedomain.ApplyPaymentResult{}, err
	}

	now := s.clock.Now().UTC()
	if amount.IsPositive() {
		payment := &paymentdomain.Payment{
			ID:          s.genID.Generate(),
			UserID:      invoice.UserID,
			InvoiceID:   invoice.ID,
			Amount:      amount,
			Method:      req.Method,
			Notes:       normalizeNotes(req.Notes),
			CollectedBy: req.CollectorID,
			CreatedAt:   now,
		}
		if err = s.paymentRepo.Insert(ctx, tx, payment); err != nil {
			return invoicedomain.ApplyPaymentResult{}, err
		}
		result.Payment = payment
		result.Paid = paid.Add(amount)
		result.Remaining = invoice.Amount.Sub(result.Paid)
	}

	switch {
	case !money.Exceeds(invoice.Amount, result.Paid):
		if err = invoice.MarkPaid(req.Source, now); err != nil {
			return invoicedomain.ApplyPaymentResult{}, err
		}
		result.MarkedPaid = true
	case req.Source == invoicedomain.SourceOnline:
		// a partial online payment leaves the rest open for cash or a new claim
		if !invoice.RevertToUnpaid(now) {
			return result, nil
		}
	default:
		return result, nil
	}

	if err = s.repo.UpdateStatus(ctx, tx, invoice); err != nil {
		return invoicedomain.ApplyPaymentResult{}, err
	}
	return result, nil
}

func (s *Service) AwaitConfirmation(ctx context.Context, tx *gorm.DB, req invoicedomain.AwaitConfirmationRequest) (*invoicedomain.Invoice, error) {
	invoice, err := s.lockInvoice(ctx, tx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if req.UserID != 0 && invoice.UserID != req.UserID {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	switch invoice.Status {
	case invoicedomain.InvoiceStatusPaid:
		return nil, invoicedomain.ErrAlreadyPaid
	case invoicedomain.InvoiceStatusPendingConfirmation:
		return nil, invoicedomain.ErrAwaitingOnlineConfirmation
	}

	paid, err := s.paymentRepo.SumByInvoice(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if money.Exceeds(req.Amount, invoice.Amount.Sub(paid)) {
		return nil, invoicedomain.ErrAmountExceedsRemaining
	}

	if err := invoice.AwaitConfirmation(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, tx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) ReleaseConfirmation(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (bool, error) {
	invoice, err := s.lockInvoice(ctx, tx, invoiceID)
	if err != nil {
		return false, err
	}
	if !invoice.RevertToUnpaid(s.clock.Now()) {
		return false, nil
	}
	if err := s.repo.UpdateStatus(ctx, tx, invoice); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Override(ctx context.Context, req invoicedomain.OverrideRequest) (result invoicedomain.OverrideResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpOverride, start, err) }()

	if req.ActorID == 0 {
		return invoicedomain.OverrideResult{}, invoicedomain.ErrInvalidUser
	}

	var markedPaid bool
	switch req.Status {
	case invoicedomain.InvoiceStatusPaid:
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applied, err := s.applyPayment(ctx, tx, invoicedomain.ApplyPaymentRequest{
				InvoiceID:   req.InvoiceID,
				Source:      invoicedomain.SourceOverride,
				Method:      paymentdomain.MethodCash,
				CollectorID: req.ActorID,
				Notes:       req.Notes,
			})
			if err != nil {
				return err
			}
			markedPaid = applied.MarkedPaid
			result.Invoice = *applied.Invoice
			result.Changed = applied.Payment != nil || applied.MarkedPaid
			return nil
		})
	case invoicedomain.InvoiceStatusUnpaid:
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			invoice, err := s.lockInvoice(ctx, tx, req.InvoiceID)
			if err != nil {
				return err
			}
			claims, err := s.repo.CountPendingClaims(ctx, tx, invoice.ID)
			if err != nil {
				return err
			}
			if claims > 0 {
				return invoicedomain.ErrInvalidState
			}
			if err := s.ensureSettlementsCovered(ctx, tx, invoice.ID); err != nil {
				return err
			}
			wasUnpaid := invoice.Status == invoicedomain.InvoiceStatusUnpaid
			removed, err := s.paymentRepo.DeleteByInvoice(ctx, tx, invoice.ID)
			if err != nil {
				return err
			}
			invoice.ForceUnpaid(s.clock.Now())
			notes := normalizeNotes(req.Notes)
			if notes != nil {
				invoice.Notes = notes
			}
			if err := s.repo.UpdateStatus(ctx, tx, invoice); err != nil {
				return err
			}
			result.Invoice = *invoice
			result.PaymentsRemoved = removed
			result.Changed = !wasUnpaid || removed > 0 || notes != nil
			return nil
		})
	default:
		return invoicedomain.OverrideResult{}, invoicedomain.ErrInvalidStatus
	}
	if err != nil {
		return invoicedomain.OverrideResult{}, err
	}

	if !result.Changed {
		return result, nil
	}
	if markedPaid {
		s.obsMetrics.RecordInvoicePaid(ctx, string(invoicedomain.SourceOverride))
	}
	s.log.Info("invoice status overridden",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("status", string(req.Status)),
		zap.Int64("payments_removed", result.PaymentsRemoved),
	)
	s.audit(ctx, req.ActorID, "invoice.status_overridden", req.InvoiceID, map[string]any{
		"status":           string(req.Status),
		"payments_removed": result.PaymentsRemoved,
	})
	return result, nil
}

// ensureSettlementsCovered refuses to drop payments a collector has already
// handed to the treasury: after removal each collector must still have
// collected at least what they settled. Collector rows are locked in id
// order, the same lock RecordSettlement takes.
func (s *Service) ensureSettlementsCovered(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error {
	payments, err := s.paymentRepo.ListByInvoice(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	removed := make(map[snowflake.ID]decimal.Decimal)
	for _, p := range payments {
		if p.CollectedBy == 0 {
			continue
		}
		total, ok := removed[p.CollectedBy]
		if !ok {
			total = decimal.Zero
		}
		removed[p.CollectedBy] = total.Add(p.Amount)
	}

	collectors := make([]snowflake.ID, 0, len(removed))
	for id := range removed {
		collectors = append(collectors, id)
	}
	slices.Sort(collectors)

	for _, collectorID := range collectors {
		waitStart := time.Now()
		if _, err := s.userRepo.FindByIDForUpdate(ctx, tx, collectorID); err != nil {
			return err
		}
		s.recon.ObserveLockWait(obsmetrics.LockCollector, time.Since(waitStart))

		collected, _, err := s.paymentRepo.SumByCollector(ctx, tx, collectorID)
		if err != nil {
			return err
		}
		settled, err := s.settlementRepo.SumByCollector(ctx, tx, collectorID)
		if err != nil {
			return err
		}
		if collected.Sub(removed[collectorID]).LessThan(settled) {
			s.log.Warn("override would leave settlements above collections",
				zap.String("invoice_id", invoiceID.String()),
				zap.String("collector_id", collectorID.String()),
				zap.String("collected", collected.StringFixed(money.Places)),
				zap.String("settled", settled.StringFixed(money.Places)),
			)
			return invoicedomain.ErrPaymentsSettled
		}
	}
	return nil
}

func (s *Service) UnitsStatus(ctx context.Context, building string, year, month int) ([]invoicedomain.UnitStatus, error) {
	building = strings.TrimSpace(building)
	if building == "" {
		return nil, invoicedomain.ErrInvalidBuilding
	}
	if err := invoicedomain.ValidatePeriod(year, month); err != nil {
		return nil, err
	}
	return s.repo.UnitsStatus(ctx, s.db, building, year, month)
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	waitStart := time.Now()
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	s.recon.ObserveLockWait(obsmetrics.LockInvoiceRow, time.Since(waitStart))
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) audit(ctx context.Context, actorID snowflake.ID, action string, invoiceID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := invoiceID.String()
	var actor *string
	if actorID != 0 {
		id := actorID.String()
		actor = &id
	}
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), actor, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write invoice audit log", zap.String("action", action), zap.Error(err))
	}
}

func validateApply(req *invoicedomain.ApplyPaymentRequest) error {
	if req.InvoiceID == 0 {
		return invoicedomain.ErrInvoiceNotFound
	}
	if !req.Source.Valid() {
		return invoicedomain.ErrInvalidSource
	}
	if req.Method == "" {
		req.Method = paymentdomain.MethodCash
		if req.Source == invoicedomain.SourceOnline {
			req.Method = paymentdomain.MethodOnline
		}
	}
	if !req.Method.Valid() {
		return paymentdomain.ErrInvalidMethod
	}
	if req.Source != invoicedomain.SourceOverride && !money.Valid(req.Amount) {
		return invoicedomain.ErrInvalidAmount
	}
	if req.CollectorID == 0 {
		return invoicedomain.ErrInvalidUser
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
