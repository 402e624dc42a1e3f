package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"github.com/smallbiznis/duesledger/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	InvoiceSvc invoicedomain.Service
	Clock      clock.Clock                       `optional:"true"`
	AuditSvc   auditdomain.Service               `optional:"true"`
	Recon      *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	invoiceSvc invoicedomain.Service
	clock      clock.Clock
	auditSvc   auditdomain.Service
	recon      *obsmetrics.ReconciliationMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("user.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		clock:      c,
		auditSvc:   p.AuditSvc,
		recon:      p.Recon,
	}
}

func (s *Service) Onboard(ctx context.Context, req domain.OnboardRequest) (result domain.OnboardResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpOnboard, start, err) }()

	username, err := normalizeUsername(req.Username)
	if err != nil {
		return domain.OnboardResult{}, err
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return domain.OnboardResult{}, domain.ErrInvalidName
	}
	building := strings.TrimSpace(req.Building)
	if building == "" {
		return domain.OnboardResult{}, domain.ErrInvalidBuilding
	}

	now := s.clock.Now().UTC()
	user := domain.User{
		ID:        s.genID.Generate(),
		Username:  username,
		FullName:  fullName,
		Role:      domain.RoleResident,
		CreatedAt: now,
		UpdatedAt: now,
	}
	details := domain.PersonDetails{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		Building:  building,
		Floor:     strings.TrimSpace(req.Floor),
		Apartment: strings.TrimSpace(req.Apartment),
		CreatedAt: now,
	}

	var invoices []invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &user); err != nil {
			return err
		}
		if err := s.repo.InsertDetails(ctx, tx, &details); err != nil {
			return err
		}
		var err error
		invoices, err = s.invoiceSvc.CreateBatch(ctx, tx, user.ID, now)
		return err
	})
	if err != nil {
		return domain.OnboardResult{}, err
	}

	s.log.Info("resident onboarded",
		zap.String("user_id", user.ID.String()),
		zap.String("building", building),
		zap.Int("invoices", len(invoices)),
	)
	s.audit(ctx, "user.resident_onboarded", user.ID, map[string]any{
		"username": username,
		"building": building,
		"invoices": len(invoices),
	})

	return domain.OnboardResult{
		Resident: domain.Resident{
			ID:        user.ID,
			Username:  user.Username,
			FullName:  user.FullName,
			Building:  details.Building,
			Floor:     details.Floor,
			Apartment: details.Apartment,
		},
		InvoiceCount: len(invoices),
	}, nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.CreateStaffRequest) (domain.User, error) {
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return domain.User{}, err
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return domain.User{}, domain.ErrInvalidName
	}
	if !req.Role.Valid() || req.Role == domain.RoleResident {
		return domain.User{}, domain.ErrInvalidRole
	}

	now := s.clock.Now().UTC()
	user := domain.User{
		ID:        s.genID.Generate(),
		Username:  username,
		FullName:  fullName,
		Role:      req.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		return domain.User{}, err
	}

	s.audit(ctx, "user.staff_created", user.ID, map[string]any{
		"username": username,
		"role":     string(user.Role),
	})
	return user, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *user, nil
}

func (s *Service) GetResident(ctx context.Context, id snowflake.ID) (domain.Resident, error) {
	resident, err := s.repo.FindResident(ctx, s.db, id)
	if err != nil {
		return domain.Resident{}, err
	}
	if resident == nil {
		return domain.Resident{}, domain.ErrResidentNotFound
	}
	return *resident, nil
}

func (s *Service) ListByRole(ctx context.Context, roles ...domain.Role) ([]domain.User, error) {
	for _, role := range roles {
		if !role.Valid() {
			return nil, domain.ErrInvalidRole
		}
	}
	users, err := s.repo.ListByRole(ctx, s.db, roles...)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *Service) ListResidents(ctx context.Context, building string) ([]domain.Resident, error) {
	residents, err := s.repo.ListResidents(ctx, s.db, building)
	if err != nil {
		return nil, err
	}
	if residents == nil {
		residents = []domain.Resident{}
	}
	return residents, nil
}

// AssignBuildings replaces the collector's building scope.
func (s *Service) AssignBuildings(ctx context.Context, collectorID snowflake.ID, buildings []string) ([]string, error) {
	normalized := make([]string, 0, len(buildings))
	seen := make(map[string]struct{}, len(buildings))
	for _, building := range buildings {
		building = strings.TrimSpace(building)
		if building == "" {
			return nil, domain.ErrInvalidBuilding
		}
		if _, ok := seen[building]; ok {
			continue
		}
		seen[building] = struct{}{}
		normalized = append(normalized, building)
	}
	sort.Strings(normalized)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collector, err := s.repo.FindByIDForUpdate(ctx, tx, collectorID)
		if err != nil {
			return err
		}
		if collector == nil {
			return domain.ErrUserNotFound
		}
		if !collector.Role.IsCollector() {
			return domain.ErrNotCollector
		}
		return s.repo.ReplaceBuildings(ctx, tx, collectorID, normalized)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "user.buildings_assigned", collectorID, map[string]any{
		"buildings": strings.Join(normalized, ","),
	})
	return normalized, nil
}

func (s *Service) Buildings(ctx context.Context, collectorID snowflake.ID) ([]string, error) {
	buildings, err := s.repo.Buildings(ctx, s.db, collectorID)
	if err != nil {
		return nil, err
	}
	if buildings == nil {
		buildings = []string{}
	}
	return buildings, nil
}

func (s *Service) audit(ctx context.Context, action string, userID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := userID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "user", &targetID, metadata); err != nil {
		s.log.Warn("failed to write user audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if len(username) < 3 || len(username) > 64 || strings.ContainsAny(username, " \t\n") {
		return "", domain.ErrInvalidUsername
	}
	return username, nil
}
