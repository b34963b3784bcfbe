package moulds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// AuditPort records mould master changes.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Service owns mould and setup sheet business rules.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Mould, int, error) {
	moulds, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range moulds {
		moulds[i].IsMaintenanceDue = moulds[i].maintenanceDue(now)
	}
	return moulds, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Mould, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Mould{}, err
	}
	m.IsMaintenanceDue = m.maintenanceDue(s.now())
	return m, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (Mould, error) {
	m, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return Mould{}, err
	}
	m.IsMaintenanceDue = m.maintenanceDue(s.now())
	return m, nil
}

func (s *Service) Create(ctx context.Context, m Mould, actorID int64) (Mould, error) {
	if err := s.validate(m); err != nil {
		return Mould{}, err
	}
	if m.NumCavities == 0 {
		m.NumCavities = 1
	}
	if m.Status == "" {
		m.Status = StatusAvailable
	}
	m.IsActive = true
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return Mould{}, err
	}
	s.record(ctx, actorID, "mould.create", created.ID, map[string]any{"mould_number": created.MouldNumber})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, m Mould, actorID int64) error {
	if err := s.validate(m); err != nil {
		return err
	}
	if m.NumCavities == 0 {
		m.NumCavities = 1
	}
	if err := s.repo.Update(ctx, id, m); err != nil {
		return err
	}
	s.record(ctx, actorID, "mould.update", id, map[string]any{"mould_number": m.MouldNumber})
	return nil
}

// SetStatus moves the mould between tool states.
func (s *Service) SetStatus(ctx context.Context, id int64, status string, actorID int64) (Mould, error) {
	if !IsValidStatus(status) {
		return Mould{}, fmt.Errorf("moulds: invalid status %q: %w", status, shared.ErrValidation)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return Mould{}, err
	}
	s.record(ctx, actorID, "mould.status", id, map[string]any{"to": status})
	return s.Get(ctx, id)
}

// RecordShots adds produced shots to the wear counters. Production order
// completion calls this with quantity/cavities.
func (s *Service) RecordShots(ctx context.Context, id int64, shots int64, actorID int64) (Mould, error) {
	if shots <= 0 {
		return Mould{}, fmt.Errorf("moulds: shots must be positive: %w", shared.ErrValidation)
	}
	if err := s.repo.AddShots(ctx, id, shots); err != nil {
		return Mould{}, err
	}
	s.record(ctx, actorID, "mould.record_shots", id, map[string]any{"shots": shots})
	return s.Get(ctx, id)
}

// MaintenancePerformed stamps the service date and zeroes the shot counter.
func (s *Service) MaintenancePerformed(ctx context.Context, id int64, performed time.Time, next *time.Time, actorID int64) (Mould, error) {
	if performed.IsZero() {
		performed = s.now().UTC()
	}
	if next != nil && next.Before(performed) {
		return Mould{}, fmt.Errorf("moulds: next maintenance cannot predate the service: %w", shared.ErrValidation)
	}
	if err := s.repo.ResetMaintenance(ctx, id, performed, next); err != nil {
		return Mould{}, err
	}
	s.record(ctx, actorID, "mould.maintenance_performed", id, map[string]any{"performed": performed.Format("2006-01-02")})
	return s.Get(ctx, id)
}

func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "mould.deactivate", id, nil)
	return nil
}

func (s *Service) LinkedItems(ctx context.Context, mouldID int64) ([]LinkedItem, error) {
	if _, err := s.repo.Get(ctx, mouldID); err != nil {
		return nil, err
	}
	return s.repo.LinkedItems(ctx, mouldID)
}

func (s *Service) SetLinkedItems(ctx context.Context, mouldID int64, itemIDs []int64, actorID int64) error {
	if _, err := s.repo.Get(ctx, mouldID); err != nil {
		return err
	}
	if err := s.repo.SetLinkedItems(ctx, mouldID, itemIDs); err != nil {
		return err
	}
	s.record(ctx, actorID, "mould.set_items", mouldID, map[string]any{"item_ids": itemIDs})
	return nil
}

// CreateSetupSheet versions a new sheet for the mould and item pair. The new
// sheet becomes current and the previous current version is demoted.
func (s *Service) CreateSetupSheet(ctx context.Context, sheet SetupSheet, actorID int64) (SetupSheet, error) {
	if sheet.MouldID == 0 || sheet.ItemID == 0 {
		return SetupSheet{}, fmt.Errorf("moulds: setup sheet needs a mould and an item: %w", shared.ErrValidation)
	}
	if _, err := s.repo.Get(ctx, sheet.MouldID); err != nil {
		return SetupSheet{}, err
	}
	if sheet.CycleTimeSeconds < 0 {
		return SetupSheet{}, fmt.Errorf("moulds: cycle time cannot be negative: %w", shared.ErrValidation)
	}
	sheet.CreatedBy = actorID
	created, err := s.repo.CreateSetupSheet(ctx, sheet)
	if err != nil {
		return SetupSheet{}, err
	}
	s.record(ctx, actorID, "mould.setup_sheet", sheet.MouldID, map[string]any{
		"item_id": sheet.ItemID,
		"version": created.Version,
	})
	return created, nil
}

func (s *Service) ListSetupSheets(ctx context.Context, mouldID int64) ([]SetupSheet, error) {
	if _, err := s.repo.Get(ctx, mouldID); err != nil {
		return nil, err
	}
	return s.repo.ListSetupSheets(ctx, mouldID)
}

func (s *Service) CurrentSetupSheet(ctx context.Context, mouldID, itemID int64) (SetupSheet, error) {
	return s.repo.CurrentSetupSheet(ctx, mouldID, itemID)
}

// CycleTimeFor returns the cycle seconds for scheduling estimates: the current
// setup sheet when one exists, otherwise the mould's nominal cycle.
func (s *Service) CycleTimeFor(ctx context.Context, mouldID, itemID int64) (float64, int, error) {
	m, err := s.repo.Get(ctx, mouldID)
	if err != nil {
		return 0, 0, err
	}
	cycle := m.CycleTimeSeconds
	if sheet, err := s.repo.CurrentSetupSheet(ctx, mouldID, itemID); err == nil && sheet.CycleTimeSeconds > 0 {
		cycle = sheet.CycleTimeSeconds
	}
	cavities := m.NumCavities
	if cavities < 1 {
		cavities = 1
	}
	return cycle, cavities, nil
}

func (s *Service) validate(m Mould) error {
	if strings.TrimSpace(m.MouldNumber) == "" {
		return fmt.Errorf("moulds: mould number is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("moulds: name is required: %w", shared.ErrValidation)
	}
	if m.NumCavities < 0 {
		return fmt.Errorf("moulds: cavities cannot be negative: %w", shared.ErrValidation)
	}
	if m.CycleTimeSeconds < 0 {
		return fmt.Errorf("moulds: cycle time cannot be negative: %w", shared.ErrValidation)
	}
	if m.Status != "" && !IsValidStatus(m.Status) {
		return fmt.Errorf("moulds: invalid status %q: %w", m.Status, shared.ErrValidation)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "mould",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
