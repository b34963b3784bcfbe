package machines

import (
	"context"
	"fmt"
	"strings"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// Most presses on the floor are Borche, so new machines default to it.
const defaultManufacturer = "Borche"

// AuditPort records machine master changes.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Service owns machine business rules.
type Service struct {
	repo  Repository
	audit AuditPort
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Machine, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ListActive(ctx context.Context) ([]Machine, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Machine, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, m Machine, actorID int64) (Machine, error) {
	if err := s.validate(m); err != nil {
		return Machine{}, err
	}
	if strings.TrimSpace(m.Manufacturer) == "" {
		m.Manufacturer = defaultManufacturer
	}
	if m.Status == "" {
		m.Status = StatusIdle
	}
	m.IsActive = true
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return Machine{}, err
	}
	s.record(ctx, actorID, "machine.create", created.ID, map[string]any{"code": created.Code, "name": created.Name})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, m Machine, actorID int64) error {
	if err := s.validate(m); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, m); err != nil {
		return err
	}
	s.record(ctx, actorID, "machine.update", id, map[string]any{"code": m.Code})
	return nil
}

// SetStatus moves the machine between run states. The current mould is kept
// unless the machine stops running.
func (s *Service) SetStatus(ctx context.Context, id int64, status string, actorID int64) (Machine, error) {
	if !IsValidStatus(status) {
		return Machine{}, fmt.Errorf("machines: invalid status %q: %w", status, shared.ErrValidation)
	}
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Machine{}, err
	}
	mouldID := m.CurrentMouldID
	if status != StatusRunning {
		mouldID = nil
	}
	if err := s.repo.SetStatus(ctx, id, status, mouldID); err != nil {
		return Machine{}, err
	}
	s.record(ctx, actorID, "machine.status", id, map[string]any{"from": m.Status, "to": status})
	return s.repo.Get(ctx, id)
}

// AssignMould marks the machine running with the given mould loaded.
// Production order start uses this.
func (s *Service) AssignMould(ctx context.Context, id int64, mouldID int64) error {
	return s.repo.SetStatus(ctx, id, StatusRunning, &mouldID)
}

// ReleaseMould returns the machine to idle and clears the loaded mould.
func (s *Service) ReleaseMould(ctx context.Context, id int64) error {
	return s.repo.SetStatus(ctx, id, StatusIdle, nil)
}

func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "machine.deactivate", id, nil)
	return nil
}

func (s *Service) validate(m Machine) error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("machines: code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("machines: name is required: %w", shared.ErrValidation)
	}
	if m.Tonnage < 0 {
		return fmt.Errorf("machines: tonnage cannot be negative: %w", shared.ErrValidation)
	}
	if m.Status != "" && !IsValidStatus(m.Status) {
		return fmt.Errorf("machines: invalid status %q: %w", m.Status, shared.ErrValidation)
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
		Entity:   "machine",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
