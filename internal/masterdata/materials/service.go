package materials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// AuditPort records material master changes.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Service owns material and masterbatch business rules.
type Service struct {
	repo  Repository
	audit AuditPort
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Material, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Material, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Material{}, fmt.Errorf("materials: code is required: %w", shared.ErrValidation)
	}
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, m Material, actorID int64) (Material, error) {
	if err := validateMaterial(m); err != nil {
		return Material{}, err
	}
	m.IsActive = true
	if m.CostPerKg.IsPositive() {
		now := time.Now().UTC()
		m.LastPriceUpdate = &now
	}
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return Material{}, err
	}
	s.record(ctx, actorID, "material.create", created.ID, map[string]any{"code": created.Code, "name": created.Name})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, m Material, actorID int64) (Material, error) {
	if err := validateMaterial(m); err != nil {
		return Material{}, err
	}
	if err := s.repo.Update(ctx, id, m); err != nil {
		return Material{}, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Material{}, err
	}
	s.record(ctx, actorID, "material.update", id, map[string]any{"code": updated.Code})
	return updated, nil
}

// UpdatePrice changes cost_per_kg and appends the change to the price history.
func (s *Service) UpdatePrice(ctx context.Context, id int64, cost decimal.Decimal, effective time.Time, reason string, actorID int64) (Material, error) {
	if cost.IsNegative() {
		return Material{}, fmt.Errorf("materials: cost per kg cannot be negative: %w", shared.ErrValidation)
	}
	if effective.IsZero() {
		effective = time.Now().UTC()
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "price update"
	}
	if err := s.repo.UpdatePrice(ctx, id, cost, effective, reason, actorID); err != nil {
		return Material{}, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Material{}, err
	}
	s.record(ctx, actorID, "material.price_update", id, map[string]any{
		"cost_per_kg": cost.String(),
		"reason":      reason,
	})
	return updated, nil
}

func (s *Service) PriceHistory(ctx context.Context, materialID int64) ([]PriceHistory, error) {
	if _, err := s.repo.Get(ctx, materialID); err != nil {
		return nil, err
	}
	return s.repo.PriceHistory(ctx, materialID)
}

// Deactivate soft-disables a material so it no longer appears in pickers.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}
	m.IsActive = false
	if err := s.repo.Update(ctx, id, m); err != nil {
		return err
	}
	s.record(ctx, actorID, "material.deactivate", id, map[string]any{"code": m.Code})
	return nil
}

func (s *Service) ListMasterbatches(ctx context.Context, filters shared.ListFilters) ([]Masterbatch, int, error) {
	return s.repo.ListMasterbatches(ctx, filters)
}

func (s *Service) GetMasterbatch(ctx context.Context, id int64) (Masterbatch, error) {
	return s.repo.GetMasterbatch(ctx, id)
}

func (s *Service) CreateMasterbatch(ctx context.Context, mb Masterbatch, actorID int64) (Masterbatch, error) {
	if err := validateMasterbatch(mb); err != nil {
		return Masterbatch{}, err
	}
	mb.IsActive = true
	created, err := s.repo.CreateMasterbatch(ctx, mb)
	if err != nil {
		return Masterbatch{}, err
	}
	s.record(ctx, actorID, "masterbatch.create", created.ID, map[string]any{"code": created.Code, "colour": created.Colour})
	return created, nil
}

func (s *Service) UpdateMasterbatch(ctx context.Context, id int64, mb Masterbatch, actorID int64) (Masterbatch, error) {
	if err := validateMasterbatch(mb); err != nil {
		return Masterbatch{}, err
	}
	if err := s.repo.UpdateMasterbatch(ctx, id, mb); err != nil {
		return Masterbatch{}, err
	}
	updated, err := s.repo.GetMasterbatch(ctx, id)
	if err != nil {
		return Masterbatch{}, err
	}
	s.record(ctx, actorID, "masterbatch.update", id, map[string]any{"code": updated.Code})
	return updated, nil
}

func validateMaterial(m Material) error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("materials: code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("materials: name is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(m.MaterialType) == "" {
		return fmt.Errorf("materials: material type is required: %w", shared.ErrValidation)
	}
	if m.CostPerKg.IsNegative() {
		return fmt.Errorf("materials: cost per kg cannot be negative: %w", shared.ErrValidation)
	}
	if m.Density < 0 {
		return fmt.Errorf("materials: density cannot be negative: %w", shared.ErrValidation)
	}
	if m.BarrelTempMinC > 0 && m.BarrelTempMaxC > 0 && m.BarrelTempMinC > m.BarrelTempMaxC {
		return fmt.Errorf("materials: barrel temperature window is inverted: %w", shared.ErrValidation)
	}
	if m.MouldTempMinC > 0 && m.MouldTempMaxC > 0 && m.MouldTempMinC > m.MouldTempMaxC {
		return fmt.Errorf("materials: mould temperature window is inverted: %w", shared.ErrValidation)
	}
	return nil
}

func validateMasterbatch(mb Masterbatch) error {
	if strings.TrimSpace(mb.Code) == "" {
		return fmt.Errorf("materials: masterbatch code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(mb.Colour) == "" {
		return fmt.Errorf("materials: masterbatch colour is required: %w", shared.ErrValidation)
	}
	if mb.MinRatioPercent > 0 && mb.MaxRatioPercent > 0 && mb.MinRatioPercent > mb.MaxRatioPercent {
		return fmt.Errorf("materials: ratio window is inverted: %w", shared.ErrValidation)
	}
	if mb.TypicalRatioPercent < 0 || mb.TypicalRatioPercent > 100 {
		return fmt.Errorf("materials: typical ratio must be between 0 and 100: %w", shared.ErrValidation)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "material",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
