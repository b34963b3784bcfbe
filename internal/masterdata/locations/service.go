package locations

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Service coordinates location operations.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// GenerateCode builds a warehouse code such as CONT-R01-B02-S03.
func GenerateCode(zone string, row, bay, shelf int) string {
	code := fmt.Sprintf("%s-R%02d-B%02d", strings.ToUpper(zone), row, bay)
	if shelf > 0 {
		code += fmt.Sprintf("-S%02d", shelf)
	}
	return code
}

// List returns locations matching filters.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error) {
	return s.repo.List(ctx, filters)
}

// Get fetches one location.
func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode fetches a location by its code, case-insensitive.
func (s *Service) GetByCode(ctx context.Context, code string) (Location, error) {
	if strings.TrimSpace(code) == "" {
		return Location{}, shared.ErrRequiredField
	}
	return s.repo.GetByCode(ctx, code)
}

// Contents lists stock currently held at the location.
func (s *Service) Contents(ctx context.Context, id int64) ([]Contents, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Contents(ctx, id)
}

// Create validates and stores a new location.
func (s *Service) Create(ctx context.Context, loc Location, actorID int64) (Location, error) {
	if err := s.validate(loc); err != nil {
		return Location{}, err
	}
	loc.IsActive = true
	created, err := s.repo.Create(ctx, loc)
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, actorID, "masterdata:location_create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// Update validates and stores changes to an existing location.
func (s *Service) Update(ctx context.Context, id int64, loc Location, actorID int64) error {
	if err := s.validate(loc); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, loc); err != nil {
		return err
	}
	s.record(ctx, actorID, "masterdata:location_update", id, map[string]any{"code": loc.Code})
	return nil
}

// Deactivate soft-deletes a location.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	contents, err := s.repo.Contents(ctx, id)
	if err != nil {
		return err
	}
	if len(contents) > 0 {
		return fmt.Errorf("locations: cannot deactivate while stock remains: %w", shared.ErrValidation)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "masterdata:location_deactivate", id, nil)
	return nil
}

func (s *Service) validate(loc Location) error {
	if strings.TrimSpace(loc.Code) == "" {
		return fmt.Errorf("locations: code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(loc.Name) == "" {
		return fmt.Errorf("locations: name is required: %w", shared.ErrValidation)
	}
	if loc.LocationType != "" && !IsValidType(loc.LocationType) {
		return fmt.Errorf("locations: unknown location type %q: %w", loc.LocationType, shared.ErrValidation)
	}
	if loc.MaxCapacity < 0 {
		return fmt.Errorf("locations: max capacity must be >= 0: %w", shared.ErrValidation)
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
		Entity:   "locations",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
