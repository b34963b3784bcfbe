package customers

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

// Service coordinates customer operations.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns customers matching filters.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	return s.repo.List(ctx, filters)
}

// Get fetches one customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// Search finds customers by name or number, capped at 20 rows.
func (s *Service) Search(ctx context.Context, term string) ([]Customer, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []Customer{}, nil
	}
	return s.repo.Search(ctx, term, 20)
}

// Create allocates a customer number and stores the customer.
func (s *Service) Create(ctx context.Context, c Customer, actorID int64) (Customer, error) {
	if err := s.validate(c); err != nil {
		return Customer{}, err
	}
	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return Customer{}, err
	}
	c.CustomerNumber = number
	if c.CreditTermsDays <= 0 {
		c.CreditTermsDays = 30
	}
	c.IsActive = true
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, actorID, "masterdata:customer_create", created.ID, map[string]any{"customer_number": created.CustomerNumber})
	return created, nil
}

// Update stores changes to an existing customer.
func (s *Service) Update(ctx context.Context, id int64, c Customer, actorID int64) error {
	if err := s.validate(c); err != nil {
		return err
	}
	if c.CreditTermsDays <= 0 {
		c.CreditTermsDays = 30
	}
	if err := s.repo.Update(ctx, id, c); err != nil {
		return err
	}
	s.record(ctx, actorID, "masterdata:customer_update", id, nil)
	return nil
}

// Deactivate soft-deletes a customer.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "masterdata:customer_deactivate", id, nil)
	return nil
}

func (s *Service) validate(c Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("customers: name is required: %w", shared.ErrValidation)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("customers: invalid email: %w", shared.ErrValidation)
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
		Entity:   "customers",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
