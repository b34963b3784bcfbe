package suppliers

import (
	"context"
	"fmt"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// AuditPort records supplier master changes.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, supplier Supplier, actorID int64) (Supplier, error) {
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	supplier.IsActive = true
	created, err := s.repo.Create(ctx, supplier)
	if err != nil {
		return Supplier{}, err
	}
	s.record(ctx, actorID, "supplier.create", created.ID, map[string]any{"code": created.Code, "name": created.Name})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier, actorID int64) error {
	if err := s.validate(supplier); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, supplier); err != nil {
		return err
	}
	s.record(ctx, actorID, "supplier.update", id, map[string]any{"code": supplier.Code})
	return nil
}

func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "supplier.deactivate", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "supplier",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
