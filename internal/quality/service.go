package quality

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id int64) (NonConformance, error)
	List(ctx context.Context, f ListFilter) ([]NonConformance, int, error)
}

// AuditPort records quality actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort keeps the sign-off trail for NCR dispositions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service owns the non-conformance register.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	approvals ApprovalPort
}

// NewService constructs the quality service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetApprovals wires the disposition sign-off trail.
func (s *Service) SetApprovals(approvals ApprovalPort) {
	s.approvals = approvals
}

// Create opens a new NCR in the open status.
func (s *Service) Create(ctx context.Context, req CreateRequest) (NonConformance, error) {
	if req.Description == "" {
		return NonConformance{}, fmt.Errorf("quality: description required: %w", ErrValidation)
	}
	if !validSources[req.Source] {
		return NonConformance{}, fmt.Errorf("quality: unknown source %q: %w", req.Source, ErrValidation)
	}
	if req.Disposition != "" && !validDispositions[req.Disposition] {
		return NonConformance{}, fmt.Errorf("quality: unknown disposition %q: %w", req.Disposition, ErrValidation)
	}
	if req.QuantityAffected < 0 {
		return NonConformance{}, fmt.Errorf("quality: quantity cannot be negative: %w", ErrValidation)
	}

	n := NonConformance{
		Source:            req.Source,
		ItemID:            req.ItemID,
		ProductionOrderID: req.ProductionOrderID,
		CustomerID:        req.CustomerID,
		QuantityAffected:  req.QuantityAffected,
		Description:       req.Description,
		Disposition:       req.Disposition,
		Status:            StatusOpen,
		RaisedBy:          req.ActorID,
		AssignedTo:        req.AssignedTo,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateNumber(ctx, time.Now())
		if err != nil {
			return err
		}
		n.NCRNumber = number
		n, err = tx.Insert(ctx, n)
		return err
	})
	if err != nil {
		return NonConformance{}, err
	}
	s.record(ctx, req.ActorID, "quality.ncr.create", n.ID, map[string]any{
		"ncr_number": n.NCRNumber,
		"source":     n.Source,
	})
	if s.approvals != nil && req.ActorID != 0 {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "quality.ncr",
			RefID:   n.ID,
			ActorID: req.ActorID,
			Action:  shared.ApprovalSubmit,
			Note:    n.NCRNumber,
		})
	}
	return n, nil
}

// Get loads one NCR.
func (s *Service) Get(ctx context.Context, id int64) (NonConformance, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of NCRs.
func (s *Service) List(ctx context.Context, f ListFilter) ([]NonConformance, int, error) {
	if f.Status != "" && f.Status != StatusOpen && f.Status != StatusInvestigating &&
		f.Status != StatusResolved && f.Status != StatusClosed {
		return nil, 0, fmt.Errorf("quality: unknown status %q: %w", f.Status, ErrValidation)
	}
	return s.repo.List(ctx, f)
}

// Update edits an NCR's investigation fields. Closed reports are
// immutable.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (NonConformance, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return NonConformance{}, err
	}
	if n.Status == StatusClosed {
		return NonConformance{}, fmt.Errorf("quality: %s: %w", n.NCRNumber, ErrClosed)
	}

	if req.QuantityAffected != nil {
		if *req.QuantityAffected < 0 {
			return NonConformance{}, fmt.Errorf("quality: quantity cannot be negative: %w", ErrValidation)
		}
		n.QuantityAffected = *req.QuantityAffected
	}
	if req.Description != nil {
		if *req.Description == "" {
			return NonConformance{}, fmt.Errorf("quality: description required: %w", ErrValidation)
		}
		n.Description = *req.Description
	}
	if req.RootCause != nil {
		n.RootCause = *req.RootCause
	}
	if req.CorrectiveAction != nil {
		n.CorrectiveAction = *req.CorrectiveAction
	}
	if req.Disposition != nil {
		if *req.Disposition != "" && !validDispositions[*req.Disposition] {
			return NonConformance{}, fmt.Errorf("quality: unknown disposition %q: %w", *req.Disposition, ErrValidation)
		}
		n.Disposition = *req.Disposition
	}
	if req.AssignedTo != nil {
		n.AssignedTo = req.AssignedTo
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Update(ctx, n)
	})
	if err != nil {
		return NonConformance{}, err
	}
	s.record(ctx, req.ActorID, "quality.ncr.update", n.ID, map[string]any{"ncr_number": n.NCRNumber})
	return s.repo.Get(ctx, id)
}

// UpdateStatus moves an NCR through its lifecycle. Entering resolved
// stamps resolved_at; leaving it clears the stamp again.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to string, actorID int64) (NonConformance, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return NonConformance{}, err
	}
	if !CanTransition(n.Status, to) {
		return NonConformance{}, fmt.Errorf("quality: %s -> %s: %w", n.Status, to, ErrInvalidTransition)
	}
	if n.Status == to {
		return n, nil
	}

	resolvedAt := n.ResolvedAt
	switch to {
	case StatusResolved:
		now := time.Now()
		resolvedAt = &now
	case StatusOpen, StatusInvestigating:
		resolvedAt = nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.SetStatus(ctx, id, n.Status, to, resolvedAt)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("quality: status changed concurrently: %w", ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		return NonConformance{}, err
	}
	s.record(ctx, actorID, "quality.ncr.status", n.ID, map[string]any{
		"ncr_number": n.NCRNumber,
		"from":       n.Status,
		"to":         to,
	})
	// Resolving an NCR is the disposition sign-off.
	if s.approvals != nil && to == StatusResolved && actorID != 0 {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "quality.ncr",
			RefID:   n.ID,
			ActorID: actorID,
			Action:  shared.ApprovalApprove,
			Note:    n.Disposition,
		})
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ncr",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
