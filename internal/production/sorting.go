package production

import (
	"context"
	"fmt"
	"time"
)

// SortingQueue lists sorting tasks, the pending ones by default.
func (s *Service) SortingQueue(ctx context.Context, f TaskFilter) ([]SortingTask, error) {
	if f.Status == "" {
		f.Status = SortingPending
	}
	if f.SortingType != "" && !IsValidSortingType(f.SortingType) {
		return nil, fmt.Errorf("production: unknown sorting type %q: %w", f.SortingType, ErrValidation)
	}
	return s.repo.ListTasks(ctx, f)
}

// SortingCounts tallies the pending queue per type, with every type
// present so the board always shows all four trays.
func (s *Service) SortingCounts(ctx context.Context) (map[string]int, error) {
	counts, err := s.repo.PendingCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range SortingTypes {
		if _, ok := counts[t]; !ok {
			counts[t] = 0
		}
	}
	return counts, nil
}

// GetTask loads one sorting task.
func (s *Service) GetTask(ctx context.Context, id int64) (SortingTask, error) {
	return s.repo.GetTask(ctx, id)
}

// StartSorting claims a pending task off the queue.
func (s *Service) StartSorting(ctx context.Context, taskID, actorID int64) (SortingTask, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return SortingTask{}, err
	}
	if task.Status != SortingPending {
		return SortingTask{}, ErrInvalidStatus
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.StartTask(ctx, taskID)
	})
	if err != nil {
		return SortingTask{}, err
	}
	s.recordAs(ctx, actorID, "production.sorting_start", "sorting_task", taskID, map[string]any{
		"order_number": task.OrderNumber,
		"sorting_type": task.SortingType,
	})
	return s.repo.GetTask(ctx, taskID)
}

// CompleteSorting closes a task with the counted quantities. The good
// parts go into the chosen location under the order's batch, and the
// order's tallies pick up both counts.
func (s *Service) CompleteSorting(ctx context.Context, req CompleteSortingRequest) (SortingTask, error) {
	if req.ActualQuantity < 0 || req.RejectedQuantity < 0 {
		return SortingTask{}, fmt.Errorf("production: quantities cannot be negative: %w", ErrValidation)
	}
	if req.ActualQuantity+req.RejectedQuantity == 0 {
		return SortingTask{}, fmt.Errorf("production: nothing counted: %w", ErrValidation)
	}
	if req.ActualQuantity > 0 && req.LocationID == 0 {
		return SortingTask{}, fmt.Errorf("production: a location is required for counted parts: %w", ErrValidation)
	}
	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		return SortingTask{}, err
	}
	if task.Status == SortingCompleted {
		return SortingTask{}, ErrInvalidStatus
	}

	now := time.Now()
	err = s.mutate(ctx, req.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CompleteTask(ctx, req.TaskID, req.ActualQuantity, req.RejectedQuantity, req.LocationID, req.ActorID, now); err != nil {
			return err
		}
		return tx.AddSortedQuantities(ctx, task.ProductionOrderID, req.ActualQuantity, req.RejectedQuantity)
	})
	if err != nil {
		return SortingTask{}, err
	}

	if req.ActualQuantity > 0 && s.inventory != nil {
		err := s.inventory.ReceiveProduction(ctx, ProductionReceipt{
			ItemID:         task.ItemID,
			LocationID:     req.LocationID,
			Quantity:       req.ActualQuantity,
			BatchNumber:    task.BatchNumber,
			Reference:      task.OrderNumber,
			Notes:          fmt.Sprintf("Sorted and counted - %s", task.SortingType),
			ActorID:        req.ActorID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			return SortingTask{}, fmt.Errorf("receive sorted parts: %w", err)
		}
	}
	s.recordAs(ctx, req.ActorID, "production.sorting_complete", "sorting_task", req.TaskID, map[string]any{
		"order_number": task.OrderNumber,
		"sorting_type": task.SortingType,
		"actual":       req.ActualQuantity,
		"rejected":     req.RejectedQuantity,
	})
	return s.repo.GetTask(ctx, req.TaskID)
}
