package production

import (
	"context"
	"fmt"

	"github.com/mouldworks/mouldworks/internal/masterdata/machines"
	"github.com/mouldworks/mouldworks/internal/masterdata/moulds"
)

// MachineAdapter adapts the machines.Service to the MachineService
// interface required by the production service.
type MachineAdapter struct {
	service *machines.Service
}

// NewMachineAdapter creates a new machine adapter.
func NewMachineAdapter(service *machines.Service) *MachineAdapter {
	return &MachineAdapter{service: service}
}

// MarkRunning flips the press to running and hangs the mould in it.
func (a *MachineAdapter) MarkRunning(ctx context.Context, machineID int64, mouldID *int64, actorID int64) error {
	if a.service == nil {
		return fmt.Errorf("machine service not initialized")
	}
	if _, err := a.service.SetStatus(ctx, machineID, machines.StatusRunning, actorID); err != nil {
		return fmt.Errorf("set machine running: %w", err)
	}
	if mouldID != nil {
		if err := a.service.AssignMould(ctx, machineID, *mouldID); err != nil {
			return fmt.Errorf("assign mould: %w", err)
		}
	}
	return nil
}

// MarkIdle flips the press back to idle, optionally pulling the mould.
func (a *MachineAdapter) MarkIdle(ctx context.Context, machineID int64, releaseMould bool, actorID int64) error {
	if a.service == nil {
		return fmt.Errorf("machine service not initialized")
	}
	if _, err := a.service.SetStatus(ctx, machineID, machines.StatusIdle, actorID); err != nil {
		return fmt.Errorf("set machine idle: %w", err)
	}
	if releaseMould {
		if err := a.service.ReleaseMould(ctx, machineID); err != nil {
			return fmt.Errorf("release mould: %w", err)
		}
	}
	return nil
}

// MouldAdapter adapts the moulds.Service to the MouldService interface
// required by the production service.
type MouldAdapter struct {
	service *moulds.Service
}

// NewMouldAdapter creates a new mould adapter.
func NewMouldAdapter(service *moulds.Service) *MouldAdapter {
	return &MouldAdapter{service: service}
}

// CycleTime resolves cycle seconds and cavities for a mould and item,
// preferring the current setup sheet over the mould's own figures.
func (a *MouldAdapter) CycleTime(ctx context.Context, mouldID, itemID int64) (float64, int, error) {
	if a.service == nil {
		return 0, 0, fmt.Errorf("mould service not initialized")
	}
	return a.service.CycleTimeFor(ctx, mouldID, itemID)
}

// AddShots credits shots against the mould's wear counter.
func (a *MouldAdapter) AddShots(ctx context.Context, mouldID, shots int64, actorID int64) error {
	if a.service == nil {
		return fmt.Errorf("mould service not initialized")
	}
	if _, err := a.service.RecordShots(ctx, mouldID, shots, actorID); err != nil {
		return fmt.Errorf("record shots: %w", err)
	}
	return nil
}
