package oee

import (
	"context"

	"github.com/mouldworks/mouldworks/internal/masterdata/machines"
)

// MachinesAdapter satisfies MachineService on top of masterdata.
type MachinesAdapter struct {
	Machines *machines.Service
}

func (a *MachinesAdapter) ActiveMachines(ctx context.Context) ([]MachineInfo, error) {
	active, err := a.Machines.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MachineInfo, 0, len(active))
	for _, m := range active {
		out = append(out, MachineInfo{ID: m.ID, Name: m.Name})
	}
	return out, nil
}
