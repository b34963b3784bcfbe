package machines

import (
	"time"
)

// Machine statuses reported on the schedule board.
const (
	StatusRunning     = "running"
	StatusIdle        = "idle"
	StatusMaintenance = "maintenance"
	StatusOffline     = "offline"
)

// ValidStatuses lists the accepted machine statuses.
var ValidStatuses = []string{StatusRunning, StatusIdle, StatusMaintenance, StatusOffline}

// Machine represents an injection moulding press.
type Machine struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Manufacturer   string    `json:"manufacturer"`
	Model          string    `json:"model"`
	Tonnage        float64   `json:"tonnage"`
	Year           int       `json:"year"`
	Status         string    `json:"status"`
	CurrentMouldID *int64    `json:"current_mould_id"`
	DisplayOrder   int       `json:"display_order"`
	IsActive       bool      `json:"is_active"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsValidStatus reports whether s is an accepted machine status.
func IsValidStatus(s string) bool {
	for _, status := range ValidStatuses {
		if s == status {
			return true
		}
	}
	return false
}
