package suppliers

import (
	"time"
)

// Supplier represents a raw material or masterbatch vendor.
type Supplier struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	ContactName    string    `json:"contact_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	PaymentTerms   string    `json:"payment_terms"`
	LeadTimeDays   int       `json:"lead_time_days"`
	MinimumOrderKg float64   `json:"minimum_order_kg"`
	IsActive       bool      `json:"is_active"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
