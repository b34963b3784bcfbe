package customers

import "time"

// Customer represents a trading customer.
type Customer struct {
	ID             int64  `json:"id"`
	CustomerNumber string `json:"customer_number"`
	Name           string `json:"name"`
	ContactName    string `json:"contact_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`

	BillingAddress   string `json:"billing_address"`
	DeliveryAddress  string `json:"delivery_address"`
	DeliveryCity     string `json:"delivery_city"`
	DeliveryPostcode string `json:"delivery_postcode"`

	CreditTermsDays int    `json:"credit_terms_days"`
	IsJIT           bool   `json:"is_jit"`
	IsActive        bool   `json:"is_active"`
	Notes           string `json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
