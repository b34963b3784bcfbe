package delivery

import (
	"errors"
	"time"
)

// Delivery statuses.
const (
	StatusPending    = "pending"
	StatusDispatched = "dispatched"
	StatusDelivered  = "delivered"
)

// Delivery is one physical despatch against a sales order.
type Delivery struct {
	ID             int64      `json:"id"`
	DeliveryNumber string     `json:"delivery_number"`
	SalesOrderID   int64      `json:"sales_order_id"`
	DeliveryMethod string     `json:"delivery_method"`
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	DriverName     string     `json:"driver_name"`
	NumPackages    int        `json:"num_packages"`
	TotalWeightKg  float64    `json:"total_weight_kg"`
	DispatchDate   *time.Time `json:"dispatch_date"`
	Status         string     `json:"status"`
	SignedNoteFile string     `json:"signed_note_file"`
	Notes          string     `json:"notes"`
	CreatedBy      *int64     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`

	// Joined from the sales order on reads.
	OrderNumber  string `json:"order_number"`
	CustomerName string `json:"customer_name"`
}

// RequestedLine asks for a quantity of one order line on a dispatch.
type RequestedLine struct {
	LineID   int64   `json:"line_id"`
	Quantity float64 `json:"quantity"`
}

// DispatchRequest sends stock out against a sales order. Lines over-ask
// safely: quantities cap at each line's remaining amount.
type DispatchRequest struct {
	OrderID        int64
	Lines          []RequestedLine
	DeliveryMethod string
	Carrier        string
	TrackingNumber string
	DriverName     string
	NumPackages    int
	TotalWeightKg  float64
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// ListFilter narrows the delivery list.
type ListFilter struct {
	SalesOrderID int64
	Status       string
	Page         int
	Limit        int
}

var (
	ErrNotFound          = errors.New("delivery: not found")
	ErrValidation        = errors.New("delivery: validation failed")
	ErrNotDispatchable   = errors.New("delivery: order is not ready to ship")
	ErrNothingToShip     = errors.New("delivery: nothing left to ship")
	ErrInsufficientStock = errors.New("delivery: insufficient stock to cover the dispatch")
)
