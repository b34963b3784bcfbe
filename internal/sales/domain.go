package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sales order statuses.
const (
	StatusNew              = "new"
	StatusInProduction     = "in_production"
	StatusReadyToShip      = "ready_to_ship"
	StatusPartiallyShipped = "partially_shipped"
	StatusDispatched       = "dispatched"
	StatusDelivered        = "delivered"
	StatusCancelled        = "cancelled"
	StatusArchived         = "archived"
)

// transitions is the fixed table of allowed next states. Anything not
// listed is rejected; archived is terminal.
var transitions = map[string][]string{
	StatusNew:              {StatusInProduction, StatusReadyToShip, StatusCancelled},
	StatusInProduction:     {StatusReadyToShip, StatusNew, StatusCancelled},
	StatusReadyToShip:      {StatusDispatched, StatusPartiallyShipped, StatusInProduction},
	StatusPartiallyShipped: {StatusDispatched, StatusReadyToShip},
	StatusDispatched:       {StatusDelivered},
	StatusDelivered:        {StatusArchived},
	StatusCancelled:        {StatusNew, StatusArchived},
	StatusArchived:         {},
}

// CanTransition reports whether an order may move from one status to
// another. A same-status move is treated as a no-op and allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the valid next states for a status.
func AllowedTransitions(from string) []string {
	return transitions[from]
}

// IsValidStatus reports whether s names a known order status.
func IsValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// DefaultTaxRatePercent is the UK standard VAT rate applied to new orders.
const DefaultTaxRatePercent = 20.0

// SalesOrder is a customer order with its money summary and despatch
// address block. Addresses default from the customer at creation and are
// then frozen on the order.
type SalesOrder struct {
	ID           int64      `json:"id"`
	OrderNumber  string     `json:"order_number"`
	CustomerID   int64      `json:"customer_id"`
	CustomerPO   string     `json:"customer_po"`
	OrderDate    time.Time  `json:"order_date"`
	RequiredDate *time.Time `json:"required_date"`
	Status       string     `json:"status"`

	DeliveryName     string `json:"delivery_name"`
	DeliveryAddress  string `json:"delivery_address"`
	DeliveryCity     string `json:"delivery_city"`
	DeliveryPostcode string `json:"delivery_postcode"`
	DeliveryMethod   string `json:"delivery_method"`

	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	TaxRatePercent float64         `json:"tax_rate_percent"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`

	Notes         string    `json:"notes"`
	InternalNotes string    `json:"internal_notes"`
	CreatedBy     *int64    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Joined from customers on reads.
	CustomerName string `json:"customer_name"`

	Lines []SalesOrderLine `json:"lines,omitempty"`
}

// CanEditLines reports whether lines may still be added or removed.
func (o SalesOrder) CanEditLines() bool {
	return o.Status == StatusNew || o.Status == StatusInProduction
}

// CanDispatch reports whether stock may go out against the order.
func (o SalesOrder) CanDispatch() bool {
	return o.Status == StatusReadyToShip || o.Status == StatusPartiallyShipped
}

// CanArchive reports whether the order may be moved to the archive.
func (o SalesOrder) CanArchive() bool {
	return o.Status == StatusDelivered || o.Status == StatusCancelled
}

// IsUrgent flags orders due within three days.
func (o SalesOrder) IsUrgent(now time.Time) bool {
	if o.RequiredDate == nil {
		return false
	}
	return o.RequiredDate.Sub(now) <= 3*24*time.Hour
}

// SalesOrderLine is one ordered item, or a free-text custom line that
// never touches stock.
type SalesOrderLine struct {
	ID           int64  `json:"id"`
	SalesOrderID int64  `json:"sales_order_id"`
	LineNumber   int    `json:"line_number"`
	ItemID       *int64 `json:"item_id"`

	IsCustomItem      bool   `json:"is_custom_item"`
	CustomSKU         string `json:"custom_sku"`
	CustomDescription string `json:"custom_description"`

	QuantityOrdered   float64 `json:"quantity_ordered"`
	QuantityAllocated float64 `json:"quantity_allocated"`
	QuantityShipped   float64 `json:"quantity_shipped"`

	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent float64         `json:"discount_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`

	// Joined from items on reads; custom lines carry their own text.
	ItemSKU  string `json:"item_sku"`
	ItemName string `json:"item_name"`
}

// Remaining is the quantity still to ship.
func (l SalesOrderLine) Remaining() float64 {
	remaining := l.QuantityOrdered - l.QuantityShipped
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DisplaySKU prefers the item sku and falls back to the custom one.
func (l SalesOrderLine) DisplaySKU() string {
	if l.ItemSKU != "" {
		return l.ItemSKU
	}
	return l.CustomSKU
}

// DisplayName prefers the item name and falls back to the custom text.
func (l SalesOrderLine) DisplayName() string {
	if l.ItemName != "" {
		return l.ItemName
	}
	return l.CustomDescription
}

/// ComputeTotal prices the line: gross less the percentage discount.
func (l SalesOrderLine) ComputeTotal() decimal.Decimal {
	gross := l.UnitPrice.Mul(decimal.NewFromFloat(l.QuantityOrdered))
	if l.DiscountPercent > 0 {
		discount := gross.Mul(decimal.NewFromFloat(l.DiscountPercent / 100))
		gross = gross.Sub(discount)
	}
	return gross.Round(2)
}

// Totals is the computed money summary of an order.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ComputeTotals sums line totals and applies VAT over goods plus carriage.
func ComputeTotals(lines []SalesOrderLine, shipping decimal.Decimal, taxRatePercent float64) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.ComputeTotal())
	}
	taxable := subtotal.Add(shipping)
	tax := decimal.Zero
	if taxRatePercent > 0 {
		tax = taxable.Mul(decimal.NewFromFloat(taxRatePercent / 100)).Round(2)
	}
	return Totals{
		Subtotal:    subtotal.Round(2),
		TaxAmount:   tax,
		TotalAmount: taxable.Add(tax).Round(2),
	}
}

// StockCheckLine reports coverage for one stock line of an order.
type StockCheckLine struct {
	LineID    int64   `json:"line_id"`
	ItemID    int64   `json:"item_id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Required  float64 `json:"required"`
	OnHand    float64 `json:"on_hand"`
	Shortfall float64 `json:"shortfall"`
}

// ProcessResult summarises what processing an order did.
type ProcessResult struct {
	Status         string   `json:"status"`
	OrdersRaised   int      `json:"orders_raised"`
	OrdersToppedUp int      `json:"orders_topped_up"`
	ShortItems     []string `json:"short_items"`
}

// AllocationResult summarises a greedy stock reservation pass.
type AllocationResult struct {
	Allocated map[int64]float64 `json:"allocated"` // line id -> quantity reserved this pass
	Complete  bool              `json:"complete"`
}

// ============================================================================
// Inputs and filters
// ============================================================================

// CreateOrderRequest raises a new sales order. Empty address fields
// default from the customer record.
type CreateOrderRequest struct {
	CustomerID       int64
	CustomerPO       string
	RequiredDate     *time.Time
	DeliveryName     string
	DeliveryAddress  string
	DeliveryCity     string
	DeliveryPostcode string
	DeliveryMethod   string
	ShippingCost     decimal.Decimal
	TaxRatePercent   *float64
	Notes            string
	InternalNotes    string
	ActorID          int64
}

// UpdateOrderRequest edits order header fields and recalculates totals.
type UpdateOrderRequest struct {
	CustomerPO       string
	RequiredDate     *time.Time
	DeliveryName     string
	DeliveryAddress  string
	DeliveryCity     string
	DeliveryPostcode string
	DeliveryMethod   string
	ShippingCost     decimal.Decimal
	TaxRatePercent   *float64
	Notes            string
	InternalNotes    string
	ActorID          int64
}

// AddLineRequest appends a line. Item lines price from the item when no
// unit price is given; custom lines need their own text and price.
type AddLineRequest struct {
	ItemID            *int64
	IsCustomItem      bool
	CustomSKU         string
	CustomDescription string
	Quantity          float64
	UnitPrice         *decimal.Decimal
	DiscountPercent   float64
	ActorID           int64
}

// ShipmentLine asks for a quantity of one line to go out.
type ShipmentLine struct {
	LineID   int64
	Quantity float64
}

// ShippedLine reports what actually went out for stock deduction.
type ShippedLine struct {
	LineID   int64
	ItemID   int64
	SKU      string
	Quantity float64
}

// ShipmentResult is the outcome of applying a dispatch to an order.
type ShipmentResult struct {
	Order    SalesOrder
	Shipped  []ShippedLine
	Complete bool
}

// OrderFilter narrows the order list.
type OrderFilter struct {
	Search     string
	Status     string
	CustomerID int64
	// IncludeArchived widens the default listing, which hides archive rows.
	IncludeArchived bool
	Page            int
	Limit           int
}

// ============================================================================
// Errors
// ============================================================================

var (
	ErrNotFound          = errors.New("sales: not found")
	ErrValidation        = errors.New("sales: validation failed")
	ErrInvalidTransition = errors.New("sales: status transition not allowed")
	ErrLinesLocked       = errors.New("sales: lines can only change on new or in-production orders")
	ErrNotDispatchable   = errors.New("sales: order is not ready to ship")
	ErrNothingToShip     = errors.New("sales: nothing left to ship")
)

// TransitionError wraps ErrInvalidTransition with the allowed set for the
// API response.
func TransitionError(from, to string) error {
	allowed := AllowedTransitions(from)
	if len(allowed) == 0 {
		return fmt.Errorf("sales: %s is terminal: %w", from, ErrInvalidTransition)
	}
	return fmt.Errorf("sales: cannot move %s to %s (allowed: %s): %w",
		from, to, strings.Join(allowed, ", "), ErrInvalidTransition)
}
