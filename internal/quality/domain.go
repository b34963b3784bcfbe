package quality

import (
	"errors"
	"time"
)

// Non-conformance sources.
const (
	SourceInternal = "internal"
	SourceCustomer = "customer"
	SourceSupplier = "supplier"
)

// Dispositions for affected stock.
const (
	DispositionRework  = "rework"
	DispositionScrap   = "scrap"
	DispositionCredit  = "credit"
	DispositionUseAsIs = "use_as_is"
)

// NCR statuses.
const (
	StatusOpen          = "open"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusClosed        = "closed"
)

var validSources = map[string]bool{
	SourceInternal: true,
	SourceCustomer: true,
	SourceSupplier: true,
}

var validDispositions = map[string]bool{
	DispositionRework:  true,
	DispositionScrap:   true,
	DispositionCredit:  true,
	DispositionUseAsIs: true,
}

// ncrTransitions lists the allowed status moves. Closed is terminal;
// resolved reports can be reopened if the fix did not stick.
var ncrTransitions = map[string][]string{
	StatusOpen:          {StatusInvestigating, StatusResolved, StatusClosed},
	StatusInvestigating: {StatusOpen, StatusResolved, StatusClosed},
	StatusResolved:      {StatusOpen, StatusClosed},
	StatusClosed:        {},
}

// CanTransition reports whether an NCR may move from one status to
// another. Staying put is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range ncrTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NonConformance is a quality incident report: bad parts found on the
// floor, a customer complaint, or rejected goods inward.
type NonConformance struct {
	ID        int64  `json:"id"`
	NCRNumber string `json:"ncr_number"`
	Source    string `json:"source"`

	ItemID            *int64 `json:"item_id"`
	ProductionOrderID *int64 `json:"production_order_id"`
	CustomerID        *int64 `json:"customer_id"`

	QuantityAffected int64  `json:"quantity_affected"`
	Description      string `json:"description"`
	RootCause        string `json:"root_cause"`
	CorrectiveAction string `json:"corrective_action"`
	Disposition      string `json:"disposition"`
	Status           string `json:"status"`

	RaisedBy   int64      `json:"raised_by"`
	AssignedTo *int64     `json:"assigned_to"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Joined on reads.
	ItemSKU      string `json:"item_sku"`
	ItemName     string `json:"item_name"`
	CustomerName string `json:"customer_name"`
	OrderNumber  string `json:"order_number"`
}

// CreateRequest opens a new NCR.
type CreateRequest struct {
	Source            string
	ItemID            *int64
	ProductionOrderID *int64
	CustomerID        *int64
	QuantityAffected  int64
	Description       string
	Disposition       string
	AssignedTo        *int64
	ActorID           int64
}

// UpdateRequest edits an open NCR. Nil fields keep their stored value.
type UpdateRequest struct {
	QuantityAffected *int64
	Description      *string
	RootCause        *string
	CorrectiveAction *string
	Disposition      *string
	AssignedTo       *int64
	ActorID          int64
}

// ListFilter narrows the NCR listing.
type ListFilter struct {
	Status     string
	Source     string
	ItemID     int64
	CustomerID int64
	Search     string
	Page       int
	Limit      int
}

var (
	ErrNotFound          = errors.New("quality: ncr not found")
	ErrValidation        = errors.New("quality: validation failed")
	ErrInvalidTransition = errors.New("quality: invalid status transition")
	ErrClosed            = errors.New("quality: ncr is closed")
)
