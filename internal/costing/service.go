package costing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// OrderRef identifies the sales order a quote converted into.
type OrderRef struct {
	ID          int64
	OrderNumber string
}

// ConvertOrder is what a quote hands to the sales module on conversion.
type ConvertOrder struct {
	CustomerID  int64
	ItemID      *int64
	Description string
	Quantity    float64
	UnitPrice   decimal.Decimal
	Notes       string
	ActorID     int64
}

// SalesService turns accepted quotes into orders.
type SalesService interface {
	CreateFromQuote(ctx context.Context, req ConvertOrder) (OrderRef, error)
}

// ProductionOrderInfo is the slice of a production order job costing
// snapshots from.
type ProductionOrderInfo struct {
	ID           int64
	QuantityGood int64
}

// ProductionService verifies orders before a costing row is cut.
type ProductionService interface {
	OrderInfo(ctx context.Context, orderID int64) (ProductionOrderInfo, error)
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetQuote(ctx context.Context, id int64) (Quote, error)
	ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error)
	JobCostingByOrder(ctx context.Context, productionOrderID int64) (JobCosting, error)
	MaterialUsageByOrder(ctx context.Context, productionOrderID int64) ([]MaterialUsage, error)
	MachineRateFor(ctx context.Context, machineID int64, date time.Time) (MachineRate, error)
	LabourRateFor(ctx context.Context, role string, date time.Time) (LabourRate, error)
	ListMachineRates(ctx context.Context, machineID int64) ([]MachineRate, error)
	ListLabourRates(ctx context.Context, role string) ([]LabourRate, error)
}

// AuditPort records costing actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns quoting, job costing and the rate card.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	sales      SalesService
	production ProductionService
}

// NewService constructs the costing service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetSalesService wires quote conversion.
func (s *Service) SetSalesService(sales SalesService) {
	s.sales = sales
}

// SetProductionService wires production order lookups.
func (s *Service) SetProductionService(p ProductionService) {
	s.production = p
}

// CreateQuote prices and stores a new quote.
func (s *Service) CreateQuote(ctx context.Context, req CreateQuoteRequest) (Quote, error) {
	q := req.Quote
	q.applyDefaults()
	if q.Description == "" {
		return Quote{}, fmt.Errorf("costing: description required: %w", ErrValidation)
	}
	if q.PartWeightG < 0 || q.RunnerWeightG < 0 || q.CycleTimeSeconds < 0 {
		return Quote{}, fmt.Errorf("costing: weights and cycle time cannot be negative: %w", ErrValidation)
	}
	q.apply(Calculate(q))
	if req.ActorID != 0 {
		actor := req.ActorID
		q.CreatedBy = &actor
	}

	var created Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateQuoteNumber(ctx, time.Now())
		if err != nil {
			return err
		}
		q.QuoteNumber = number
		created, err = tx.InsertQuote(ctx, q)
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	s.record(ctx, req.ActorID, "costing.quote.create", created.ID, map[string]any{
		"quote_number": created.QuoteNumber,
	})
	return created, nil
}

// GetQuote loads one quote.
func (s *Service) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return s.repo.GetQuote(ctx, id)
}

// ListQuotes returns a filtered page of quotes plus the total count.
func (s *Service) ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error) {
	return s.repo.ListQuotes(ctx, f)
}

// UpdateQuote replaces the quote's inputs and reprices it. Only draft
// quotes may change; anything already sent needs a new revision.
func (s *Service) UpdateQuote(ctx context.Context, id int64, req UpdateQuoteRequest) (Quote, error) {
	existing, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if existing.Status != QuoteDraft {
		return Quote{}, fmt.Errorf("costing: only draft quotes are editable: %w", ErrValidation)
	}

	q := req.Quote
	q.ID = existing.ID
	q.QuoteNumber = existing.QuoteNumber
	q.Status = existing.Status
	q.CreatedBy = existing.CreatedBy
	q.applyDefaults()
	q.apply(Calculate(q))

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateQuote(ctx, q)
	})
	if err != nil {
		return Quote{}, err
	}
	s.record(ctx, req.ActorID, "costing.quote.update", id, map[string]any{
		"quote_number": existing.QuoteNumber,
	})
	return s.repo.GetQuote(ctx, id)
}

// Recalculate prices a quote's current inputs without saving.
func (s *Service) Recalculate(ctx context.Context, id int64) (CostBreakdown, error) {
	q, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return CostBreakdown{}, err
	}
	return Calculate(q), nil
}

// UpdateQuoteStatus moves a quote through draft, sent and the three
// terminal answers. Going to sent stamps sent_at.
func (s *Service) UpdateQuoteStatus(ctx context.Context, id int64, target string, actorID int64) (Quote, error) {
	q, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if !CanTransition(q.Status, target) {
		return Quote{}, fmt.Errorf("costing: %s cannot move to %s: %w", q.Status, target, ErrInvalidTransition)
	}
	if q.Status == target {
		return q, nil
	}
	var sentAt *time.Time
	if target == QuoteSent {
		now := time.Now()
		sentAt = &now
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SetQuoteStatus(ctx, id, q.Status, target, sentAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("costing: quote %s moved concurrently: %w", q.QuoteNumber, ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	s.record(ctx, actorID, "costing.quote.status", id, map[string]any{
		"quote_number": q.QuoteNumber,
		"from":         q.Status,
		"to":           target,
	})
	return s.repo.GetQuote(ctx, id)
}

// Convert turns an accepted quote into a sales order carrying the
// quoted price, and back-links the order on the quote.
func (s *Service) Convert(ctx context.Context, id, actorID int64) (ConvertResult, error) {
	if s.sales == nil {
		return ConvertResult{}, fmt.Errorf("costing: sales service not wired")
	}
	q, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return ConvertResult{}, err
	}
	if q.Status != QuoteAccepted {
		return ConvertResult{}, ErrNotAccepted
	}
	if q.SalesOrderID != nil {
		return ConvertResult{}, ErrAlreadyConverted
	}
	if q.CustomerID == nil {
		return ConvertResult{}, fmt.Errorf("costing: quote has no customer: %w", ErrValidation)
	}

	ref, err := s.sales.CreateFromQuote(ctx, ConvertOrder{
		CustomerID:  *q.CustomerID,
		ItemID:      q.ItemID,
		Description: q.Description,
		Quantity:    float64(q.Quantity),
		UnitPrice:   q.PricePerPart,
		Notes:       "Converted from quote " + q.QuoteNumber,
		ActorID:     actorID,
	})
	if err != nil {
		return ConvertResult{}, fmt.Errorf("create order: %w", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.LinkSalesOrder(ctx, id, ref.ID)
	})
	if err != nil {
		return ConvertResult{}, err
	}
	s.record(ctx, actorID, "costing.quote.convert", id, map[string]any{
		"quote_number": q.QuoteNumber,
		"order_number": ref.OrderNumber,
	})
	q, err = s.repo.GetQuote(ctx, id)
	if err != nil {
		return ConvertResult{}, err
	}
	return ConvertResult{Quote: q, OrderID: ref.ID, OrderNumber: ref.OrderNumber}, nil
}

// JobCosting loads the costing row for a production order, creating an
// empty one seeded from the order on first view.
func (s *Service) JobCosting(ctx context.Context, productionOrderID int64) (JobCosting, error) {
	j, err := s.repo.JobCostingByOrder(ctx, productionOrderID)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return JobCosting{}, err
	}
	seed := JobCosting{ProductionOrderID: productionOrderID}
	if s.production != nil {
		info, err := s.production.OrderInfo(ctx, productionOrderID)
		if err != nil {
			return JobCosting{}, err
		}
		seed.QuantityProduced = info.QuantityGood
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertJobCosting(ctx, seed)
		if err != nil {
			return err
		}
		j = created
		return nil
	})
	if err != nil {
		return JobCosting{}, err
	}
	return j, nil
}

// RecordActuals updates a job costing's actual cost buckets. Fields
// left nil keep their stored value.
func (s *Service) RecordActuals(ctx context.Context, productionOrderID int64, req RecordActualsRequest) (JobCosting, error) {
	j, err := s.JobCosting(ctx, productionOrderID)
	if err != nil {
		return JobCosting{}, err
	}
	applyActuals(&j, req)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateJobCosting(ctx, j)
	})
	if err != nil {
		return JobCosting{}, err
	}
	s.record(ctx, req.ActorID, "costing.job.record", j.ID, map[string]any{
		"production_order_id": productionOrderID,
	})
	return s.repo.JobCostingByOrder(ctx, productionOrderID)
}

// SnapshotQuote copies a quote's cost figures onto the order's costing
// row so variance has a baseline.
func (s *Service) SnapshotQuote(ctx context.Context, productionOrderID, quoteID, actorID int64) (JobCosting, error) {
	q, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return JobCosting{}, err
	}
	j, err := s.JobCosting(ctx, productionOrderID)
	if err != nil {
		return JobCosting{}, err
	}
	j.QuoteID = &q.ID
	j.QuotedCostPerPart = q.TotalCostPerPart
	j.QuotedTotalCost = q.TotalCostPerPart.Mul(decimal.NewFromInt(q.Quantity)).Round(2)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateJobCosting(ctx, j)
	})
	if err != nil {
		return JobCosting{}, err
	}
	s.record(ctx, actorID, "costing.job.snapshot", j.ID, map[string]any{
		"production_order_id": productionOrderID,
		"quote_number":        q.QuoteNumber,
	})
	return s.repo.JobCostingByOrder(ctx, productionOrderID)
}

// RecordMaterialUsage adds a usage row against a production order.
func (s *Service) RecordMaterialUsage(ctx context.Context, u MaterialUsage, actorID int64) (MaterialUsage, error) {
	if u.ProductionOrderID == 0 || u.MaterialName == "" {
		return MaterialUsage{}, fmt.Errorf("costing: production order and material required: %w", ErrValidation)
	}
	if u.ActualKg < 0 || u.PlannedKg < 0 {
		return MaterialUsage{}, fmt.Errorf("costing: usage cannot be negative: %w", ErrValidation)
	}
	var created MaterialUsage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertMaterialUsage(ctx, u)
		return err
	})
	if err != nil {
		return MaterialUsage{}, err
	}
	s.record(ctx, actorID, "costing.material_usage", created.ID, map[string]any{
		"production_order_id": u.ProductionOrderID,
		"material":            u.MaterialName,
	})
	return created, nil
}

// MaterialUsage lists recorded usage for a production order.
func (s *Service) MaterialUsage(ctx context.Context, productionOrderID int64) ([]MaterialUsage, error) {
	return s.repo.MaterialUsageByOrder(ctx, productionOrderID)
}

// AddMachineRate appends a rate card entry for a press.
func (s *Service) AddMachineRate(ctx context.Context, rate MachineRate, actorID int64) (MachineRate, error) {
	if rate.MachineID == 0 {
		return MachineRate{}, fmt.Errorf("costing: machine required: %w", ErrValidation)
	}
	if rate.EnergyRatePerKwh.IsZero() {
		rate.EnergyRatePerKwh = decimal.NewFromFloat(0.15)
	}
	if rate.EffectiveFrom.IsZero() {
		rate.EffectiveFrom = time.Now()
	}
	var created MachineRate
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertMachineRate(ctx, rate)
		return err
	})
	if err != nil {
		return MachineRate{}, err
	}
	s.record(ctx, actorID, "costing.rates.machine", created.ID, map[string]any{
		"machine_id": rate.MachineID,
	})
	return created, nil
}

// AddLabourRate appends a rate card entry for a role.
func (s *Service) AddLabourRate(ctx context.Context, rate LabourRate, actorID int64) (LabourRate, error) {
	if rate.Role == "" {
		return LabourRate{}, fmt.Errorf("costing: role required: %w", ErrValidation)
	}
	if rate.OvertimeMultiplier == 0 {
		rate.OvertimeMultiplier = 1.5
	}
	if rate.EffectiveFrom.IsZero() {
		rate.EffectiveFrom = time.Now()
	}
	var created LabourRate
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertLabourRate(ctx, rate)
		return err
	})
	if err != nil {
		return LabourRate{}, err
	}
	s.record(ctx, actorID, "costing.rates.labour", created.ID, map[string]any{
		"role": rate.Role,
	})
	return created, nil
}

// CurrentMachineRate picks the rate effective today for a press.
func (s *Service) CurrentMachineRate(ctx context.Context, machineID int64) (MachineRate, error) {
	return s.repo.MachineRateFor(ctx, machineID, time.Now())
}

// CurrentLabourRate picks the rate effective today for a role.
func (s *Service) CurrentLabourRate(ctx context.Context, role string) (LabourRate, error) {
	return s.repo.LabourRateFor(ctx, role, time.Now())
}

// MachineRates lists a press's rate history.
func (s *Service) MachineRates(ctx context.Context, machineID int64) ([]MachineRate, error) {
	return s.repo.ListMachineRates(ctx, machineID)
}

// LabourRates lists rate history, optionally for one role.
func (s *Service) LabourRates(ctx context.Context, role string) ([]LabourRate, error) {
	return s.repo.ListLabourRates(ctx, role)
}

func applyActuals(j *JobCosting, req RecordActualsRequest) {
	if req.QuoteID != nil {
		j.QuoteID = req.QuoteID
	}
	if req.QuantityProduced != nil {
		j.QuantityProduced = *req.QuantityProduced
	}
	if req.ActualMaterialKg != nil {
		j.ActualMaterialKg = *req.ActualMaterialKg
	}
	if req.MaterialCostPerKg != nil {
		j.MaterialCostPerKg = *req.MaterialCostPerKg
	}
	if req.LabourHours != nil {
		j.LabourHours = *req.LabourHours
	}
	if req.LabourRate != nil {
		j.LabourRate = *req.LabourRate
	}
	if req.MachineHours != nil {
		j.MachineHours = *req.MachineHours
	}
	if req.MachineRate != nil {
		j.MachineRate = *req.MachineRate
	}
	if req.SetupHours != nil {
		j.SetupHours = *req.SetupHours
	}
	if req.SetupRate != nil {
		j.SetupRate = *req.SetupRate
	}
	if req.ScrapQuantity != nil {
		j.ScrapQuantity = *req.ScrapQuantity
	}
	if req.ScrapCost != nil {
		j.ScrapCost = *req.ScrapCost
	}
	if req.PackagingCost != nil {
		j.PackagingCost = *req.PackagingCost
	}
	if req.SecondaryOpsCost != nil {
		j.SecondaryOpsCost = *req.SecondaryOpsCost
	}
	if req.OverheadAllocated != nil {
		j.OverheadAllocated = *req.OverheadAllocated
	}
	if req.ActualSellingPrice != nil {
		j.ActualSellingPrice = *req.ActualSellingPrice
	}
	if req.Notes != nil {
		j.Notes = *req.Notes
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "costing",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
