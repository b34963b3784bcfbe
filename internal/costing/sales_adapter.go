package costing

import (
	"context"
	"fmt"

	"github.com/mouldworks/mouldworks/internal/sales"
)

// SalesAdapter satisfies SalesService on top of the sales module.
type SalesAdapter struct {
	Sales *sales.Service
}

// CreateFromQuote cuts a new order for the quote's customer and adds
// one line at the quoted price.
func (a *SalesAdapter) CreateFromQuote(ctx context.Context, req ConvertOrder) (OrderRef, error) {
	order, err := a.Sales.CreateOrder(ctx, sales.CreateOrderRequest{
		CustomerID: req.CustomerID,
		Notes:      req.Notes,
		ActorID:    req.ActorID,
	})
	if err != nil {
		return OrderRef{}, err
	}
	price := req.UnitPrice
	line := sales.AddLineRequest{
		Quantity:  req.Quantity,
		UnitPrice: &price,
		ActorID:   req.ActorID,
	}
	if req.ItemID != nil {
		line.ItemID = req.ItemID
	} else {
		line.IsCustomItem = true
		line.CustomDescription = req.Description
	}
	if _, err := a.Sales.AddLine(ctx, order.ID, line); err != nil {
		return OrderRef{}, fmt.Errorf("add quoted line to %s: %w", order.OrderNumber, err)
	}
	return OrderRef{ID: order.ID, OrderNumber: order.OrderNumber}, nil
}
