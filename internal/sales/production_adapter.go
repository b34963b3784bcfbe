package sales

import (
	"context"
	"fmt"

	"github.com/mouldworks/mouldworks/internal/masterdata/customers"
	"github.com/mouldworks/mouldworks/internal/production"
)

// ProductionAdapter adapts the production.Service to the
// ProductionService interface required by order processing.
type ProductionAdapter struct {
	service *production.Service
}

// NewProductionAdapter creates a new production adapter.
func NewProductionAdapter(service *production.Service) *ProductionAdapter {
	return &ProductionAdapter{service: service}
}

// FindPlannedOrder locates an open planned works order already raised
// for the sales order and item.
func (a *ProductionAdapter) FindPlannedOrder(ctx context.Context, salesOrderID, itemID int64) (int64, int64, error) {
	if a.service == nil {
		return 0, 0, fmt.Errorf("production service not initialized")
	}
	orders, _, err := a.service.ListOrders(ctx, production.OrderFilter{
		SalesOrderID: salesOrderID,
		ItemID:       itemID,
		Status:       production.OrderPlanned,
		Limit:        1,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(orders) == 0 {
		return 0, 0, ErrNotFound
	}
	return orders[0].ID, orders[0].QuantityRequired, nil
}

// CreateMakeToOrder raises a make-to-order works order for a shortfall.
func (a *ProductionAdapter) CreateMakeToOrder(ctx context.Context, req MakeToOrderRequest) error {
	if a.service == nil {
		return fmt.Errorf("production service not initialized")
	}
	salesOrderID := req.SalesOrderID
	customerID := req.CustomerID
	_, err := a.service.CreateOrder(ctx, production.CreateOrderRequest{
		ItemID:           req.ItemID,
		OrderType:        production.MakeToOrder,
		SalesOrderID:     &salesOrderID,
		CustomerID:       &customerID,
		QuantityRequired: req.Quantity,
		DueDate:          req.DueDate,
		Notes:            req.Notes,
		ActorID:          req.ActorID,
	})
	return err
}

// RaiseDemand lifts an existing planned order to cover a bigger shortfall.
func (a *ProductionAdapter) RaiseDemand(ctx context.Context, orderID, quantity, actorID int64) error {
	if a.service == nil {
		return fmt.Errorf("production service not initialized")
	}
	_, err := a.service.RaiseDemand(ctx, orderID, quantity, actorID)
	return err
}

// CustomerAdapter adapts the customers.Service to the CustomerService
// interface required by order creation.
type CustomerAdapter struct {
	service *customers.Service
}

// NewCustomerAdapter creates a new customer adapter.
func NewCustomerAdapter(service *customers.Service) *CustomerAdapter {
	return &CustomerAdapter{service: service}
}

// Customer resolves the fields a new order defaults from.
func (a *CustomerAdapter) Customer(ctx context.Context, id int64) (CustomerInfo, error) {
	if a.service == nil {
		return CustomerInfo{}, fmt.Errorf("customer service not initialized")
	}
	c, err := a.service.Get(ctx, id)
	if err != nil {
		return CustomerInfo{}, err
	}
	return CustomerInfo{
		Name:             c.Name,
		DeliveryAddress:  c.DeliveryAddress,
		DeliveryCity:     c.DeliveryCity,
		DeliveryPostcode: c.DeliveryPostcode,
		IsActive:         c.IsActive,
	}, nil
}
