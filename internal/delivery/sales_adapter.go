package delivery

import (
	"context"

	"github.com/mouldworks/mouldworks/internal/sales"
)

// SalesAdapter satisfies SalesService on top of the sales module.
type SalesAdapter struct {
	Sales *sales.Service
}

func (a *SalesAdapter) Order(ctx context.Context, orderID int64) (Order, error) {
	so, err := a.Sales.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	out := Order{
		ID:               so.ID,
		OrderNumber:      so.OrderNumber,
		CustomerName:     so.CustomerName,
		CustomerPO:       so.CustomerPO,
		Status:           so.Status,
		Dispatchable:     so.CanDispatch(),
		DeliveryName:     so.DeliveryName,
		DeliveryAddress:  so.DeliveryAddress,
		DeliveryCity:     so.DeliveryCity,
		DeliveryPostcode: so.DeliveryPostcode,
		DeliveryMethod:   so.DeliveryMethod,
	}
	for _, line := range so.Lines {
		out.Lines = append(out.Lines, OrderLine{
			LineID:          line.ID,
			ItemID:          line.ItemID,
			SKU:             line.DisplaySKU(),
			Description:     line.DisplayName(),
			QuantityOrdered: line.QuantityOrdered,
			QuantityShipped: line.QuantityShipped,
			UnitPrice:       line.UnitPrice,
		})
	}
	return out, nil
}

func (a *SalesAdapter) ApplyShipment(ctx context.Context, orderID int64, lines []ShipmentLine, actorID int64) error {
	converted := make([]sales.ShipmentLine, 0, len(lines))
	for _, line := range lines {
		converted = append(converted, sales.ShipmentLine{LineID: line.LineID, Quantity: line.Quantity})
	}
	_, err := a.Sales.ApplyShipment(ctx, orderID, converted, actorID)
	return err
}

func (a *SalesAdapter) MarkDelivered(ctx context.Context, orderID, actorID int64) error {
	_, err := a.Sales.UpdateStatus(ctx, orderID, sales.StatusDelivered, actorID)
	return err
}
