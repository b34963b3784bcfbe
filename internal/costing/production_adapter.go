package costing

import (
	"context"

	"github.com/mouldworks/mouldworks/internal/production"
)

// ProductionAdapter satisfies ProductionService on top of the
// production module.
type ProductionAdapter struct {
	Production *production.Service
}

func (a *ProductionAdapter) OrderInfo(ctx context.Context, orderID int64) (ProductionOrderInfo, error) {
	order, err := a.Production.GetOrder(ctx, orderID)
	if err != nil {
		return ProductionOrderInfo{}, err
	}
	return ProductionOrderInfo{ID: order.ID, QuantityGood: order.QuantityGood}, nil
}
