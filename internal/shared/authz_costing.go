package shared

// Costing & quoting permissions declared for RBAC.
const (
	PermQuoteView    = "costing.quote.view"
	PermQuoteCreate  = "costing.quote.create"
	PermQuoteEdit    = "costing.quote.edit"
	PermQuoteConvert = "costing.quote.convert"

	// PermPricingView gates cost and margin visibility. Operators
	// without it see quantities and statuses but never money.
	PermPricingView = "costing.pricing.view"

	PermJobCostingView   = "costing.job.view"
	PermJobCostingRecord = "costing.job.record"

	PermRatesEdit = "costing.rates.edit"
)

// CostingScopes lists all permissions related to the costing module.
func CostingScopes() []string {
	return []string{
		PermQuoteView,
		PermQuoteCreate,
		PermQuoteEdit,
		PermQuoteConvert,
		PermPricingView,
		PermJobCostingView,
		PermJobCostingRecord,
		PermRatesEdit,
	}
}
