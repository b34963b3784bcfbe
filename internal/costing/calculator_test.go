package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseQuote() Quote {
	q := Quote{
		Description:       "32mm closure cap",
		PartWeightG:       45.5,
		Cavities:          4,
		CycleTimeSeconds:  18,
		MaterialCostPerKg: dec("2.50"),
	}
	q.applyDefaults()
	return q
}

func TestCalculateMaterialCostPerPart(t *testing.T) {
	b := Calculate(baseQuote())

	// 45.5 g shot over 4 cavities at £2.50/kg.
	require.Equal(t, 0.0455, b.ShotWeightKg)
	require.True(t, b.MaterialCostPerPart.Equal(dec("0.0284")),
		"got %s", b.MaterialCostPerPart)
}

func TestCalculateFullBreakdown(t *testing.T) {
	b := Calculate(baseQuote())

	// Cycle: 18s/3600 × £60 / 4 cavities = £0.075.
	require.True(t, b.CycleCostPerPart.Equal(dec("0.075")), "got %s", b.CycleCostPerPart)
	// Setup: 2h × £60 = £120, over 1000 parts.
	require.True(t, b.SetupCost.Equal(dec("120")), "got %s", b.SetupCost)
	require.True(t, b.SetupCostPerPart.Equal(dec("0.12")), "got %s", b.SetupCostPerPart)
	// Direct = 0.0284375 + 0.075 + 0.12 = 0.2234375; overhead 20%.
	require.True(t, b.DirectCostPerPart.Equal(dec("0.2234")), "got %s", b.DirectCostPerPart)
	require.True(t, b.OverheadCostPerPart.Equal(dec("0.0447")), "got %s", b.OverheadCostPerPart)
	require.True(t, b.TotalCostPerPart.Equal(dec("0.2681")), "got %s", b.TotalCostPerPart)

	// 30% margin: total / 0.7.
	price, _ := b.PricePerPart.Float64()
	require.InDelta(t, 0.2681/0.7, price, 0.001)
	total, _ := b.QuotedTotal.Float64()
	require.InDelta(t, price*1000, total, 0.5)
}

func TestCalculateRunnerWeightJoinsShot(t *testing.T) {
	q := baseQuote()
	q.RunnerWeightG = 4.5
	b := Calculate(q)

	require.Equal(t, 0.05, b.ShotWeightKg)
	require.True(t, b.MaterialCostPerPart.Equal(dec("0.0313")), "got %s", b.MaterialCostPerPart)
}

func TestCalculateZeroGuards(t *testing.T) {
	q := Quote{MaterialCostPerKg: dec("2.50"), PartWeightG: 10}
	// No defaults applied: quantity 0, cavities 0.
	b := Calculate(q)
	require.True(t, b.SetupCostPerPart.IsZero())
	require.True(t, b.QuotedTotal.IsZero())
	// Zero cavities behave as one.
	require.True(t, b.MaterialCostPerPart.Equal(dec("0.025")), "got %s", b.MaterialCostPerPart)
}

func TestCalculateMarginBands(t *testing.T) {
	q := baseQuote()

	q.TargetMarginPercent = 0
	require.True(t, Calculate(q).PricePerPart.Equal(Calculate(q).TotalCostPerPart))

	q.TargetMarginPercent = -5
	require.True(t, Calculate(q).PricePerPart.Equal(Calculate(q).TotalCostPerPart))

	q.TargetMarginPercent = 100
	doubled := Calculate(q)
	price, _ := doubled.PricePerPart.Float64()
	total, _ := doubled.TotalCostPerPart.Float64()
	require.InDelta(t, total*2, price, 0.001)

	q.TargetMarginPercent = 150
	past := Calculate(q)
	require.True(t, past.PricePerPart.Equal(doubled.PricePerPart))
}

func TestCalculateToolingAmortisation(t *testing.T) {
	q := baseQuote()
	q.ToolingCost = dec("12000")
	q.ToolingAmortizationQty = 50000
	b := Calculate(q)
	require.True(t, b.ToolingCostPerPart.Equal(dec("0.24")), "got %s", b.ToolingCostPerPart)

	q.ToolingAmortizationQty = 0
	require.True(t, Calculate(q).ToolingCostPerPart.IsZero())
}

func TestJobCostingComputedFigures(t *testing.T) {
	j := JobCosting{
		QuotedTotalCost:    dec("250.00"),
		ActualMaterialKg:   50,
		MaterialCostPerKg:  dec("2.50"),
		LabourHours:        4,
		LabourRate:         dec("15"),
		MachineHours:       5,
		MachineRate:        dec("45"),
		SetupHours:         2,
		SetupRate:          dec("60"),
		ScrapCost:          dec("10.00"),
		PackagingCost:      dec("5.00"),
		SecondaryOpsCost:   dec("0"),
		OverheadAllocated:  dec("20.00"),
		ActualSellingPrice: dec("700.00"),
	}

	// 125 + 60 + 225 + 120 + 10 + 5 + 0 + 20 = 565.
	require.True(t, j.ActualTotalCost().Equal(dec("565.00")), "got %s", j.ActualTotalCost())
	require.True(t, j.GrossProfit().Equal(dec("135.00")), "got %s", j.GrossProfit())
	require.InDelta(t, 19.29, j.GrossMarginPercent(), 0.01)
	require.True(t, j.CostVariance().Equal(dec("315.00")))
	require.InDelta(t, 126.0, j.CostVariancePercent(), 0.01)
}

func TestJobCostingZeroGuards(t *testing.T) {
	j := JobCosting{}
	require.Equal(t, 0.0, j.GrossMarginPercent())
	require.Equal(t, 0.0, j.CostVariancePercent())
}
