package estimation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landed-cost/decision/catalog"
)

func profile(t *testing.T, id string) *catalog.Profile {
	t.Helper()
	reg, err := catalog.Embedded()
	require.NoError(t, err)
	p, ok := reg.Get(id)
	require.True(t, ok, id)
	return p
}

func ptr(v float64) *float64 { return &v }

func assertInvariants(t *testing.T, b CostBreakdown) {
	t.Helper()
	var sum, shares float64
	for _, c := range b.Components {
		sum += c.AmountUSD
		shares += c.SharePercent
	}
	assert.InDelta(t, b.TotalLandedCost, sum, 0.01, "components must sum to total")
	if b.TotalLandedCost > 0 {
		assert.InDelta(t, 100.0, shares, 0.1, "shares must sum to 100")
	}
	assert.InDelta(t, b.TotalLandedCost, b.PerUnitLandedCost*float64(b.Quantity), 0.01)
	assert.Len(t, b.Components, 5)
	assert.Len(t, b.Detailed, 12)
}

func TestComputeKeychainOrder(t *testing.T) {
	b := NewEngine().Compute(OrderSpec{
		CategoryID: "novelty_toy_small_plastic",
		Quantity:   5000,
		Route:      "cn_to_us_west_coast",
		Incoterm:   "DDP",
	}, profile(t, "novelty_toy_small_plastic"))

	assert.InDelta(t, 150.0, b.TotalWeightKg, 1e-9)
	assert.InDelta(t, 25.0, b.TotalCartons, 1e-9)
	assert.InDelta(t, 0.8333, b.TotalCBM, 1e-4)

	assert.InDelta(t, 675.0, b.Amount(ComponentProduct), 1e-9)
	assert.InDelta(t, 14.5, b.Amount(ComponentPacking), 1e-9)
	assert.InDelta(t, 129.1667, b.Amount(ComponentShipping), 1e-4)
	assert.InDelta(t, 1740.0, b.Amount(ComponentHandling), 1e-9)
	assert.InDelta(t, 37.2917, b.Amount(ComponentDutyAndTax), 1e-4)
	assert.InDelta(t, 2595.9583, b.TotalLandedCost, 1e-4)
	assert.InDelta(t, 0.5192, b.PerUnitLandedCost, 1e-4)

	assert.Equal(t, "cn_to_us_west_coast", b.Assumptions.Route)
	assert.False(t, b.Assumptions.RouteFallback)
	assert.Nil(t, b.Margin)
	assertInvariants(t, b)
}

func TestDutiableBaseExcludesPortCharges(t *testing.T) {
	b := NewEngine().Compute(OrderSpec{Quantity: 5000, Route: "cn_to_us_west_coast"}, profile(t, "novelty_toy_small_plastic"))

	base := b.Item(ItemProductFOB) + b.Item(ItemSeaFreight)
	assert.InDelta(t, base, b.DutiableBase, 1e-9)
	assert.InDelta(t, base*0.05, b.Item(ItemImportDuty), 1e-9)
	assert.NotZero(t, b.Item(ItemOriginCharges))
	assert.NotZero(t, b.Item(ItemDestinationCharges))
}

func TestDetailedItemsOrder(t *testing.T) {
	b := NewEngine().Compute(OrderSpec{Quantity: 100}, profile(t, "generic_consumer_product"))
	keys := make([]string, len(b.Detailed))
	for i, li := range b.Detailed {
		keys[i] = li.Key
	}
	assert.Equal(t, []string{
		"product_fob", "packing_outer", "packing_inner", "sea_freight",
		"origin_charges", "destination_charges", "customs_broker", "port_misc",
		"qc_inspection", "certification", "import_duty", "extra_taxes",
	}, keys)
	assert.Equal(t, "Manufacturing", b.Component(ComponentProduct).Label)
	assert.Equal(t, "Customs & Duty", b.Component(ComponentDutyAndTax).Label)
	assertInvariants(t, b)
}

func TestUnknownRouteFallsBack(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	known := NewEngine().Compute(OrderSpec{Quantity: 5000, Route: "cn_to_us_west_coast"}, p)
	unknown := NewEngine().Compute(OrderSpec{Quantity: 5000, Route: "moon_to_mars"}, p)

	assert.Equal(t, "moon_to_mars", unknown.Assumptions.RequestedRoute)
	assert.Equal(t, "cn_to_us_west_coast", unknown.Assumptions.Route)
	assert.True(t, unknown.Assumptions.RouteFallback)
	assert.Equal(t, known.TotalLandedCost, unknown.TotalLandedCost)
}

func TestRoutesChangeFreight(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	west := NewEngine().Compute(OrderSpec{Quantity: 5000, Route: "cn_to_us_west_coast"}, p)
	east := NewEngine().Compute(OrderSpec{Quantity: 5000, Route: "cn_to_us_east_coast"}, p)
	assert.Greater(t, east.Amount(ComponentShipping), west.Amount(ComponentShipping))
	assert.False(t, east.Assumptions.RouteFallback)
}

func TestWithDefaultRoute(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	b := NewEngine().WithDefaultRoute("cn_to_eu").Compute(OrderSpec{Quantity: 10, Route: "nowhere"}, p)
	assert.Equal(t, "cn_to_eu", b.Assumptions.Route)
}

func TestWeightOverride(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	b := NewEngine().Compute(OrderSpec{Quantity: 1000, WeightOverrideKg: ptr(0.1)}, p)
	assert.InDelta(t, 100.0, b.TotalWeightKg, 1e-9)
	assert.Equal(t, 0.1, b.Assumptions.UnitWeightKg)
	assertInvariants(t, b)
}

func TestMarginAssessment(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic") // benchmarks 25% / 40% / 60%
	e := NewEngine()
	perUnit := e.Compute(OrderSpec{Quantity: 5000}, p).PerUnitLandedCost

	cases := []struct {
		retail float64
		want   string
	}{
		{perUnit / 0.90, AssessmentBelow},  // 10% margin
		{perUnit / 0.60, AssessmentWithin}, // 40% margin
		{perUnit / 0.20, AssessmentStrong}, // 80% margin
	}
	for _, tc := range cases {
		b := e.Compute(OrderSpec{Quantity: 5000, RetailPrice: ptr(tc.retail)}, p)
		require.NotNil(t, b.Margin)
		assert.Equal(t, tc.want, b.Margin.Assessment)
		assert.InDelta(t, tc.retail-b.PerUnitLandedCost, b.Margin.GrossMarginPerUnit, 1e-9)
	}

	b := e.Compute(OrderSpec{Quantity: 5000, RetailPrice: ptr(2.0)}, p)
	assert.InDelta(t, (2.0-perUnit)/2.0*100, b.Margin.GrossMarginPercent, 1e-9)

	assert.Nil(t, e.Compute(OrderSpec{Quantity: 5000, RetailPrice: ptr(0)}, p).Margin)
}

func TestZeroTotalGuardsShares(t *testing.T) {
	p := &catalog.Profile{
		ID:             "free",
		UnitsPerCarton: 10,
		CartonsPerCBM:  10,
		Freight:        map[string]catalog.FreightRate{catalog.DefaultRouteID: {}},
	}
	b := NewEngine().Compute(OrderSpec{Quantity: 100}, p)
	assert.Zero(t, b.TotalLandedCost)
	for _, c := range b.Components {
		assert.Zero(t, c.SharePercent)
	}

	zeroQty := NewEngine().Compute(OrderSpec{Quantity: 0}, profile(t, "generic_consumer_product"))
	assert.Zero(t, zeroQty.PerUnitLandedCost)
}

func TestLinearScaling(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	e := NewEngine()
	small := e.Compute(OrderSpec{Quantity: 1000, Route: "cn_to_us_west_coast"}, p)
	large := e.Compute(OrderSpec{Quantity: 10000, Route: "cn_to_us_west_coast"}, p)

	assert.Greater(t, large.TotalLandedCost, small.TotalLandedCost)
	assertInvariants(t, small)
	assertInvariants(t, large)

	// Duty is a fixed percentage of a base that scales with quantity.
	assert.InDelta(t, small.Amount(ComponentDutyAndTax)/1000, large.Amount(ComponentDutyAndTax)/10000, 1e-9)
	assert.InDelta(t, small.Amount(ComponentDutyAndTax)/small.DutiableBase, large.Amount(ComponentDutyAndTax)/large.DutiableBase, 1e-12)
}

func TestLinearScalingWithoutFixedCosts(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	variable := *p
	variable.Handling = catalog.Handling{}
	variable.QCCostPerOrder = 0
	variable.CertCostPerSKU = 0

	e := NewEngine()
	small := e.Compute(OrderSpec{Quantity: 1000}, &variable)
	large := e.Compute(OrderSpec{Quantity: 10000}, &variable)

	assert.InDelta(t, small.TotalLandedCost*10, large.TotalLandedCost, 1e-6)
	for _, key := range ComponentKeys() {
		assert.InDelta(t, small.Share(key), large.Share(key), 1e-9, key)
	}
}

func TestFormulas(t *testing.T) {
	p := profile(t, "novelty_toy_small_plastic")
	b := NewEngine().WithFormulas(true).Compute(OrderSpec{Quantity: 5000}, p)
	assert.Equal(t, "5000 units × 0.0300 kg × $4.50/kg", b.Component(ComponentProduct).Formula)
	assert.Empty(t, NewEngine().Compute(OrderSpec{Quantity: 5000}, p).Component(ComponentProduct).Formula)
}
