package assembly

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landed-cost/decision/catalog"
	"landed-cost/decision/estimation"
	"landed-cost/decision/sensitivity"
	"landed-cost/pkg/confidence"
)

var fixedTime = time.Date(2025, 11, 20, 14, 30, 5, 0, time.UTC)

func testAssembler(t *testing.T) (*catalog.Registry, *Assembler) {
	t.Helper()
	reg, err := catalog.Embedded()
	require.NoError(t, err)
	a := NewAssembler(reg).
		WithClock(func() time.Time { return fixedTime }).
		WithIDGenerator(func(time.Time) string { return "lc-test" })
	return reg, a
}

func input(t *testing.T, reg *catalog.Registry, categoryID string, retail *float64, ann Annotation) Input {
	t.Helper()
	p, ok := reg.Get(categoryID)
	require.True(t, ok, categoryID)

	order := estimation.OrderSpec{
		CategoryID:  categoryID,
		Quantity:    5000,
		Route:       "cn_to_us_west_coast",
		Incoterm:    "DDP",
		RetailPrice: retail,
	}
	b := estimation.NewEngine().Compute(order, p)
	return Input{
		Query:        "custom printed keychains",
		TargetMarket: "USA",
		Channel:      "Amazon FBA",
		Order:        order,
		Breakdown:    b,
		Sensitivity:  sensitivity.NewEngine().Compute(b),
		Annotation:   ann,
	}
}

func TestAssembleKeychainDefaults(t *testing.T) {
	reg, a := testAssembler(t)
	rec := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, AbsentAnnotation{}))

	assert.Equal(t, "lc-test", rec.Meta.AnalysisID)
	assert.Equal(t, "2025-11-20T14:30:05Z", rec.Meta.TimestampUTC)
	assert.Equal(t, "custom printed keychains", rec.Meta.ProductRawInput)
	assert.Equal(t, "Small plastic novelty toy / Keychain product", rec.Meta.ProductName)
	assert.Equal(t, "novelty_toy_small_plastic", rec.Meta.CategoryID)
	assert.False(t, rec.Meta.CategoryFallback)
	assert.Equal(t, StatusAbsent, rec.Meta.AnnotationStatus)
	assert.Equal(t, InsightFromDefaults, rec.Meta.InsightSource)
	assert.Equal(t, CalculationMethod, rec.Meta.CalculationMethod)
	assert.Equal(t, 5000, rec.Meta.Order.Quantity)

	lc := rec.LandedCost
	assert.Equal(t, 150.0, lc.Order.TotalWeightKg)
	assert.Equal(t, 25.0, lc.Order.TotalCartons)
	assert.Equal(t, 0.833, lc.Order.TotalCBM)
	assert.Equal(t, 2595.96, lc.Totals.TotalLandedCostUSD)
	assert.Equal(t, 0.5192, lc.Totals.LandedCostPerUnitUSD)
	assert.Len(t, lc.Components, 5)
	assert.Len(t, lc.DetailedBreakdown, 12)
	assert.Nil(t, lc.MarginEstimate)
	assert.Equal(t, "30.0%", lc.CurrentMarginEstimate)

	require.Len(t, lc.Sensitivity, 3)
	for _, s := range lc.Sensitivity {
		assert.NotEmpty(t, s.NewMargin)
	}

	assert.Equal(t, "China → US West Coast", rec.Assumptions.RouteDisplay)
	assert.Equal(t, "DDP (Delivered Duty Paid)", rec.Assumptions.IncotermDisplay)
	assert.Equal(t, 0.8, rec.Assumptions.ReliabilityScore)
	assert.Equal(t, confidence.LevelHigh, rec.Assumptions.ReliabilityLevel)
	assert.Equal(t, "~70–85%", rec.Assumptions.ReliabilityRange)

	assert.Equal(t, [2]float64{30, 55}, rec.MarketSnapshot.Margin.EstimatedRangePercent)
	assert.Equal(t, [2]float64{25, 60}, rec.MarketSnapshot.Margin.CategoryTypicalRangePercent)
	assert.Nil(t, rec.MarketSnapshot.Margin.CurrentPercent)
	assert.Equal(t, confidence.LevelMedium, rec.MarketSnapshot.Demand.Level)

	require.Len(t, rec.Suppliers, 3)
	for _, s := range rec.Suppliers {
		assert.True(t, s.Example)
	}
	assert.Equal(t, "20–30", rec.Suppliers[0].LeadTimeDays)
	assert.Equal(t, 1500, rec.Suppliers[1].MOQUnits)

	assert.Equal(t, LeadTimePlan{
		ProductionDays: 20, ShippingDays: 28, CustomsDays: 5, BufferDays: 7, TotalDays: 60, SafetyStock: 14,
	}, rec.LeadTime)

	assert.Equal(t, "Landed cost ~$0.52/unit · Margin 30–55% · 3 vetted suppliers", rec.ConsultingOffer.CaseSummary)
	assert.Len(t, rec.NextActions, 3)
}

func TestHiddenCostTemplatesByKind(t *testing.T) {
	reg, a := testAssembler(t)

	toy := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, nil)).LandedCost.HiddenCostAlerts
	assert.Len(t, toy, 5)
	assert.Contains(t, toy, "CPSIA compliance testing for children's products.")
	assert.NotContains(t, toy, tariffAlert)

	general := a.Assemble(input(t, reg, "generic_consumer_product", nil, nil)).LandedCost.HiddenCostAlerts
	assert.Equal(t, append(append([]string{}, baseHiddenCosts...), tariffAlert), general)

	electronics := a.Assemble(input(t, reg, "electronics_small_accessory", nil, nil)).LandedCost.HiddenCostAlerts
	assert.Contains(t, electronics, "FCC/CE certification and testing requirements.")
}

func TestNumericFieldsComeFromBreakdown(t *testing.T) {
	reg, a := testAssembler(t)

	base := input(t, reg, "novelty_toy_small_plastic", nil, nil)
	retail := base.Breakdown.PerUnitLandedCost / (1 - 0.42)

	plain := a.Assemble(input(t, reg, "novelty_toy_small_plastic", &retail, AbsentAnnotation{}))
	claimed := a.Assemble(input(t, reg, "novelty_toy_small_plastic", &retail, ParseAnnotation([]byte(`{
		"margin_percent": 10,
		"gross_margin_percent": 10,
		"total_landed_cost_usd": 1,
		"demand_level": "High"
	}`))))

	require.Equal(t, StatusValid, claimed.Meta.AnnotationStatus)
	require.NotNil(t, claimed.LandedCost.MarginEstimate)
	assert.Equal(t, 42.0, claimed.LandedCost.MarginEstimate.GrossMarginPercent)
	assert.Equal(t, 42.0, *claimed.MarketSnapshot.Margin.CurrentPercent)
	assert.Equal(t, "42.0%", claimed.LandedCost.CurrentMarginEstimate)

	if diff := cmp.Diff(plain.LandedCost, claimed.LandedCost); diff != "" {
		t.Errorf("landed cost changed by annotation (-plain +annotated):\n%s", diff)
	}
	assert.Equal(t, confidence.LevelHigh, claimed.MarketSnapshot.Demand.Level)
}

func TestMalformedAnnotationMatchesAbsent(t *testing.T) {
	reg, a := testAssembler(t)

	absent := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, AbsentAnnotation{}))
	malformed := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, ParseAnnotation([]byte(`{"demand_score": "high"}`))))

	assert.Equal(t, StatusMalformed, malformed.Meta.AnnotationStatus)
	assert.NotEmpty(t, malformed.Meta.AnnotationIssue)
	assert.Equal(t, InsightFromDefaults, malformed.Meta.InsightSource)

	ignore := cmpopts.IgnoreFields(Meta{}, "AnnotationStatus", "AnnotationIssue")
	if diff := cmp.Diff(absent, malformed, ignore); diff != "" {
		t.Errorf("malformed annotation changed the record (-absent +malformed):\n%s", diff)
	}
}

func TestValidAnnotationOverridesQualitativeFields(t *testing.T) {
	reg, a := testAssembler(t)
	ann := ParseAnnotation([]byte(`{
		"product_name": "Acrylic keychain",
		"demand_score": 0.9,
		"competition_level": "High",
		"competition_notes": "Crowded niche.",
		"margin_range_percent": [20, 45],
		"hidden_cost_alerts": ["Custom mold fee."],
		"suppliers": [{"display_name": "Yiwu Crafts", "lead_time_days": "45-60", "rating_score": 4.8}],
		"risk_overview": {"axes": {"quality": "High"}, "comments": ["Check plating."]},
		"consulting_reason": "Mold negotiation matters."
	}`))
	rec := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, ann))

	assert.Equal(t, InsightFromAnnotation, rec.Meta.InsightSource)
	assert.Equal(t, "Acrylic keychain", rec.Meta.ProductName)
	assert.Equal(t, confidence.LevelHigh, rec.MarketSnapshot.Demand.Level)
	assert.Equal(t, 0.9, rec.MarketSnapshot.Demand.Score)
	assert.Equal(t, "Moderate demand with seasonal variations.", rec.MarketSnapshot.Demand.Notes)
	assert.Equal(t, "Crowded niche.", rec.MarketSnapshot.Competition.Notes)
	assert.Equal(t, [2]float64{20, 45}, rec.MarketSnapshot.Margin.EstimatedRangePercent)
	assert.Equal(t, []string{"Custom mold fee."}, rec.LandedCost.HiddenCostAlerts)

	require.Len(t, rec.Suppliers, 1)
	assert.False(t, rec.Suppliers[0].Example)
	assert.Equal(t, 45, rec.LeadTime.ProductionDays)
	assert.Equal(t, 85, rec.LeadTime.TotalDays)

	assert.Equal(t, confidence.LevelHigh, rec.RiskOverview.Axes[AxisQuality])
	assert.Equal(t, confidence.LevelLow, rec.RiskOverview.Axes[AxisFinancial])
	assert.Equal(t, confidence.LevelMedium, rec.RiskOverview.OverallLevel)
	assert.Equal(t, []string{"Check plating."}, rec.RiskOverview.Comments)

	assert.Equal(t, "Mold negotiation matters.", rec.ConsultingOffer.Reason)
	assert.Equal(t, "Landed cost ~$0.52/unit · Margin 20–45% · 1 vetted suppliers", rec.ConsultingOffer.CaseSummary)
}

func TestFallbackCategoryLowersReliability(t *testing.T) {
	reg, a := testAssembler(t)
	rec := a.Assemble(input(t, reg, "generic_consumer_product", nil, nil))

	assert.True(t, rec.Meta.CategoryFallback)
	assert.Equal(t, 0.6, rec.Assumptions.ReliabilityScore)
	assert.Equal(t, confidence.LevelMedium, rec.Assumptions.ReliabilityLevel)
}

func TestAssembleDoesNotShareDefaults(t *testing.T) {
	reg, a := testAssembler(t)
	first := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, nil))
	first.RiskOverview.Axes[AxisQuality] = confidence.LevelHigh
	first.NextActions[0].Label = "changed"

	second := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, nil))
	assert.Equal(t, confidence.LevelMedium, second.RiskOverview.Axes[AxisQuality])
	assert.Equal(t, "Refine Analysis", second.NextActions[0].Label)
}

func TestRecordJSONSections(t *testing.T) {
	reg, a := testAssembler(t)
	rec := a.Assemble(input(t, reg, "novelty_toy_small_plastic", nil, nil))

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var sections map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &sections))
	for _, key := range []string{
		"meta", "assumptions", "market_snapshot", "landed_cost", "suppliers",
		"risk_overview", "lead_time", "next_actions", "consulting_offer",
	} {
		assert.Contains(t, sections, key)
	}
}

func TestNewAnalysisID(t *testing.T) {
	id := NewAnalysisID(fixedTime)
	assert.Regexp(t, regexp.MustCompile(`^lc-20251120-143005-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewAnalysisID(fixedTime))
}

func TestLowerBoundDays(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"25–35", 25, true},
		{"25-35", 25, true},
		{" 40 ", 40, true},
		{"about a month", 0, false},
		{"", 0, false},
		{"0-10", 0, false},
	}
	for _, tt := range tests {
		got, ok := lowerBoundDays(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
