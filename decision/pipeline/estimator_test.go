package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"landed-cost/db/analytics"
	"landed-cost/decision/assembly"
	"landed-cost/decision/catalog"
	"landed-cost/decision/policy"
	lcerrors "landed-cost/pkg/errors"
	"landed-cost/pkg/platform"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedTime = time.Date(2025, 11, 20, 14, 30, 5, 0, time.UTC)

func newEstimator(t *testing.T, settings *platform.Settings) (*Estimator, *analytics.Memory) {
	t.Helper()
	reg, err := catalog.Embedded()
	require.NoError(t, err)

	sink := analytics.NewMemory()
	var n int
	var mu sync.Mutex
	asm := assembly.NewAssembler(reg).
		WithClock(func() time.Time { return fixedTime }).
		WithIDGenerator(func(time.Time) string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("lc-test-%d", n)
		})
	return New(reg, settings).WithAssembler(asm).WithSink(sink), sink
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestEstimateKeychainEndToEnd(t *testing.T) {
	e, sink := newEstimator(t, nil)

	resp, err := e.Estimate(context.Background(), Request{
		Query:     "  custom   printed keychains ",
		SessionID: "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, "novelty_toy_small_plastic", resp.Classification.CategoryID)
	assert.False(t, resp.Classification.Fallback)

	rec := resp.Result
	assert.Equal(t, "custom printed keychains", rec.Meta.ProductRawInput)
	assert.Equal(t, 5000, rec.Meta.Order.Quantity)
	assert.Equal(t, "cn_to_us_west_coast", rec.Meta.Order.Route)
	assert.Equal(t, "DDP", rec.Meta.Order.Incoterm)
	assert.Equal(t, "USA", rec.Assumptions.TargetMarket)
	assert.Equal(t, "Amazon FBA", rec.Assumptions.Channel)
	assert.Equal(t, 2595.96, rec.LandedCost.Totals.TotalLandedCostUSD)
	assert.Equal(t, 0.5192, rec.LandedCost.Totals.LandedCostPerUnitUSD)
	assert.Equal(t, assembly.StatusAbsent, rec.Meta.AnnotationStatus)

	require.NotNil(t, resp.Policy)
	assert.Equal(t, policy.DecisionPass, resp.Policy.Decision)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "lc-test-1", entries[0].AnalysisID)
	assert.Equal(t, analytics.ModeSingle, entries[0].Mode)
	assert.Equal(t, analytics.SourceCLI, entries[0].Source)
	assert.Equal(t, "s1", entries[0].SessionID)
	assert.Equal(t, 2595.96, entries[0].TotalLandedCostUSD)
}

func TestEstimateRequestOverrides(t *testing.T) {
	e, _ := newEstimator(t, nil)

	resp, err := e.Estimate(context.Background(), Request{
		Query:        "keychain",
		Quantity:     intPtr(1000),
		Route:        "cn_to_eu",
		Incoterm:     "FOB",
		TargetMarket: "Germany",
		Channel:      "Shopify",
		RetailPrice:  floatPtr(1.5),
	})
	require.NoError(t, err)

	rec := resp.Result
	assert.Equal(t, 1000, rec.Meta.Order.Quantity)
	assert.Equal(t, "cn_to_eu", rec.Assumptions.Route)
	assert.False(t, rec.Assumptions.RouteFallback)
	assert.Equal(t, "FOB", rec.Assumptions.Incoterm)
	assert.Equal(t, "Germany", rec.Assumptions.TargetMarket)
	assert.Equal(t, "Shopify", rec.Assumptions.Channel)
	require.NotNil(t, rec.LandedCost.MarginEstimate)
	assert.Equal(t, 1.5, rec.LandedCost.MarginEstimate.RetailPricePerUnitUSD)
}

func TestEstimateDecodedRequest(t *testing.T) {
	e, _ := newEstimator(t, nil)

	body := `{
		"query": "keychain",
		"quantity": 5000,
		"retail_price": 2.0,
		"annotations": {
			"demand_level": "High",
			"margin_notes": "Gift shops restock before Q4",
			"hidden_cost_alerts": ["Mould fee on first order"]
		}
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NotNil(t, req.RetailPrice)
	assert.Equal(t, 2.0, *req.RetailPrice)
	assert.NotEmpty(t, req.Annotation)

	resp, err := e.Estimate(context.Background(), req)
	require.NoError(t, err)

	rec := resp.Result
	require.NotNil(t, rec.LandedCost.MarginEstimate)
	assert.Equal(t, 2.0, rec.LandedCost.MarginEstimate.RetailPricePerUnitUSD)
	assert.Equal(t, assembly.StatusValid, rec.Meta.AnnotationStatus)
	assert.Equal(t, "High", string(rec.MarketSnapshot.Demand.Level))
	assert.Equal(t, []string{"Mould fee on first order"}, rec.LandedCost.HiddenCostAlerts)
	assert.Equal(t, 2595.96, rec.LandedCost.Totals.TotalLandedCostUSD)
}

func TestEstimateUnknownRouteFallsBack(t *testing.T) {
	e, _ := newEstimator(t, nil)

	resp, err := e.Estimate(context.Background(), Request{Query: "keychain", Route: "moon_base"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Assumptions.RouteFallback)
	assert.Equal(t, "cn_to_us_west_coast", resp.Result.Assumptions.Route)
	assert.Equal(t, policy.DecisionWarn, resp.Policy.Decision)
}

func TestEstimateExplicitCategory(t *testing.T) {
	e, _ := newEstimator(t, nil)

	resp, err := e.Estimate(context.Background(), Request{
		Query:      "keychain",
		CategoryID: "electronics_small_accessory",
	})
	require.NoError(t, err)
	assert.Equal(t, "electronics_small_accessory", resp.Result.Meta.CategoryID)

	_, err = e.Estimate(context.Background(), Request{Query: "keychain", CategoryID: "nope"})
	le, ok := lcerrors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, lcerrors.ErrCodeInvalidCategory, le.Code)
	assert.Equal(t, "category_id", le.Field)
}

func TestEstimateFallbackCategoryWarns(t *testing.T) {
	e, _ := newEstimator(t, nil)

	resp, err := e.Estimate(context.Background(), Request{Query: "something entirely unidentifiable"})
	require.NoError(t, err)
	assert.True(t, resp.Classification.Fallback)
	assert.True(t, resp.Result.Meta.CategoryFallback)
	assert.Equal(t, 0.6, resp.Result.Assumptions.ReliabilityScore)
	assert.Equal(t, policy.DecisionWarn, resp.Policy.Decision)
}

func TestEstimateCustomPolicyDenies(t *testing.T) {
	e, _ := newEstimator(t, nil)

	resp, err := e.Estimate(context.Background(), Request{
		Query:    "keychain",
		Policies: []policy.Policy{policy.OrderBudget(2000)},
	})
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, resp.Policy.Decision)
	require.Len(t, resp.Policy.Violations, 1)
	// Guardrails never touch the numbers.
	assert.Equal(t, 2595.96, resp.Result.LandedCost.Totals.TotalLandedCostUSD)
}

func TestEstimateAnnotationStatuses(t *testing.T) {
	settings := platform.DefaultSettings()
	settings.MaxAnnotationBytes = 64
	e, _ := newEstimator(t, settings)
	ctx := context.Background()

	valid, err := e.Estimate(ctx, Request{
		Query:      "keychain",
		Annotation: json.RawMessage(`{"product_name":"Logo keychain"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, assembly.StatusValid, valid.Result.Meta.AnnotationStatus)
	assert.Equal(t, "Logo keychain", valid.Result.Meta.ProductName)

	bad, err := e.Estimate(ctx, Request{
		Query:      "keychain",
		Annotation: json.RawMessage(`{"demand_score":"high"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, assembly.StatusMalformed, bad.Result.Meta.AnnotationStatus)

	big, err := e.Estimate(ctx, Request{
		Query:      "keychain",
		Annotation: json.RawMessage(`{"product_name":"` + strings.Repeat("x", 100) + `"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, assembly.StatusMalformed, big.Result.Meta.AnnotationStatus)
	assert.Contains(t, big.Result.Meta.AnnotationIssue, "64 bytes")

	assert.Equal(t, valid.Result.LandedCost, bad.Result.LandedCost)
	assert.Equal(t, bad.Result.LandedCost, big.Result.LandedCost)
}

func TestEstimateRejectsInvalidInput(t *testing.T) {
	e, sink := newEstimator(t, nil)

	_, err := e.Estimate(context.Background(), Request{Query: "   "})
	assert.True(t, lcerrors.IsValidation(err))

	_, err = e.Estimate(context.Background(), Request{Query: "keychain", Quantity: intPtr(0)})
	assert.True(t, lcerrors.IsValidation(err))

	assert.Empty(t, sink.Entries())
}

func TestEstimateCancelledContext(t *testing.T) {
	e, _ := newEstimator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Estimate(ctx, Request{Query: "keychain"})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSink struct {
	analytics.Nop
}

func (failingSink) Record(context.Context, analytics.Entry) error {
	return fmt.Errorf("disk full")
}

func TestEstimateSurvivesAnalyticsFailure(t *testing.T) {
	e, _ := newEstimator(t, nil)
	e.WithSink(failingSink{})

	resp, err := e.Estimate(context.Background(), Request{Query: "keychain"})
	require.NoError(t, err)
	assert.Equal(t, 2595.96, resp.Result.LandedCost.Totals.TotalLandedCostUSD)
}

func TestEstimateBatch(t *testing.T) {
	settings := platform.DefaultSettings()
	settings.BatchConcurrency = 3
	e, sink := newEstimator(t, settings)

	reqs := []Request{
		{Query: "keychain"},
		{Query: ""},
		{Query: "USB charger cable for phones"},
		{Query: "keychain", RetailPrice: floatPtr(-1)},
	}
	for i := 0; i < 20; i++ {
		reqs = append(reqs, Request{Query: "keychain", Quantity: intPtr(1000 + i)})
	}

	items, err := e.EstimateBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, len(reqs))

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	require.NotNil(t, items[0].Response)
	assert.Equal(t, 2595.96, items[0].Response.Result.LandedCost.Totals.TotalLandedCostUSD)
	assert.Nil(t, items[1].Response)
	assert.Equal(t, lcerrors.ErrCodeInvalidQuery, items[1].Code)
	assert.Equal(t, "electronics_small_accessory", items[2].Response.Result.Meta.CategoryID)
	assert.Equal(t, lcerrors.ErrCodeInvalidPrice, items[3].Code)
	assert.Equal(t, 1019, items[23].Response.Result.Meta.Order.Quantity)

	entries := sink.Entries()
	assert.Len(t, entries, 22)
	for _, en := range entries {
		assert.Equal(t, analytics.ModeBatch, en.Mode)
	}
}

func TestEstimateBatchZeroConcurrencyUsesDefault(t *testing.T) {
	settings := platform.DefaultSettings()
	settings.BatchConcurrency = 0
	e, _ := newEstimator(t, settings)

	done := make(chan []BatchItem, 1)
	go func() {
		items, _ := e.EstimateBatch(context.Background(), []Request{{Query: "keychain"}, {Query: "gummy"}})
		done <- items
	}()

	select {
	case items := <-done:
		require.Len(t, items, 2)
		assert.NotNil(t, items[0].Response)
		assert.NotNil(t, items[1].Response)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}
	assert.Equal(t, 0, settings.BatchConcurrency)
}

func TestEstimateBatchCancelled(t *testing.T) {
	e, _ := newEstimator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := e.EstimateBatch(ctx, []Request{{Query: "keychain"}, {Query: "gummy"}})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Nil(t, item.Response)
		assert.NotEmpty(t, item.Error)
	}
}
