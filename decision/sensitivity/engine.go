// Package sensitivity derives fixed what-if scenarios from a cost breakdown.
package sensitivity

import (
	"fmt"
	"strings"

	"landed-cost/decision/estimation"
	"landed-cost/pkg/confidence"
)

// Scenario is one what-if case expressed as a margin delta in percentage
// points.
type Scenario struct {
	ID               string  `json:"scenario_id"`
	Name             string  `json:"title"`
	Trigger          string  `json:"description"`
	MarginImpact     float64 `json:"margin_impact_points"`
	NewMargin        float64 `json:"new_margin_percent"`
	MarginImpactText string  `json:"margin_impact"`
	NewMarginText    string  `json:"new_margin"`
	Recommendation   string  `json:"recommendation"`
}

// Result holds the base margin and the three scenarios.
type Result struct {
	BaseMargin     float64    `json:"base_margin_percent"`
	BaseMarginText string     `json:"base_margin"`
	FromRetail     bool       `json:"base_from_retail_price"`
	Scenarios      []Scenario `json:"scenarios"`
}

// Config holds the scenario parameters.
type Config struct {
	ShippingSurge     float64 // fraction, 0.20 = +20%
	DutyReliefPoints  float64 // percentage points removed from the duty rate
	DutyReliefCap     float64 // max margin improvement in points
	ProductInflation  float64 // fraction, 0.10 = +10%
	DefaultBaseMargin float64 // percent, used without a retail price
}

// DefaultConfig returns the standard scenario set.
func DefaultConfig() Config {
	return Config{
		ShippingSurge:     0.20,
		DutyReliefPoints:  5,
		DutyReliefCap:     3,
		ProductInflation:  0.10,
		DefaultBaseMargin: 30,
	}
}

// Engine computes scenarios. It only reads the breakdown.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with DefaultConfig.
func NewEngine() *Engine {
	return &Engine{cfg: DefaultConfig()}
}

// WithConfig overrides the scenario parameters.
func (e *Engine) WithConfig(cfg Config) *Engine {
	e.cfg = cfg
	return e
}

// Compute returns exactly three scenarios: shipping surge, duty relief and
// product cost inflation, in that order. Impacts come from the breakdown's
// component shares; the duty rate comes from its assumptions echo.
//
// The duty relief impact is bounded to [0, DutyReliefCap]. A duty rate below
// DutyReliefPoints yields zero impact rather than a negative one.
func (e *Engine) Compute(b estimation.CostBreakdown) Result {
	base := e.cfg.DefaultBaseMargin
	fromRetail := false
	if b.Margin != nil {
		base = b.Margin.GrossMarginPercent
		fromRetail = true
	}

	shippingImpact := 0 - b.Share(estimation.ComponentShipping)*e.cfg.ShippingSurge

	dutyImpact := 0.0
	if rate := b.Assumptions.DutyRatePercent; rate > 0 {
		dutyImpact = (rate - e.cfg.DutyReliefPoints) / rate * b.Share(estimation.ComponentDutyAndTax)
		dutyImpact = confidence.ClampRange(dutyImpact, 0, e.cfg.DutyReliefCap)
	}

	productImpact := 0 - b.Share(estimation.ComponentProduct)*e.cfg.ProductInflation

	return Result{
		BaseMargin:     base,
		BaseMarginText: formatPercent(base),
		FromRetail:     fromRetail,
		Scenarios: []Scenario{
			newScenario(
				fmt.Sprintf("Shipping cost +%g%%", e.cfg.ShippingSurge*100),
				"Peak season, port congestion, fuel surcharge",
				"Consider off-peak shipping or larger batch sizes",
				base, shippingImpact,
			),
			newScenario(
				fmt.Sprintf("Duty reduced by %g points", e.cfg.DutyReliefPoints),
				"Trade agreement, tariff negotiation",
				"Monitor trade policy changes",
				base, dutyImpact,
			),
			newScenario(
				fmt.Sprintf("Product cost +%g%%", e.cfg.ProductInflation*100),
				"Raw material price increase, supplier renegotiation",
				"Lock in pricing with longer contracts",
				base, productImpact,
			),
		},
	}
}

func newScenario(name, trigger, recommendation string, base, impact float64) Scenario {
	return Scenario{
		ID:               scenarioID(name),
		Name:             name,
		Trigger:          trigger,
		MarginImpact:     impact,
		NewMargin:        base + impact,
		MarginImpactText: fmt.Sprintf("%+.1f%%", impact),
		NewMarginText:    formatPercent(base + impact),
		Recommendation:   recommendation,
	}
}

// scenarioID turns "Shipping cost +20%" into "shipping_cost_+20pct".
func scenarioID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	return strings.ReplaceAll(id, "%", "pct")
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
