// Package estimation provides the landed cost engine.
// It decomposes an order into product, packing, freight, handling and
// duty components from a category cost profile. The engine is a pure function
// of its inputs: no I/O, no clock, no shared mutable state.
package estimation

import (
	"fmt"

	"landed-cost/decision/catalog"
)

// Engine computes cost breakdowns.
type Engine struct {
	defaultRoute    string
	includeFormulas bool
}

// NewEngine creates an engine that falls back to catalog.DefaultRouteID for
// unpriced routes.
func NewEngine() *Engine {
	return &Engine{defaultRoute: catalog.DefaultRouteID}
}

// WithDefaultRoute sets the route used when an order names an unpriced one.
func (e *Engine) WithDefaultRoute(route string) *Engine {
	if route != "" {
		e.defaultRoute = route
	}
	return e
}

// WithFormulas attaches a human-readable formula to each component.
func (e *Engine) WithFormulas(on bool) *Engine {
	e.includeFormulas = on
	return e
}

// OrderSpec describes one order. Quantity must be validated positive by the
// caller; defaults are the caller's responsibility.
type OrderSpec struct {
	CategoryID       string   `json:"category_id"`
	Quantity         int      `json:"quantity"`
	Route            string   `json:"route"`
	Incoterm         string   `json:"incoterm"`
	RetailPrice      *float64 `json:"retail_price,omitempty"`
	WeightOverrideKg *float64 `json:"unit_weight_override_kg,omitempty"`
}

// Compute builds the full breakdown for order priced with profile.
//
// Unpriced routes fall back silently to the engine's default route; the
// breakdown records the resolved route and sets RouteFallback. The dutiable
// base is product cost plus sea freight only: origin and destination port
// charges are excluded.
func (e *Engine) Compute(order OrderSpec, p *catalog.Profile) CostBreakdown {
	qty := float64(order.Quantity)

	unitWeight := p.UnitWeightKg
	if order.WeightOverrideKg != nil && *order.WeightOverrideKg > 0 {
		unitWeight = *order.WeightOverrideKg
	}

	// =========================================================================
	// VOLUME
	// =========================================================================
	totalWeight := qty * unitWeight
	totalCartons := qty / p.UnitsPerCarton
	totalCBM := totalCartons / p.CartonsPerCBM

	// =========================================================================
	// PRODUCT & PACKING
	// =========================================================================
	product := totalWeight * p.FOBCostPerKg
	packingOuter := totalCartons * p.Packing.OuterCartonUSD
	packingInner := totalCartons * p.Packing.InnerCartonUSD
	packing := packingOuter + packingInner

	// =========================================================================
	// FREIGHT
	// =========================================================================
	rate, resolvedRoute, fallback := p.FreightFor(order.Route, e.defaultRoute)
	seaFreight := totalCBM * rate.SeaFreightPerCBM
	originCharges := totalCBM * rate.OriginPerCBM
	destinationCharges := totalCBM * rate.DestinationPerCBM
	shipping := seaFreight + originCharges + destinationCharges

	// =========================================================================
	// HANDLING (flat per order)
	// =========================================================================
	broker := p.Handling.BrokerPerShipmentUSD
	portMisc := p.Handling.PortMiscPerShipmentUSD
	handling := broker + portMisc + p.QCCostPerOrder + p.CertCostPerSKU

	// =========================================================================
	// DUTY & TAX
	// =========================================================================
	dutiableBase := product + seaFreight
	duty := dutiableBase * p.DutyRatePercent / 100.0
	extraTaxes := dutiableBase * p.ExtraTaxPercent / 100.0
	dutyAndTax := duty + extraTaxes

	// =========================================================================
	// TOTALS
	// =========================================================================
	total := product + packing + shipping + handling + dutyAndTax
	perUnit := 0.0
	if qty > 0 {
		perUnit = total / qty
	}

	amounts := [...]float64{product, packing, shipping, handling, dutyAndTax}
	components := make([]Component, len(componentKeys))
	for i, key := range componentKeys {
		components[i] = Component{
			Key:          key,
			Label:        componentLabels[key],
			AmountUSD:    amounts[i],
			SharePercent: share(amounts[i], total),
		}
	}

	if e.includeFormulas {
		components[0].Formula = fmt.Sprintf("%d units × %.4f kg × $%.2f/kg", order.Quantity, unitWeight, p.FOBCostPerKg)
		components[1].Formula = fmt.Sprintf("%.1f cartons × ($%.2f + $%.2f)", totalCartons, p.Packing.OuterCartonUSD, p.Packing.InnerCartonUSD)
		components[2].Formula = fmt.Sprintf("%.3f cbm × $%.2f/cbm", totalCBM, rate.PerCBM())
		components[3].Formula = fmt.Sprintf("$%.2f broker + $%.2f port + $%.2f QC + $%.2f certification", broker, portMisc, p.QCCostPerOrder, p.CertCostPerSKU)
		components[4].Formula = fmt.Sprintf("($%.2f product + $%.2f sea freight) × (%.1f%% + %.1f%%)", product, seaFreight, p.DutyRatePercent, p.ExtraTaxPercent)
	}

	detailed := []LineItem{
		newLineItem(ItemProductFOB, product),
		newLineItem(ItemPackingOuter, packingOuter),
		newLineItem(ItemPackingInner, packingInner),
		newLineItem(ItemSeaFreight, seaFreight),
		newLineItem(ItemOriginCharges, originCharges),
		newLineItem(ItemDestinationCharges, destinationCharges),
		newLineItem(ItemCustomsBroker, broker),
		newLineItem(ItemPortMisc, portMisc),
		newLineItem(ItemQCInspection, p.QCCostPerOrder),
		newLineItem(ItemCertification, p.CertCostPerSKU),
		newLineItem(ItemImportDuty, duty),
		newLineItem(ItemExtraTaxes, extraTaxes),
	}

	b := CostBreakdown{
		Quantity:          order.Quantity,
		TotalWeightKg:     totalWeight,
		TotalCartons:      totalCartons,
		TotalCBM:          totalCBM,
		Components:        components,
		Detailed:          detailed,
		DutiableBase:      dutiableBase,
		TotalLandedCost:   total,
		PerUnitLandedCost: perUnit,
		Assumptions: Assumptions{
			CategoryID:      p.ID,
			CategoryLabel:   p.Label,
			RequestedRoute:  order.Route,
			Route:           resolvedRoute,
			RouteFallback:   fallback,
			Incoterm:        order.Incoterm,
			UnitWeightKg:    unitWeight,
			DutyRatePercent: p.DutyRatePercent,
			ExtraTaxPercent: p.ExtraTaxPercent,
			HSCodeHint:      p.HSCodeHint,
		},
		Benchmarks: Benchmarks{
			MOQUnits:      p.MOQUnits,
			LeadTimeDays:  p.LeadTimeDays,
			MarginLow:     p.Margins.Low,
			MarginTypical: p.Margins.Typical,
			MarginHigh:    p.Margins.High,
		},
	}

	if order.RetailPrice != nil && *order.RetailPrice > 0 {
		b.Margin = marginEstimate(*order.RetailPrice, perUnit, p.Margins)
	}

	return b
}

func share(amount, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return amount / total * 100.0
}

// Margin assessments relative to category benchmarks.
const (
	AssessmentBelow  = "Below typical - consider negotiating costs"
	AssessmentStrong = "Strong margin - good opportunity"
	AssessmentWithin = "Within typical range for this category"
)

func marginEstimate(retail, perUnit float64, bench catalog.MarginBenchmarks) *MarginEstimate {
	margin := retail - perUnit
	pct := margin / retail * 100.0

	assessment := AssessmentWithin
	switch {
	case pct < bench.Low*100:
		assessment = AssessmentBelow
	case pct > bench.High*100:
		assessment = AssessmentStrong
	}

	return &MarginEstimate{
		RetailPricePerUnit: retail,
		GrossMarginPerUnit: margin,
		GrossMarginPercent: pct,
		Assessment:         assessment,
	}
}
