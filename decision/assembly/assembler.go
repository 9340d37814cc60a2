// Package assembly merges a cost breakdown, its sensitivity scenarios and an
// optional qualitative annotation into the user-facing ResultRecord.
//
// Numbers always come from the breakdown. An annotation can only contribute
// qualitative text, bounded scores and supplier cards; a missing or malformed
// annotation is replaced field by field with category defaults.
package assembly

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"landed-cost/decision/catalog"
	"landed-cost/decision/estimation"
	"landed-cost/decision/sensitivity"
	"landed-cost/pkg/confidence"
	"landed-cost/pkg/platform"
	"landed-cost/pkg/units"
)

// Report constants.
const (
	CalculationMethod = "hybrid"
	CostAccuracy      = "±20-25% (rule-based)"

	InsightFromAnnotation = "AI-assisted"
	InsightFromDefaults   = "category defaults"
)

// Lead time components in days, on top of production.
const (
	shippingDays          = 28
	customsDays           = 5
	bufferDays            = 7
	safetyStockDays       = 14
	defaultProductionDays = 30
)

// Config holds presentation settings.
type Config struct {
	Currency          string
	ConsultationEmail string
}

// DefaultConfig returns USD pricing and the default consultation address.
func DefaultConfig() Config {
	return Config{
		Currency:          "USD",
		ConsultationEmail: platform.DefaultSettings().ConsultationEmail,
	}
}

// Input is everything one assembly needs.
type Input struct {
	Query        string
	TargetMarket string
	Channel      string
	Order        estimation.OrderSpec
	Breakdown    estimation.CostBreakdown
	Sensitivity  sensitivity.Result
	Annotation   Annotation
}

// Assembler builds result records. It is safe for concurrent use once
// configured.
type Assembler struct {
	registry *catalog.Registry
	cfg      Config
	now      func() time.Time
	newID    func(time.Time) string
}

// NewAssembler creates an assembler that resolves category profiles in reg.
func NewAssembler(reg *catalog.Registry) *Assembler {
	return &Assembler{
		registry: reg,
		cfg:      DefaultConfig(),
		now:      time.Now,
		newID:    NewAnalysisID,
	}
}

// WithConfig replaces the presentation settings.
func (a *Assembler) WithConfig(cfg Config) *Assembler {
	a.cfg = cfg
	return a
}

// WithClock sets the time source used for timestamps and ids.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// WithIDGenerator sets the analysis id generator.
func (a *Assembler) WithIDGenerator(gen func(time.Time) string) *Assembler {
	a.newID = gen
	return a
}

// NewAnalysisID returns ids of the form lc-20251120-143005-1a2b3c4d.
func NewAnalysisID(t time.Time) string {
	return fmt.Sprintf("lc-%s-%s", t.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// Assemble builds the record. It never fails: any annotation problem falls
// back to category defaults and is reported in Meta.
func (a *Assembler) Assemble(in Input) ResultRecord {
	b := in.Breakdown
	p := a.registry.Lookup(b.Assumptions.CategoryID)
	fallback := a.registry.IsFallback(p.ID)

	fields, status, issue := resolveAnnotation(in.Annotation)
	insight := InsightFromDefaults
	if status == StatusValid {
		insight = InsightFromAnnotation
	}

	ts := a.now().UTC()

	suppliers := defaultSuppliers(p, b.Assumptions.UnitWeightKg*p.FOBCostPerKg)
	if fields.Suppliers != nil {
		suppliers = cloneSuppliers(fields.Suppliers)
	}

	market := a.marketSnapshot(p, b, fields)
	landed := landedCostView(b, in.Sensitivity, p.Kind, fields)

	rec := ResultRecord{
		Meta: Meta{
			AnalysisID:        a.newID(ts),
			TimestampUTC:      ts.Format(time.RFC3339),
			ProductRawInput:   in.Query,
			ProductName:       stringOr(fields.ProductName, defaultProductName(p.Label)),
			CategoryID:        p.ID,
			CategoryLabel:     p.Label,
			CategoryFallback:  fallback,
			Order:             in.Order,
			RegistryVersion:   a.registry.Version(),
			CalculationMethod: CalculationMethod,
			CostAccuracy:      CostAccuracy,
			InsightSource:     insight,
			AnnotationStatus:  status,
			AnnotationIssue:   issue,
		},
		Assumptions:    a.assumptions(in, b, p, fallback, fields),
		MarketSnapshot: market,
		LandedCost:     landed,
		Suppliers:      suppliers,
		RiskOverview:   riskOverview(p.Label, fields.RiskOverview),
		LeadTime:       leadTimePlan(suppliers),
		NextActions:    slices.Clone(defaultNextActions),
	}

	rec.ConsultingOffer = ConsultingOffer{
		Headline: "Ready to make it real?",
		Reason:   stringOr(fields.ConsultingReason, defaultConsultingReason),
		CaseSummary: fmt.Sprintf("Landed cost ~$%.2f/unit · Margin %.0f–%.0f%% · %d vetted suppliers",
			landed.Totals.LandedCostPerUnitUSD,
			market.Margin.EstimatedRangePercent[0],
			market.Margin.EstimatedRangePercent[1],
			len(suppliers)),
		SuggestedScope: []string{"factory_sourcing", "sample_qc", "logistics"},
		ResponseTime:   "24 hours",
		ContactEmail:   a.cfg.ConsultationEmail,
	}

	return rec
}

func resolveAnnotation(ann Annotation) (AnnotationFields, AnnotationStatus, string) {
	switch v := ann.(type) {
	case ValidAnnotation:
		return v.Fields, StatusValid, ""
	case *ValidAnnotation:
		if v != nil {
			return v.Fields, StatusValid, ""
		}
	case MalformedAnnotation:
		return AnnotationFields{}, StatusMalformed, v.Reason
	case *MalformedAnnotation:
		if v != nil {
			return AnnotationFields{}, StatusMalformed, v.Reason
		}
	}
	return AnnotationFields{}, StatusAbsent, ""
}

func (a *Assembler) assumptions(in Input, b estimation.CostBreakdown, p *catalog.Profile, fallback bool, f AnnotationFields) AssumptionsView {
	incoterm := in.Order.Incoterm
	if incoterm == "" {
		incoterm = b.Assumptions.Incoterm
	}
	currency := a.cfg.Currency
	if currency == "" {
		currency = a.registry.Currency()
	}

	score := confidence.Reliability(fallback)
	if f.ReliabilityScore != nil {
		score = *f.ReliabilityScore
	}
	level := confidence.ReliabilityLevel(score)
	if f.ReliabilityLevel != nil {
		level = *f.ReliabilityLevel
	}

	return AssumptionsView{
		TargetMarket:      in.TargetMarket,
		Channel:           in.Channel,
		VolumeUnits:       b.Quantity,
		Incoterm:          incoterm,
		IncotermDisplay:   platform.IncotermDisplay(incoterm),
		Currency:          currency,
		RequestedRoute:    b.Assumptions.RequestedRoute,
		Route:             b.Assumptions.Route,
		RouteDisplay:      a.registry.RouteLabel(b.Assumptions.Route),
		RouteFallback:     b.Assumptions.RouteFallback,
		UnitWeightKg:      units.Round(b.Assumptions.UnitWeightKg, units.PerUnitPlaces),
		DutyRatePercent:   units.Percent(b.Assumptions.DutyRatePercent),
		ExtraTaxPercent:   units.Percent(b.Assumptions.ExtraTaxPercent),
		HSCodeHint:        b.Assumptions.HSCodeHint,
		ReliabilityScore:  units.Round(score, 2),
		ReliabilityLevel:  level,
		ReliabilityRange:  confidence.ReliabilityRange(score),
		DataCoverageNotes: stringOr(f.DataCoverageNotes, defaultCoverageNotes(p.Label)),
	}
}

func (a *Assembler) marketSnapshot(p *catalog.Profile, b estimation.CostBreakdown, f AnnotationFields) MarketSnapshot {
	demandScore := floatOr(f.DemandScore, defaultDemandScore)
	competitionScore := floatOr(f.CompetitionScore, defaultCompetitionScore)

	margin := MarginView{
		EstimatedRangePercent:       defaultMarginRange(p.Margins),
		CategoryTypicalRangePercent: categoryMarginRange(p.Margins),
		Notes:                       stringOr(f.MarginNotes, defaultMarginNotes(p.Label)),
	}
	if f.MarginRangePercent != nil {
		margin.EstimatedRangePercent = *f.MarginRangePercent
	}
	if f.CategoryMarginRangePercent != nil {
		margin.CategoryTypicalRangePercent = *f.CategoryMarginRangePercent
	}
	if b.Margin != nil {
		pct := units.Percent(b.Margin.GrossMarginPercent)
		margin.CurrentPercent = &pct
	}

	listings := defaultActiveListings
	if f.ActiveListings != nil {
		listings = *f.ActiveListings
	}

	return MarketSnapshot{
		Demand: Demand{
			Level:                  levelFor(f.DemandLevel, f.DemandScore),
			Score:                  units.Round(demandScore, 2),
			ChangeVsLastQuarterPct: units.Percent(floatOr(f.DemandChange, 0)),
			Notes:                  stringOr(f.DemandNotes, defaultDemandNotes),
		},
		Margin: margin,
		Competition: Competition{
			Level:          levelFor(f.CompetitionLevel, f.CompetitionScore),
			Score:          units.Round(competitionScore, 2),
			ActiveListings: listings,
			Notes:          stringOr(f.CompetitionNotes, defaultCompetitionNotes),
		},
	}
}

// levelFor prefers an explicit level, then a level derived from a supplied
// score, then Medium.
func levelFor(level *confidence.Level, score *float64) confidence.Level {
	if level != nil {
		return *level
	}
	if score != nil {
		return confidence.ScoreLevel(*score)
	}
	return confidence.LevelMedium
}

func landedCostView(b estimation.CostBreakdown, s sensitivity.Result, kind catalog.Kind, f AnnotationFields) LandedCostView {
	components := make([]ComponentView, len(b.Components))
	for i, c := range b.Components {
		components[i] = ComponentView{
			Key:          c.Key,
			Label:        c.Label,
			AmountUSD:    units.USD(c.AmountUSD),
			SharePercent: units.Percent(c.SharePercent),
			Formula:      c.Formula,
		}
	}

	detailed := make([]LineItemView, len(b.Detailed))
	for i, li := range b.Detailed {
		detailed[i] = LineItemView{
			Key:         li.Key,
			Label:       li.Label,
			Description: li.Description,
			AmountUSD:   units.USD(li.AmountUSD),
		}
	}

	scenarios := make([]ScenarioView, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		scenarios[i] = ScenarioView{
			ScenarioID:     sc.ID,
			Title:          sc.Name,
			Description:    sc.Trigger,
			MarginImpact:   sc.MarginImpactText,
			NewMargin:      sc.NewMarginText,
			ImpactPoints:   units.Percent(sc.MarginImpact),
			Recommendation: sc.Recommendation,
		}
	}

	alerts := defaultHiddenCosts(kind)
	if f.HiddenCostAlerts != nil {
		alerts = slices.Clone(f.HiddenCostAlerts)
	}

	view := LandedCostView{
		Order: OrderVolume{
			Units:         b.Quantity,
			TotalWeightKg: units.Weight(b.TotalWeightKg),
			TotalCBM:      units.CBM(b.TotalCBM),
			TotalCartons:  units.Cartons(b.TotalCartons),
		},
		Totals: Totals{
			TotalLandedCostUSD:   units.USD(b.TotalLandedCost),
			LandedCostPerUnitUSD: units.PerUnit(b.PerUnitLandedCost),
		},
		Components:            components,
		DetailedBreakdown:     detailed,
		DutiableBaseUSD:       units.USD(b.DutiableBase),
		CurrentMarginEstimate: s.BaseMarginText,
		BaseMarginFromRetail:  s.FromRetail,
		Sensitivity:           scenarios,
		HiddenCostAlerts:      alerts,
	}

	if m := b.Margin; m != nil {
		view.MarginEstimate = &MarginEstimate{
			RetailPricePerUnitUSD: units.PerUnit(m.RetailPricePerUnit),
			GrossMarginPerUnitUSD: units.PerUnit(m.GrossMarginPerUnit),
			GrossMarginPercent:    units.Percent(m.GrossMarginPercent),
			Assessment:            m.Assessment,
		}
	}

	return view
}

func riskOverview(label string, patch *RiskPatch) RiskOverview {
	ro := defaultRiskOverview(label)
	if patch == nil {
		return ro
	}
	if patch.OverallLevel != nil {
		ro.OverallLevel = *patch.OverallLevel
	}
	for axis, lvl := range patch.Axes {
		ro.Axes[axis] = lvl
	}
	if patch.Comments != nil {
		ro.Comments = slices.Clone(patch.Comments)
	}
	return ro
}

// leadTimePlan takes production time from the lower bound of the first
// supplier's lead time range.
func leadTimePlan(suppliers []Supplier) LeadTimePlan {
	production := defaultProductionDays
	if len(suppliers) > 0 {
		if d, ok := lowerBoundDays(suppliers[0].LeadTimeDays); ok {
			production = d
		}
	}
	return LeadTimePlan{
		ProductionDays: production,
		ShippingDays:   shippingDays,
		CustomsDays:    customsDays,
		BufferDays:     bufferDays,
		TotalDays:      production + shippingDays + customsDays + bufferDays,
		SafetyStock:    safetyStockDays,
	}
}

// lowerBoundDays parses the leading integer of "25–35", "25-35" or "25".
func lowerBoundDays(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	d, err := strconv.Atoi(s[:end])
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func cloneSuppliers(in []Supplier) []Supplier {
	out := make([]Supplier, len(in))
	for i, s := range in {
		s.Certifications = slices.Clone(s.Certifications)
		s.RiskTags = slices.Clone(s.RiskTags)
		out[i] = s
	}
	return out
}

func stringOr(v *string, def string) string {
	if v != nil {
		return *v
	}
	return def
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
