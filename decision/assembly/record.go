package assembly

import (
	"fmt"
	"strings"

	"landed-cost/decision/estimation"
	"landed-cost/pkg/confidence"
)

// ResultRecord is the single user-facing output of an estimate. Every numeric
// cost field comes from the cost breakdown, already rounded for display.
type ResultRecord struct {
	Meta            Meta            `json:"meta"`
	Assumptions     AssumptionsView `json:"assumptions"`
	MarketSnapshot  MarketSnapshot  `json:"market_snapshot"`
	LandedCost      LandedCostView  `json:"landed_cost"`
	Suppliers       []Supplier      `json:"suppliers"`
	RiskOverview    RiskOverview    `json:"risk_overview"`
	LeadTime        LeadTimePlan    `json:"lead_time"`
	NextActions     []NextAction    `json:"next_actions"`
	ConsultingOffer ConsultingOffer `json:"consulting_offer"`
}

// Meta identifies the analysis and echoes its inputs.
type Meta struct {
	AnalysisID        string               `json:"analysis_id"`
	TimestampUTC      string               `json:"timestamp_utc"`
	ProductRawInput   string               `json:"product_raw_input"`
	ProductName       string               `json:"product_name"`
	CategoryID        string               `json:"parsed_category_id"`
	CategoryLabel     string               `json:"parsed_category"`
	CategoryFallback  bool                 `json:"category_fallback"`
	Order             estimation.OrderSpec `json:"order_spec"`
	RegistryVersion   string               `json:"registry_version,omitempty"`
	CalculationMethod string               `json:"calculation_method"`
	CostAccuracy      string               `json:"cost_accuracy"`
	InsightSource     string               `json:"insight_source"`
	AnnotationStatus  AnnotationStatus     `json:"annotation_status"`
	AnnotationIssue   string               `json:"annotation_issue,omitempty"`
}

// AssumptionsView lists the inputs and defaults the estimate rests on.
type AssumptionsView struct {
	TargetMarket      string           `json:"target_market"`
	Channel           string           `json:"channel"`
	VolumeUnits       int              `json:"volume_units"`
	Incoterm          string           `json:"incoterm"`
	IncotermDisplay   string           `json:"incoterm_display"`
	Currency          string           `json:"currency"`
	RequestedRoute    string           `json:"requested_route"`
	Route             string           `json:"route"`
	RouteDisplay      string           `json:"shipping_route_display"`
	RouteFallback     bool             `json:"route_fallback"`
	UnitWeightKg      float64          `json:"unit_weight_kg"`
	DutyRatePercent   float64          `json:"duty_rate_percent"`
	ExtraTaxPercent   float64          `json:"extra_tax_percent"`
	HSCodeHint        string           `json:"hs_code_hint"`
	ReliabilityScore  float64          `json:"reliability_score"`
	ReliabilityLevel  confidence.Level `json:"reliability_level"`
	ReliabilityRange  string           `json:"reliability_range"`
	DataCoverageNotes string           `json:"data_coverage_notes"`
}

// MarketSnapshot is qualitative market context.
type MarketSnapshot struct {
	Demand      Demand      `json:"demand"`
	Margin      MarginView  `json:"margin"`
	Competition Competition `json:"competition"`
}

// Demand describes buyer interest.
type Demand struct {
	Level                  confidence.Level `json:"level"`
	Score                  float64          `json:"score"`
	ChangeVsLastQuarterPct float64          `json:"change_vs_last_quarter_percent"`
	Notes                  string           `json:"notes"`
}

// MarginView places the order's margin in its category context.
// CurrentPercent is set only when a retail price was supplied.
type MarginView struct {
	CurrentPercent              *float64   `json:"current_percent,omitempty"`
	EstimatedRangePercent       [2]float64 `json:"estimated_range_percent"`
	CategoryTypicalRangePercent [2]float64 `json:"category_typical_range_percent"`
	Notes                       string     `json:"notes"`
}

// Competition describes the seller landscape.
type Competition struct {
	Level          confidence.Level `json:"level"`
	Score          float64          `json:"score"`
	ActiveListings int              `json:"active_listings"`
	Notes          string           `json:"notes"`
}

// LandedCostView is the rounded rendering of a cost breakdown.
type LandedCostView struct {
	Order                 OrderVolume     `json:"order"`
	Totals                Totals          `json:"totals"`
	Components            []ComponentView `json:"components"`
	DetailedBreakdown     []LineItemView  `json:"detailed_breakdown"`
	DutiableBaseUSD       float64         `json:"dutiable_base_usd"`
	MarginEstimate        *MarginEstimate `json:"margin_estimate,omitempty"`
	CurrentMarginEstimate string          `json:"current_margin_estimate"`
	BaseMarginFromRetail  bool            `json:"base_margin_from_retail_price"`
	Sensitivity           []ScenarioView  `json:"sensitivity"`
	HiddenCostAlerts      []string        `json:"hidden_cost_alerts"`
}

// OrderVolume is the physical size of the order.
type OrderVolume struct {
	Units         int     `json:"units"`
	TotalWeightKg float64 `json:"total_weight_kg"`
	TotalCBM      float64 `json:"total_cbm"`
	TotalCartons  float64 `json:"total_cartons"`
}

// Totals are the headline numbers.
type Totals struct {
	TotalLandedCostUSD   float64 `json:"total_landed_cost_usd"`
	LandedCostPerUnitUSD float64 `json:"landed_cost_per_unit_usd"`
}

type ComponentView struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	AmountUSD    float64 `json:"amount_usd"`
	SharePercent float64 `json:"share_percent"`
	Formula      string  `json:"formula,omitempty"`
}

type LineItemView struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	AmountUSD   float64 `json:"amount_usd"`
}

// MarginEstimate is the retail margin from the breakdown, rounded.
type MarginEstimate struct {
	RetailPricePerUnitUSD float64 `json:"retail_price_per_unit_usd"`
	GrossMarginPerUnitUSD float64 `json:"gross_margin_per_unit_usd"`
	GrossMarginPercent    float64 `json:"gross_margin_percent"`
	Assessment            string  `json:"assessment"`
}

type ScenarioView struct {
	ScenarioID     string  `json:"scenario_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	MarginImpact   string  `json:"margin_impact"`
	NewMargin      string  `json:"new_margin"`
	ImpactPoints   float64 `json:"margin_impact_points"`
	Recommendation string  `json:"recommendation"`
}

// Supplier is an illustrative supplier card. Default cards are marked Example.
type Supplier struct {
	SupplierID          string   `json:"supplier_id"`
	DisplayName         string   `json:"display_name"`
	Location            Location `json:"location"`
	SupplierType        string   `json:"supplier_type"`
	Tier                string   `json:"tier"`
	Verified            bool     `json:"verified"`
	ExperienceYears     int      `json:"experience_years"`
	Certifications      []string `json:"certifications"`
	MOQUnits            int      `json:"moq_units"`
	PriceBandFOBUSD     string   `json:"price_band_fob_usd"`
	LeadTimeDays        string   `json:"lead_time_days"`
	ResponseTime        string   `json:"response_time"`
	RatingScore         float64  `json:"rating_score"`
	QualityTier         string   `json:"quality_tier"`
	SpecializationNotes string   `json:"specialization_notes"`
	RiskSummary         string   `json:"risk_summary"`
	RiskTags            []string `json:"risk_tags"`
	TradeAssurance      bool     `json:"trade_assurance"`
	Example             bool     `json:"example"`
}

type Location struct {
	City     string `json:"city"`
	Province string `json:"province"`
	Country  string `json:"country"`
}

// Risk axes reported in the overview, in display order.
const (
	AxisQuality      = "quality"
	AxisCompliance   = "compliance"
	AxisLeadTime     = "lead_time"
	AxisFinancial    = "financial"
	AxisGeopolitical = "geopolitical"
)

var riskAxes = [...]string{AxisQuality, AxisCompliance, AxisLeadTime, AxisFinancial, AxisGeopolitical}

func isRiskAxis(name string) bool {
	for _, a := range riskAxes {
		if a == name {
			return true
		}
	}
	return false
}

// RiskOverview is a qualitative risk profile.
type RiskOverview struct {
	OverallLevel confidence.Level            `json:"overall_level"`
	Axes         map[string]confidence.Level `json:"axes"`
	Comments     []string                    `json:"comments"`
}

// LeadTimePlan estimates days from order to availability.
type LeadTimePlan struct {
	ProductionDays int `json:"production_days"`
	ShippingDays   int `json:"shipping_days"`
	CustomsDays    int `json:"customs_days"`
	BufferDays     int `json:"buffer_days"`
	TotalDays      int `json:"total_days"`
	SafetyStock    int `json:"recommended_safety_stock_days"`
}

type NextAction struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action string `json:"action"`
}

// ConsultingOffer is the closing call to action.
type ConsultingOffer struct {
	Headline       string   `json:"headline"`
	Reason         string   `json:"reason"`
	CaseSummary    string   `json:"case_summary"`
	SuggestedScope []string `json:"suggested_scope"`
	ResponseTime   string   `json:"response_time"`
	ContactEmail   string   `json:"contact_email"`
}

// blank reports whether the card has nothing to identify a supplier by.
func (s Supplier) blank() bool {
	return strings.TrimSpace(s.SupplierID) == "" &&
		strings.TrimSpace(s.DisplayName) == "" &&
		s.Location == (Location{}) &&
		s.PriceBandFOBUSD == "" &&
		s.LeadTimeDays == ""
}

// normalizeSupplier bounds an annotation-supplied supplier card.
func normalizeSupplier(s Supplier, i int) Supplier {
	if strings.TrimSpace(s.SupplierID) == "" {
		s.SupplierID = fmt.Sprintf("sup_%03d", i+1)
	}
	s.DisplayName = truncate(strings.TrimSpace(s.DisplayName), maxTextLen)
	if s.DisplayName == "" {
		s.DisplayName = fmt.Sprintf("Supplier %d", i+1)
	}
	s.SpecializationNotes = truncate(s.SpecializationNotes, maxTextLen)
	s.RiskSummary = truncate(s.RiskSummary, maxTextLen)
	s.RatingScore = confidence.ClampRange(s.RatingScore, 0, maxRating)
	if s.MOQUnits < 0 {
		s.MOQUnits = 0
	}
	if s.ExperienceYears < 0 {
		s.ExperienceYears = 0
	}
	if s.Certifications == nil {
		s.Certifications = []string{}
	}
	if s.RiskTags == nil {
		s.RiskTags = []string{}
	}
	s.Example = false
	return s
}
