package assembly

import (
	"fmt"

	"landed-cost/decision/catalog"
	"landed-cost/pkg/confidence"
)

// Category defaults used wherever an annotation field is missing.
const (
	defaultDemandScore      = 0.6
	defaultCompetitionScore = 0.6
	defaultActiveListings   = 10
	defaultMOQUnits         = 1000
	defaultLeadTimeDays     = 25

	defaultDemandNotes      = "Moderate demand with seasonal variations."
	defaultCompetitionNotes = "Moderate competition with established players."
	defaultConsultingReason = "This analysis provides structure and insights. When you're ready, let us handle factory visits, negotiations, and quality control."
)

var baseHiddenCosts = []string{
	"Raw material price fluctuations may affect FOB pricing.",
	"Port congestion or delays may incur demurrage/detention fees.",
	"Quality control inspection fees for pre-shipment verification.",
}

var kindHiddenCosts = map[catalog.Kind][]string{
	catalog.KindFood: {
		"Food safety testing costs (heavy metals, microbiological).",
		"FDA registration and import compliance fees.",
	},
	catalog.KindToy: {
		"CPSIA compliance testing for children's products.",
		"Third-party safety certification costs.",
	},
	catalog.KindElectronics: {
		"FCC/CE certification and testing requirements.",
		"Potential warranty and return handling costs.",
	},
}

const tariffAlert = "Potential changes in import tariffs or trade policy."

// defaultHiddenCosts returns the template alerts for a category kind.
func defaultHiddenCosts(kind catalog.Kind) []string {
	alerts := make([]string, 0, maxAlerts+1)
	alerts = append(alerts, baseHiddenCosts...)
	alerts = append(alerts, kindHiddenCosts[kind]...)
	alerts = append(alerts, tariffAlert)
	if len(alerts) > maxAlerts {
		alerts = alerts[:maxAlerts]
	}
	return alerts
}

func defaultProductName(label string) string {
	return label + " product"
}

func defaultMarginNotes(label string) string {
	return fmt.Sprintf("Based on landed cost estimate and typical retail pricing for %s.", label)
}

func defaultCoverageNotes(label string) string {
	return fmt.Sprintf("Based on %s category data with typical volume ranges.", label)
}

// defaultMarginRange narrows the category band by five points on each side.
func defaultMarginRange(m catalog.MarginBenchmarks) [2]float64 {
	return [2]float64{float64(m.LowPercent() + 5), float64(m.HighPercent() - 5)}
}

func categoryMarginRange(m catalog.MarginBenchmarks) [2]float64 {
	return [2]float64{float64(m.LowPercent()), float64(m.HighPercent())}
}

// defaultSuppliers builds three illustrative supplier cards. Price bands are
// derived from the unit FOB cost so they move with the category.
func defaultSuppliers(p *catalog.Profile, unitFOB float64) []Supplier {
	moq := p.MOQUnits
	if moq <= 0 {
		moq = defaultMOQUnits
	}
	lt := p.LeadTimeDays
	if lt <= 0 {
		lt = defaultLeadTimeDays
	}
	band := func(lo, hi float64) string {
		return fmt.Sprintf("$%.2f–$%.2f", unitFOB*lo, unitFOB*hi)
	}

	return []Supplier{
		{
			SupplierID:          "sup_001",
			DisplayName:         fmt.Sprintf("Guangdong %s Manufacturing Co. (Example)", p.Label),
			Location:            Location{City: "Guangzhou", Province: "Guangdong", Country: "China"},
			SupplierType:        "Manufacturer",
			Tier:                "Tier-1",
			Verified:            true,
			ExperienceYears:     15,
			Certifications:      []string{"ISO 9001", "BSCI"},
			MOQUnits:            moq,
			PriceBandFOBUSD:     band(0.9, 1.3),
			LeadTimeDays:        fmt.Sprintf("%d–%d", lt, lt+10),
			ResponseTime:        "< 48h",
			RatingScore:         4.5,
			QualityTier:         "High",
			SpecializationNotes: fmt.Sprintf("Specialized in %s for international markets.", p.Label),
			RiskSummary:         "Established manufacturer with good track record.",
			RiskTags:            []string{},
			TradeAssurance:      true,
			Example:             true,
		},
		{
			SupplierID:          "sup_002",
			DisplayName:         fmt.Sprintf("Zhejiang %s Trading Co. (Example)", p.Label),
			Location:            Location{City: "Ningbo", Province: "Zhejiang", Country: "China"},
			SupplierType:        "Trading Company",
			Tier:                "Tier-2",
			Verified:            true,
			ExperienceYears:     8,
			Certifications:      []string{"ISO 9001"},
			MOQUnits:            int(float64(moq) * 0.5),
			PriceBandFOBUSD:     band(1.1, 1.6),
			LeadTimeDays:        fmt.Sprintf("%d–%d", lt+5, lt+15),
			ResponseTime:        "< 24h",
			RatingScore:         4.2,
			QualityTier:         "Medium",
			SpecializationNotes: "Flexible MOQ and quick response.",
			RiskSummary:         "Lower MOQ but verify factory source.",
			RiskTags:            []string{"verify_factory"},
			TradeAssurance:      true,
			Example:             true,
		},
		{
			SupplierID:          "sup_003",
			DisplayName:         fmt.Sprintf("Fujian %s Industrial Ltd. (Example)", p.Label),
			Location:            Location{City: "Xiamen", Province: "Fujian", Country: "China"},
			SupplierType:        "Manufacturer",
			Tier:                "Tier-2",
			Verified:            true,
			ExperienceYears:     12,
			Certifications:      []string{"ISO 9001", "ISO 14001"},
			MOQUnits:            int(float64(moq) * 0.8),
			PriceBandFOBUSD:     band(0.95, 1.4),
			LeadTimeDays:        fmt.Sprintf("%d–%d", lt, lt+12),
			ResponseTime:        "< 48h",
			RatingScore:         4.3,
			QualityTier:         "Medium",
			SpecializationNotes: "Good balance of price and quality.",
			RiskSummary:         "Reliable for medium-volume orders.",
			RiskTags:            []string{},
			TradeAssurance:      false,
			Example:             true,
		},
	}
}

func defaultRiskOverview(label string) RiskOverview {
	return RiskOverview{
		OverallLevel: confidence.LevelMedium,
		Axes: map[string]confidence.Level{
			AxisQuality:      confidence.LevelMedium,
			AxisCompliance:   confidence.LevelMedium,
			AxisLeadTime:     confidence.LevelMedium,
			AxisFinancial:    confidence.LevelLow,
			AxisGeopolitical: confidence.LevelMedium,
		},
		Comments: []string{
			fmt.Sprintf("Standard risk profile for %s category.", label),
			"China-based suppliers with established export experience.",
		},
	}
}

var defaultNextActions = []NextAction{
	{ID: "refine_assumptions", Label: "Refine Analysis", Action: "rerun_analysis"},
	{ID: "export_report", Label: "Export Report", Action: "export_pdf"},
	{ID: "run_risk_check", Label: "Deep Risk Check", Action: "open_risk_module"},
}
