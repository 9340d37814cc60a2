package estimation

// Component keys in reporting order.
const (
	ComponentProduct    = "product"
	ComponentPacking    = "packing"
	ComponentShipping   = "shipping"
	ComponentHandling   = "handling"
	ComponentDutyAndTax = "duty_and_tax"
)

var componentKeys = [...]string{
	ComponentProduct,
	ComponentPacking,
	ComponentShipping,
	ComponentHandling,
	ComponentDutyAndTax,
}

var componentLabels = map[string]string{
	ComponentProduct:    "Manufacturing",
	ComponentPacking:    "Packing",
	ComponentShipping:   "Freight & Logistics",
	ComponentHandling:   "Handling & QC",
	ComponentDutyAndTax: "Customs & Duty",
}

// Detailed line item keys in reporting order.
const (
	ItemProductFOB         = "product_fob"
	ItemPackingOuter       = "packing_outer"
	ItemPackingInner       = "packing_inner"
	ItemSeaFreight         = "sea_freight"
	ItemOriginCharges      = "origin_charges"
	ItemDestinationCharges = "destination_charges"
	ItemCustomsBroker      = "customs_broker"
	ItemPortMisc           = "port_misc"
	ItemQCInspection       = "qc_inspection"
	ItemCertification      = "certification"
	ItemImportDuty         = "import_duty"
	ItemExtraTaxes         = "extra_taxes"
)

var lineItemText = map[string][2]string{
	ItemProductFOB:         {"Product (FOB)", "Manufacturing cost at factory"},
	ItemPackingOuter:       {"Outer Carton", "Export packing"},
	ItemPackingInner:       {"Inner Packing", "Unit packaging"},
	ItemSeaFreight:         {"Sea Freight", "Ocean shipping"},
	ItemOriginCharges:      {"Origin Charges", "Origin port handling"},
	ItemDestinationCharges: {"Destination Charges", "Destination port handling"},
	ItemCustomsBroker:      {"Customs Broker", "Documentation and clearance"},
	ItemPortMisc:           {"Port Miscellaneous", "Terminal handling"},
	ItemQCInspection:       {"QC Inspection", "Pre-shipment inspection"},
	ItemCertification:      {"Certification", "Product testing and compliance"},
	ItemImportDuty:         {"Import Duty", "Customs duty"},
	ItemExtraTaxes:         {"Additional Taxes", "Other applicable taxes"},
}

// Component is one of the five named cost buckets.
type Component struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	AmountUSD    float64 `json:"amount_usd"`
	SharePercent float64 `json:"share_percent"`
	Formula      string  `json:"formula,omitempty"`
}

// LineItem is one of the twelve detailed sub-components.
type LineItem struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	AmountUSD   float64 `json:"amount_usd"`
}

func newLineItem(key string, amount float64) LineItem {
	text := lineItemText[key]
	return LineItem{Key: key, Label: text[0], Description: text[1], AmountUSD: amount}
}

// MarginEstimate is present only when a retail price was supplied.
type MarginEstimate struct {
	RetailPricePerUnit float64 `json:"retail_price_per_unit_usd"`
	GrossMarginPerUnit float64 `json:"gross_margin_per_unit_usd"`
	GrossMarginPercent float64 `json:"gross_margin_percent"`
	Assessment         string  `json:"assessment"`
}

// Assumptions echo the inputs the breakdown was priced with.
type Assumptions struct {
	CategoryID      string  `json:"category_id"`
	CategoryLabel   string  `json:"category"`
	RequestedRoute  string  `json:"requested_route"`
	Route           string  `json:"route"`
	RouteFallback   bool    `json:"route_fallback"`
	Incoterm        string  `json:"incoterm"`
	UnitWeightKg    float64 `json:"unit_weight_kg"`
	DutyRatePercent float64 `json:"duty_rate_percent"`
	ExtraTaxPercent float64 `json:"extra_tax_percent"`
	HSCodeHint      string  `json:"hs_code_hint"`
}

// Benchmarks are category reference points carried for reporting.
type Benchmarks struct {
	MOQUnits      int     `json:"moq_units"`
	LeadTimeDays  int     `json:"typical_lead_time_days"`
	MarginLow     float64 `json:"margin_low"`
	MarginTypical float64 `json:"margin_typical"`
	MarginHigh    float64 `json:"margin_high"`
}

// CostBreakdown is the engine output. Amounts carry full float precision;
// rounding happens only when the result is rendered.
type CostBreakdown struct {
	Quantity          int             `json:"units"`
	TotalWeightKg     float64         `json:"total_weight_kg"`
	TotalCartons      float64         `json:"total_cartons"`
	TotalCBM          float64         `json:"total_cbm"`
	Components        []Component     `json:"components"`
	Detailed          []LineItem      `json:"detailed_breakdown"`
	DutiableBase      float64         `json:"dutiable_base_usd"`
	TotalLandedCost   float64         `json:"total_landed_cost_usd"`
	PerUnitLandedCost float64         `json:"landed_cost_per_unit_usd"`
	Margin            *MarginEstimate `json:"margin_estimate,omitempty"`
	Assumptions       Assumptions     `json:"assumptions"`
	Benchmarks        Benchmarks      `json:"benchmarks"`
}

// Component returns the named component, or the zero value for unknown keys.
func (b CostBreakdown) Component(key string) Component {
	for _, c := range b.Components {
		if c.Key == key {
			return c
		}
	}
	return Component{Key: key}
}

// Share returns a component's percentage of the total.
func (b CostBreakdown) Share(key string) float64 {
	return b.Component(key).SharePercent
}

// Amount returns a component's absolute amount.
func (b CostBreakdown) Amount(key string) float64 {
	return b.Component(key).AmountUSD
}

// Item returns a detailed line item amount.
func (b CostBreakdown) Item(key string) float64 {
	for _, li := range b.Detailed {
		if li.Key == key {
			return li.AmountUSD
		}
	}
	return 0
}

// ComponentKeys lists the five component keys in reporting order.
func ComponentKeys() []string {
	out := make([]string, len(componentKeys))
	copy(out, componentKeys[:])
	return out
}
