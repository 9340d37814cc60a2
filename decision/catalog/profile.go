// Package catalog provides the category registry: cost profiles keyed by
// category id, the shipping route table, and lookup with a mandatory fallback.
//
// A Registry is built once at startup and is read-only afterwards, so it can be
// shared by reference across goroutines without locking.
package catalog

// Kind groups categories that share compliance cost patterns.
type Kind string

const (
	KindGeneral     Kind = "general"
	KindFood        Kind = "food"
	KindToy         Kind = "toy"
	KindElectronics Kind = "electronics"
)

// Route is a priced shipping lane.
type Route struct {
	ID              string `yaml:"id" json:"id"`
	Label           string `yaml:"label" json:"label"`
	DestinationPort string `yaml:"destination_port" json:"destination_port"`
}

// FreightRate holds per-CBM charges for one route.
type FreightRate struct {
	SeaFreightPerCBM  float64 `yaml:"sea_freight_per_cbm" json:"sea_freight_per_cbm_usd"`
	OriginPerCBM      float64 `yaml:"origin_per_cbm" json:"origin_charges_per_cbm_usd"`
	DestinationPerCBM float64 `yaml:"destination_per_cbm" json:"destination_charges_per_cbm_usd"`
}

// PerCBM is the all-in freight charge per cubic meter.
func (f FreightRate) PerCBM() float64 {
	return f.SeaFreightPerCBM + f.OriginPerCBM + f.DestinationPerCBM
}

// Packing holds per-carton packaging costs.
type Packing struct {
	OuterCartonUSD float64 `yaml:"outer_carton_usd" json:"outer_carton_usd"`
	InnerCartonUSD float64 `yaml:"inner_carton_usd" json:"inner_carton_usd"`
}

// Handling holds flat per-shipment fees.
type Handling struct {
	BrokerPerShipmentUSD   float64 `yaml:"broker_per_shipment_usd" json:"broker_per_shipment_usd"`
	PortMiscPerShipmentUSD float64 `yaml:"port_misc_per_shipment_usd" json:"port_misc_per_shipment_usd"`
}

// MarginBenchmarks are gross margin fractions (0.25 = 25%).
type MarginBenchmarks struct {
	Low     float64 `yaml:"low" json:"low"`
	Typical float64 `yaml:"typical" json:"typical"`
	High    float64 `yaml:"high" json:"high"`
}

// LowPercent and HighPercent are the integer percents shown in reports.
func (m MarginBenchmarks) LowPercent() int  { return int(m.Low*100 + 1e-9) }
func (m MarginBenchmarks) HighPercent() int { return int(m.High*100 + 1e-9) }

// Profile is the cost reference record for one category.
type Profile struct {
	ID              string                 `yaml:"id" json:"id"`
	Label           string                 `yaml:"label" json:"label"`
	Kind            Kind                   `yaml:"kind" json:"kind"`
	HSCodeHint      string                 `yaml:"hs_code_hint" json:"hs_code_hint"`
	UnitWeightKg    float64                `yaml:"unit_weight_kg" json:"unit_weight_kg"`
	UnitsPerCarton  float64                `yaml:"units_per_carton" json:"units_per_carton"`
	CartonsPerCBM   float64                `yaml:"cartons_per_cbm" json:"cartons_per_cbm"`
	FOBCostPerKg    float64                `yaml:"fob_cost_per_kg" json:"fob_cost_per_kg"`
	Packing         Packing                `yaml:"packing" json:"packing"`
	QCCostPerOrder  float64                `yaml:"qc_cost_per_order_usd" json:"qc_cost_per_order_usd"`
	CertCostPerSKU  float64                `yaml:"cert_cost_per_sku_usd" json:"cert_cost_per_sku_usd"`
	DutyRatePercent float64                `yaml:"duty_rate_percent" json:"duty_rate_percent"`
	ExtraTaxPercent float64                `yaml:"extra_tax_percent" json:"extra_tax_percent"`
	MOQUnits        int                    `yaml:"moq_units" json:"moq_units"`
	LeadTimeDays    int                    `yaml:"lead_time_days" json:"lead_time_days"`
	Freight         map[string]FreightRate `yaml:"freight" json:"freight"`
	Handling        Handling               `yaml:"handling" json:"handling"`
	Margins         MarginBenchmarks       `yaml:"margin_benchmarks" json:"margin_benchmarks"`
	Keywords        []string               `yaml:"keywords" json:"keywords"`
}

// FreightFor resolves the freight table for route. An unpriced route falls
// back to defaultRoute and reports fallback=true. If neither is priced the
// zero rate is returned.
func (p *Profile) FreightFor(route, defaultRoute string) (rate FreightRate, resolved string, fallback bool) {
	if r, ok := p.Freight[route]; ok {
		return r, route, false
	}
	r := p.Freight[defaultRoute]
	return r, defaultRoute, true
}
