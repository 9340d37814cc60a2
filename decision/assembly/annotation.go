package assembly

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"landed-cost/pkg/confidence"
)

// AnnotationStatus labels which variant an Annotation is.
type AnnotationStatus string

const (
	StatusValid     AnnotationStatus = "valid"
	StatusAbsent    AnnotationStatus = "absent"
	StatusMalformed AnnotationStatus = "malformed"
)

// Annotation is externally supplied qualitative data. It is exactly one of
// ValidAnnotation, AbsentAnnotation or MalformedAnnotation.
type Annotation interface {
	Status() AnnotationStatus
	isAnnotation()
}

// ValidAnnotation carries fields that passed validation. Nil fields were not
// supplied and are filled from category defaults.
type ValidAnnotation struct {
	Fields AnnotationFields
}

// AbsentAnnotation means no annotation was supplied.
type AbsentAnnotation struct{}

// MalformedAnnotation means the supplied data failed validation. It is treated
// like AbsentAnnotation, with the reason kept for diagnostics.
type MalformedAnnotation struct {
	Reason string
}

func (ValidAnnotation) Status() AnnotationStatus     { return StatusValid }
func (AbsentAnnotation) Status() AnnotationStatus    { return StatusAbsent }
func (MalformedAnnotation) Status() AnnotationStatus { return StatusMalformed }

func (ValidAnnotation) isAnnotation()     {}
func (AbsentAnnotation) isAnnotation()    {}
func (MalformedAnnotation) isAnnotation() {}

// AnnotationFields are the recognized qualitative fields after validation.
// Scores are already clamped to [0, 1], margin ranges to [0, 90] and supplier
// ratings to [0, 5].
type AnnotationFields struct {
	ProductName       *string
	ReliabilityScore  *float64
	ReliabilityLevel  *confidence.Level
	DataCoverageNotes *string

	DemandLevel  *confidence.Level
	DemandScore  *float64
	DemandChange *float64
	DemandNotes  *string

	MarginRangePercent         *[2]float64
	CategoryMarginRangePercent *[2]float64
	MarginNotes                *string

	CompetitionLevel *confidence.Level
	CompetitionScore *float64
	ActiveListings   *int
	CompetitionNotes *string

	HiddenCostAlerts []string
	Suppliers        []Supplier
	RiskOverview     *RiskPatch
	ConsultingReason *string
}

// RiskPatch overrides parts of the default risk overview. Axes not listed
// keep their default level.
type RiskPatch struct {
	OverallLevel *confidence.Level
	Axes         map[string]confidence.Level
	Comments     []string
}

// Limits applied while parsing.
const (
	maxTextLen      = 600
	maxAlerts       = 5
	maxSuppliers    = 10
	maxComments     = 5
	maxMarginPct    = 90.0
	maxRating       = 5.0
	maxDemandChange = 1000.0
)

// annotationWire mirrors the accepted JSON shape. Every field is optional;
// a present field must have the right JSON type.
type annotationWire struct {
	ProductName       *string  `json:"product_name"`
	ReliabilityScore  *float64 `json:"reliability_score"`
	ReliabilityLevel  *string  `json:"reliability_level"`
	DataCoverageNotes *string  `json:"data_coverage_notes"`

	DemandLevel  *string  `json:"demand_level"`
	DemandScore  *float64 `json:"demand_score"`
	DemandChange *float64 `json:"demand_change"`
	DemandNotes  *string  `json:"demand_notes"`

	MarginRangePercent         []float64 `json:"margin_range_percent"`
	CategoryMarginRangePercent []float64 `json:"category_typical_margin_range_percent"`
	MarginNotes                *string   `json:"margin_notes"`

	CompetitionLevel *string  `json:"competition_level"`
	CompetitionScore *float64 `json:"competition_score"`
	ActiveListings   *int     `json:"active_listings"`
	CompetitionNotes *string  `json:"competition_notes"`

	HiddenCostAlerts []string          `json:"hidden_cost_alerts"`
	Suppliers        []*Supplier       `json:"suppliers"`
	RiskOverview     *riskOverviewWire `json:"risk_overview"`
	ConsultingReason *string           `json:"consulting_reason"`
}

type riskOverviewWire struct {
	OverallLevel *string           `json:"overall_level"`
	Axes         map[string]string `json:"axes"`
	Comments     []string          `json:"comments"`
}

// ParseAnnotation validates raw annotation JSON. Empty input or a JSON null is
// Absent. Anything that is not an object, has a wrongly typed recognized
// field, or uses an unknown level name is Malformed. Unrecognized fields are
// ignored. It never panics and never returns an error.
func ParseAnnotation(raw []byte) Annotation {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return AbsentAnnotation{}
	}
	if trimmed[0] != '{' {
		return MalformedAnnotation{Reason: "annotation must be a JSON object"}
	}

	var w annotationWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return MalformedAnnotation{Reason: describeDecodeError(err)}
	}

	fields, err := w.validate()
	if err != nil {
		return MalformedAnnotation{Reason: err.Error()}
	}
	return ValidAnnotation{Fields: fields}
}

// AnnotationFromMap validates an already-decoded annotation object.
func AnnotationFromMap(m map[string]any) Annotation {
	if m == nil {
		return AbsentAnnotation{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return MalformedAnnotation{Reason: err.Error()}
	}
	return ParseAnnotation(raw)
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return "invalid JSON: " + err.Error()
}

func (w *annotationWire) validate() (AnnotationFields, error) {
	var f AnnotationFields
	var err error

	f.ProductName = text(w.ProductName)
	f.DataCoverageNotes = text(w.DataCoverageNotes)
	f.DemandNotes = text(w.DemandNotes)
	f.MarginNotes = text(w.MarginNotes)
	f.CompetitionNotes = text(w.CompetitionNotes)
	f.ConsultingReason = text(w.ConsultingReason)

	f.ReliabilityScore = score(w.ReliabilityScore)
	f.DemandScore = score(w.DemandScore)
	f.CompetitionScore = score(w.CompetitionScore)

	if w.DemandChange != nil {
		v := confidence.ClampRange(*w.DemandChange, -maxDemandChange, maxDemandChange)
		f.DemandChange = &v
	}
	if w.ActiveListings != nil {
		v := *w.ActiveListings
		if v < 0 {
			v = 0
		}
		f.ActiveListings = &v
	}

	if f.ReliabilityLevel, err = level("reliability_level", w.ReliabilityLevel); err != nil {
		return f, err
	}
	if f.DemandLevel, err = level("demand_level", w.DemandLevel); err != nil {
		return f, err
	}
	if f.CompetitionLevel, err = level("competition_level", w.CompetitionLevel); err != nil {
		return f, err
	}

	if f.MarginRangePercent, err = marginRange("margin_range_percent", w.MarginRangePercent); err != nil {
		return f, err
	}
	if f.CategoryMarginRangePercent, err = marginRange("category_typical_margin_range_percent", w.CategoryMarginRangePercent); err != nil {
		return f, err
	}

	if w.HiddenCostAlerts != nil {
		f.HiddenCostAlerts = textList(w.HiddenCostAlerts, maxAlerts)
	}

	if w.Suppliers != nil {
		kept := make([]Supplier, 0, min(len(w.Suppliers), maxSuppliers))
		for _, s := range w.Suppliers {
			if s == nil || s.blank() {
				continue
			}
			kept = append(kept, normalizeSupplier(*s, len(kept)))
			if len(kept) == maxSuppliers {
				break
			}
		}
		// A list of only blank entries leaves the category defaults in place.
		if len(kept) > 0 || len(w.Suppliers) == 0 {
			f.Suppliers = kept
		}
	}

	if w.RiskOverview != nil {
		ro, err := w.RiskOverview.validate()
		if err != nil {
			return f, err
		}
		f.RiskOverview = ro
	}

	return f, nil
}

func (r *riskOverviewWire) validate() (*RiskPatch, error) {
	out := &RiskPatch{}
	if r.OverallLevel != nil {
		lvl, err := level("risk_overview.overall_level", r.OverallLevel)
		if err != nil {
			return nil, err
		}
		out.OverallLevel = lvl
	}
	if r.Axes != nil {
		out.Axes = make(map[string]confidence.Level, len(r.Axes))
		for axis, v := range r.Axes {
			if !isRiskAxis(axis) {
				continue
			}
			v := v
			lvl, err := level("risk_overview.axes."+axis, &v)
			if err != nil {
				return nil, err
			}
			out.Axes[axis] = *lvl
		}
	}
	if r.Comments != nil {
		out.Comments = textList(r.Comments, maxComments)
	}
	return out, nil
}

func level(field string, v *string) (*confidence.Level, error) {
	if v == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil, fmt.Errorf("field %q: empty level", field)
	}
	lvl := confidence.Level(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))
	if !lvl.Valid() {
		return nil, fmt.Errorf("field %q: unknown level %q", field, *v)
	}
	return &lvl, nil
}

func score(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := confidence.Clamp(*v)
	return &c
}

func marginRange(field string, v []float64) (*[2]float64, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != 2 {
		return nil, fmt.Errorf("field %q: expected [low, high]", field)
	}
	lo := confidence.ClampRange(v[0], 0, maxMarginPct)
	hi := confidence.ClampRange(v[1], 0, maxMarginPct)
	if lo > hi {
		lo, hi = hi, lo
	}
	return &[2]float64{lo, hi}, nil
}

func text(v *string) *string {
	if v == nil {
		return nil
	}
	s := truncate(strings.TrimSpace(*v), maxTextLen)
	if s == "" {
		return nil
	}
	return &s
}

func textList(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = truncate(strings.TrimSpace(s), maxTextLen)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
