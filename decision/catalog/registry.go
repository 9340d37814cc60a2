package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	lcerrors "landed-cost/pkg/errors"
)

// DefaultRouteID is used when a registry file does not name one.
const DefaultRouteID = "cn_to_us_west_coast"

//go:embed categories.yaml
var embeddedTables []byte

// registryFile is the on-disk layout of a registry resource.
type registryFile struct {
	Version          string     `yaml:"version"`
	Currency         string     `yaml:"currency"`
	FallbackCategory string     `yaml:"fallback_category"`
	DefaultRoute     string     `yaml:"default_route"`
	Routes           []Route    `yaml:"routes"`
	Categories       []*Profile `yaml:"categories"`
}

// Registry maps category ids to profiles. Iteration order is the file order,
// which is also the classifier's tie-break order.
//
// A Registry is read-only once built and safe for concurrent use. The
// profiles it hands out are shared and must not be modified.
type Registry struct {
	version      string
	currency     string
	fallbackID   string
	defaultRoute string
	profiles     []*Profile
	byID         map[string]*Profile
	routes       []Route
	routeByID    map[string]Route
}

// Embedded returns the registry compiled into the binary.
func Embedded() (*Registry, error) {
	return Parse(embeddedTables)
}

// Load reads a YAML registry from r.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, lcerrors.NewRegistryError(lcerrors.ErrCodeRegistryUnavailable, "read registry", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML registry. Unknown keys are rejected so a
// misspelled rate never silently becomes zero.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, lcerrors.NewRegistryError(lcerrors.ErrCodeRegistryInvalid, "decode registry", err)
	}
	return New(f.Version, f.Currency, f.FallbackCategory, f.DefaultRoute, f.Routes, f.Categories)
}

// New builds a registry from already-decoded parts. It is the entry point for
// synthetic registries in tests.
func New(version, currency, fallbackID, defaultRoute string, routes []Route, profiles []*Profile) (*Registry, error) {
	if defaultRoute == "" {
		defaultRoute = DefaultRouteID
	}
	if currency == "" {
		currency = "USD"
	}

	r := &Registry{
		version:      version,
		currency:     currency,
		fallbackID:   fallbackID,
		defaultRoute: defaultRoute,
		profiles:     profiles,
		byID:         make(map[string]*Profile, len(profiles)),
		routes:       routes,
		routeByID:    make(map[string]Route, len(routes)),
	}

	for _, rt := range routes {
		if rt.ID == "" {
			return nil, invalid("route with empty id")
		}
		r.routeByID[rt.ID] = rt
	}

	for i, p := range profiles {
		if p == nil || p.ID == "" {
			return nil, invalid(fmt.Sprintf("category #%d has no id", i))
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, invalid(fmt.Sprintf("duplicate category %q", p.ID))
		}
		if err := validateProfile(p, defaultRoute); err != nil {
			return nil, err
		}
		if p.Kind == "" {
			p.Kind = KindGeneral
		}
		r.byID[p.ID] = p
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) validate() error {
	if len(r.profiles) == 0 {
		return invalid("registry has no categories")
	}
	if r.fallbackID == "" {
		return invalid("fallback_category is required")
	}
	if _, ok := r.byID[r.fallbackID]; !ok {
		return invalid(fmt.Sprintf("fallback category %q is not registered", r.fallbackID))
	}
	if len(r.routeByID) > 0 {
		if _, ok := r.routeByID[r.defaultRoute]; !ok {
			return invalid(fmt.Sprintf("default route %q is not in the route table", r.defaultRoute))
		}
	}
	return nil
}

func validateProfile(p *Profile, defaultRoute string) error {
	switch {
	case p.UnitsPerCarton <= 0:
		return invalid(fmt.Sprintf("category %q: units_per_carton must be positive", p.ID))
	case p.CartonsPerCBM <= 0:
		return invalid(fmt.Sprintf("category %q: cartons_per_cbm must be positive", p.ID))
	case p.UnitWeightKg < 0 || p.FOBCostPerKg < 0 || p.DutyRatePercent < 0 || p.ExtraTaxPercent < 0:
		return invalid(fmt.Sprintf("category %q: negative rate", p.ID))
	case p.Margins.Low > p.Margins.Typical || p.Margins.Typical > p.Margins.High:
		return invalid(fmt.Sprintf("category %q: margin benchmarks must satisfy low <= typical <= high", p.ID))
	}
	if _, ok := p.Freight[defaultRoute]; !ok {
		return invalid(fmt.Sprintf("category %q: no freight for default route %q", p.ID, defaultRoute))
	}
	return nil
}

func invalid(msg string) error {
	return lcerrors.NewRegistryError(lcerrors.ErrCodeRegistryInvalid, msg, nil)
}

// Lookup returns the profile for id, or the fallback profile when id is not
// registered. It never returns nil for a validated registry. The profile is
// shared; callers must not modify it.
func (r *Registry) Lookup(id string) *Profile {
	if p, ok := r.byID[id]; ok {
		return p
	}
	return r.byID[r.fallbackID]
}

// Get returns the shared profile for id without falling back.
func (r *Registry) Get(id string) (*Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Fallback returns the generic profile.
func (r *Registry) Fallback() *Profile {
	return r.byID[r.fallbackID]
}

func (r *Registry) FallbackID() string   { return r.fallbackID }
func (r *Registry) DefaultRoute() string { return r.defaultRoute }
func (r *Registry) Version() string      { return r.version }
func (r *Registry) Currency() string     { return r.currency }
func (r *Registry) Len() int             { return len(r.profiles) }

// IsFallback reports whether id names the generic profile.
func (r *Registry) IsFallback(id string) bool {
	return id == r.fallbackID
}

// Profiles returns profiles in registration order. The slice is a copy;
// the profiles are shared and must not be modified.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Routes returns the route table in file order.
func (r *Registry) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Route looks up a route by id.
func (r *Registry) Route(id string) (Route, bool) {
	rt, ok := r.routeByID[id]
	return rt, ok
}

// RouteLabel returns a display label such as "China → US West Coast".
// Unknown ids are title-cased from the id.
func (r *Registry) RouteLabel(id string) string {
	if rt, ok := r.routeByID[id]; ok && rt.Label != "" {
		return rt.Label
	}
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
