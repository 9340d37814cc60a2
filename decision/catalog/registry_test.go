package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lcerrors "landed-cost/pkg/errors"
	"landed-cost/pkg/platform"
)

const minimalRegistry = `
version: test
fallback_category: generic
default_route: lane_a
routes:
  - id: lane_a
    label: "Origin → Lane A"
categories:
  - id: generic
    label: Generic
    unit_weight_kg: 0.1
    units_per_carton: 50
    cartons_per_cbm: 10
    fob_cost_per_kg: 5
    freight:
      lane_a: {sea_freight_per_cbm: 80, origin_per_cbm: 20, destination_per_cbm: 40}
    margin_benchmarks: {low: 0.1, typical: 0.2, high: 0.3}
`

func TestEmbeddedRegistry(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)

	assert.Equal(t, 34, reg.Len())
	assert.Equal(t, "generic_consumer_product", reg.FallbackID())
	assert.Equal(t, DefaultRouteID, reg.DefaultRoute())
	assert.Equal(t, "USD", reg.Currency())

	profiles := reg.Profiles()
	assert.Equal(t, "candy_marshmallow_stick", profiles[0].ID)
	assert.Equal(t, "generic_consumer_product", profiles[len(profiles)-1].ID)
	assert.Empty(t, reg.Fallback().Keywords)

	for _, p := range profiles {
		_, ok := p.Freight[DefaultRouteID]
		assert.True(t, ok, "category %s must price the default route", p.ID)
	}
}

func TestEmbeddedNoveltyToyProfile(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)

	p, ok := reg.Get("novelty_toy_small_plastic")
	require.True(t, ok)
	assert.Equal(t, KindToy, p.Kind)
	assert.Equal(t, 0.03, p.UnitWeightKg)
	assert.Equal(t, 200.0, p.UnitsPerCarton)
	assert.Equal(t, 30.0, p.CartonsPerCBM)
	assert.Equal(t, 4.5, p.FOBCostPerKg)
	assert.Equal(t, 5.0, p.DutyRatePercent)
	assert.Equal(t, FreightRate{SeaFreightPerCBM: 85, OriginPerCBM: 25, DestinationPerCBM: 45}, p.Freight[DefaultRouteID])
	assert.Equal(t, 25, p.Margins.LowPercent())
	assert.Equal(t, 60, p.Margins.HighPercent())
	assert.Contains(t, p.Keywords, "keychain")
}

func TestLookupFallsBack(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)

	assert.Equal(t, "generic_consumer_product", reg.Lookup("does_not_exist").ID)
	assert.Equal(t, "apparel_hat_cap", reg.Lookup("apparel_hat_cap").ID)
	_, ok := reg.Get("does_not_exist")
	assert.False(t, ok)
	assert.True(t, reg.IsFallback("generic_consumer_product"))
}

func TestProfilesReturnsCopy(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)

	list := reg.Profiles()
	first := list[0].ID
	list[0] = nil

	again := reg.Profiles()
	require.Len(t, again, reg.Len())
	assert.Equal(t, first, again[0].ID)
	assert.Same(t, reg.Lookup(first), again[0])
}

func TestRouteLabels(t *testing.T) {
	reg, err := Embedded()
	require.NoError(t, err)

	assert.Equal(t, "China → US West Coast", reg.RouteLabel("cn_to_us_west_coast"))
	assert.Equal(t, "China → EU", reg.RouteLabel("cn_to_eu"))
	assert.Equal(t, "Vn To Jp", reg.RouteLabel("vn_to_jp"))
	assert.Len(t, reg.Routes(), 3)

	rt, ok := reg.Route("cn_to_us_east_coast")
	require.True(t, ok)
	assert.Equal(t, "New York", rt.DestinationPort)
}

func TestFreightFor(t *testing.T) {
	p := &Profile{Freight: map[string]FreightRate{"a": {SeaFreightPerCBM: 1, OriginPerCBM: 2, DestinationPerCBM: 3}}}

	rate, resolved, fallback := p.FreightFor("a", "a")
	assert.Equal(t, 6.0, rate.PerCBM())
	assert.Equal(t, "a", resolved)
	assert.False(t, fallback)

	rate, resolved, fallback = p.FreightFor("mars", "a")
	assert.Equal(t, 6.0, rate.PerCBM())
	assert.Equal(t, "a", resolved)
	assert.True(t, fallback)
}

func TestParseMinimal(t *testing.T) {
	reg, err := Parse([]byte(minimalRegistry))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, KindGeneral, reg.Fallback().Kind)
	assert.Equal(t, "lane_a", reg.DefaultRoute())
}

func TestParseRejectsInvalidRegistries(t *testing.T) {
	cases := map[string]string{
		"missing fallback": `
fallback_category: nope
categories:
  - id: generic
    units_per_carton: 1
    cartons_per_cbm: 1
    freight: {cn_to_us_west_coast: {sea_freight_per_cbm: 1}}
`,
		"no categories": `fallback_category: generic`,
		"duplicate id": `
fallback_category: a
categories:
  - {id: a, units_per_carton: 1, cartons_per_cbm: 1, freight: {cn_to_us_west_coast: {}}}
  - {id: a, units_per_carton: 1, cartons_per_cbm: 1, freight: {cn_to_us_west_coast: {}}}
`,
		"zero carton density": `
fallback_category: a
categories:
  - {id: a, units_per_carton: 0, cartons_per_cbm: 1, freight: {cn_to_us_west_coast: {}}}
`,
		"default route unpriced": `
fallback_category: a
categories:
  - {id: a, units_per_carton: 1, cartons_per_cbm: 1, freight: {cn_to_eu: {}}}
`,
		"unordered benchmarks": `
fallback_category: a
categories:
  - id: a
    units_per_carton: 1
    cartons_per_cbm: 1
    freight: {cn_to_us_west_coast: {}}
    margin_benchmarks: {low: 0.5, typical: 0.2, high: 0.3}
`,
		"unknown field": `
fallback_category: a
categories:
  - {id: a, units_per_carton: 1, cartons_per_cbm: 1, sea_freight: 3, freight: {cn_to_us_west_coast: {}}}
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			e, ok := lcerrors.AsError(err)
			require.True(t, ok)
			assert.Equal(t, lcerrors.ErrCodeRegistryInvalid, e.Code)
			assert.Equal(t, lcerrors.SeverityFatal, e.Severity)
		})
	}
}

func TestLoaderOpenEmbedded(t *testing.T) {
	reg, err := NewLoader().Open(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 34, reg.Len())
}

func TestLoaderOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalRegistry), 0o600))

	reg, err := NewLoader().Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "test", reg.Version())

	_, err = NewLoader().Open(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	e, ok := lcerrors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, lcerrors.ErrCodeRegistryUnavailable, e.Code)
}

func TestLoaderOpenHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(minimalRegistry))
	}))
	defer srv.Close()

	reg, err := NewLoader().WithHTTPClient(platform.NewHTTPClient(0, time.Second)).Open(context.Background(), srv.URL+"/registry.yaml")
	require.NoError(t, err)
	assert.Equal(t, "generic", reg.FallbackID())
}

type stubS3 struct {
	body   string
	err    error
	bucket string
	key    string
}

func (s *stubS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.bucket = aws.ToString(in.Bucket)
	s.key = aws.ToString(in.Key)
	if s.err != nil {
		return nil, s.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(s.body)))}, nil
}

func TestLoaderOpenS3(t *testing.T) {
	stub := &stubS3{body: minimalRegistry}
	reg, err := NewLoader().WithS3(stub).Open(context.Background(), "s3://tables/landed/v1.yaml")
	require.NoError(t, err)
	assert.Equal(t, "tables", stub.bucket)
	assert.Equal(t, "landed/v1.yaml", stub.key)
	assert.Equal(t, 1, reg.Len())

	_, err = NewLoader().WithS3(&stubS3{err: errors.New("access denied")}).Open(context.Background(), "s3://tables/x.yaml")
	assert.ErrorContains(t, err, "access denied")

	_, err = NewLoader().WithS3(stub).Open(context.Background(), "s3://bucket-only")
	assert.Error(t, err)
}
