package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landed-cost/decision/catalog"
)

func embedded(t *testing.T) *catalog.Registry {
	t.Helper()
	reg, err := catalog.Embedded()
	require.NoError(t, err)
	return reg
}

func synthetic(t *testing.T, profiles ...*catalog.Profile) *catalog.Registry {
	t.Helper()
	for _, p := range profiles {
		p.UnitsPerCarton = 1
		p.CartonsPerCBM = 1
		p.Freight = map[string]catalog.FreightRate{catalog.DefaultRouteID: {}}
	}
	reg, err := catalog.New("t", "USD", "generic", "", nil, profiles)
	require.NoError(t, err)
	return reg
}

func TestClassifyKnownQueries(t *testing.T) {
	c := New(embedded(t))

	cases := map[string]string{
		"keychain":                          "novelty_toy_small_plastic",
		"Custom KEYCHAIN with logo":         "novelty_toy_small_plastic",
		"USB charger cable for phones":      "electronics_small_accessory",
		"cotton t-shirt with printed logo":  "apparel_tshirt_basic",
		"something entirely unidentifiable": "generic_consumer_product",
		"":                                  "generic_consumer_product",
	}
	for query, want := range cases {
		assert.Equal(t, want, c.Classify(query), "query %q", query)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New(embedded(t))
	first := c.Classify("silicone phone case and screen protector bundle")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Classify("silicone phone case and screen protector bundle"))
	}
}

func TestTieGoesToFirstRegistered(t *testing.T) {
	reg := synthetic(t,
		&catalog.Profile{ID: "alpha", Keywords: []string{"widget"}},
		&catalog.Profile{ID: "beta", Keywords: []string{"widget"}},
		&catalog.Profile{ID: "generic"},
	)
	m := New(reg).Explain("a widget")
	assert.Equal(t, "alpha", m.CategoryID)
	assert.Equal(t, 1, m.Score)
	assert.False(t, m.Fallback)

	reg = synthetic(t,
		&catalog.Profile{ID: "beta", Keywords: []string{"widget"}},
		&catalog.Profile{ID: "alpha", Keywords: []string{"widget"}},
		&catalog.Profile{ID: "generic"},
	)
	assert.Equal(t, "beta", New(reg).Classify("a widget"))
}

func TestHigherScoreWins(t *testing.T) {
	reg := synthetic(t,
		&catalog.Profile{ID: "alpha", Keywords: []string{"widget"}},
		&catalog.Profile{ID: "beta", Keywords: []string{"widget", "gear", "  "}},
		&catalog.Profile{ID: "generic"},
	)
	m := New(reg).Explain("WIDGET gear")
	assert.Equal(t, "beta", m.CategoryID)
	assert.Equal(t, 2, m.Score)
	assert.ElementsMatch(t, []string{"widget", "gear"}, m.Keywords)
}

func TestNoMatchReturnsFallback(t *testing.T) {
	reg := synthetic(t,
		&catalog.Profile{ID: "alpha", Keywords: []string{"widget"}},
		&catalog.Profile{ID: "generic"},
	)
	m := New(reg).Explain("sprocket")
	assert.Equal(t, "generic", m.CategoryID)
	assert.Zero(t, m.Score)
	assert.True(t, m.Fallback)
}
