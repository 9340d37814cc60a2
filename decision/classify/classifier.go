// Package classify maps free-text product descriptions to registry categories
// by keyword scoring.
package classify

import (
	"strings"

	"landed-cost/decision/catalog"
)

type entry struct {
	id       string
	keywords []string
}

// Classifier scores a query against each category's keyword set.
//
// The score of a category is the number of its keywords that occur as
// case-insensitive substrings of the query. The category with the strictly
// highest non-zero score wins. Ties go to the category registered first, so
// registry order is part of the contract. A query that matches nothing
// returns the fallback id.
type Classifier struct {
	entries    []entry
	fallbackID string
}

// Match explains a classification.
type Match struct {
	CategoryID string   `json:"category_id"`
	Score      int      `json:"score"`
	Keywords   []string `json:"matched_keywords,omitempty"`
	Fallback   bool     `json:"fallback"`
}

// New builds a classifier over reg in registration order.
func New(reg *catalog.Registry) *Classifier {
	profiles := reg.Profiles()
	c := &Classifier{
		entries:    make([]entry, 0, len(profiles)),
		fallbackID: reg.FallbackID(),
	}
	for _, p := range profiles {
		kws := make([]string, 0, len(p.Keywords))
		for _, k := range p.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				kws = append(kws, k)
			}
		}
		c.entries = append(c.entries, entry{id: p.ID, keywords: kws})
	}
	return c
}

// Classify returns the best category id for query. It never fails.
func (c *Classifier) Classify(query string) string {
	return c.Explain(query).CategoryID
}

// Explain returns the winning category with its score and matched keywords.
func (c *Classifier) Explain(query string) Match {
	q := strings.ToLower(query)

	best := Match{CategoryID: c.fallbackID, Fallback: true}
	for _, e := range c.entries {
		var matched []string
		for _, k := range e.keywords {
			if strings.Contains(q, k) {
				matched = append(matched, k)
			}
		}
		if len(matched) > best.Score {
			best = Match{CategoryID: e.id, Score: len(matched), Keywords: matched}
		}
	}
	if best.Score > 0 && best.CategoryID == c.fallbackID {
		best.Fallback = true
	}
	return best
}
