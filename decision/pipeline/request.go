package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"landed-cost/decision/policy"
	lcerrors "landed-cost/pkg/errors"
)

// Request is one estimate as callers submit it. Optional fields left nil or
// empty take their value from platform.Settings.
type Request struct {
	Query        string          `json:"query"`
	CategoryID   string          `json:"category_id,omitempty"`
	Quantity     *int            `json:"quantity,omitempty"`
	Route        string          `json:"route,omitempty"`
	Incoterm     string          `json:"incoterm,omitempty"`
	TargetMarket string          `json:"target_market,omitempty"`
	Channel      string          `json:"channel,omitempty"`
	RetailPrice  *float64        `json:"retail_price,omitempty"`
	UnitWeightKg *float64        `json:"unit_weight_kg,omitempty"`
	Annotation   json.RawMessage `json:"annotations,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	Policies     []policy.Policy `json:"policies,omitempty"`
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)SELECT\s+.*\s+FROM`),
	regexp.MustCompile(`(?i)INSERT\s+INTO`),
	regexp.MustCompile(`(?i)DELETE\s+FROM`),
	regexp.MustCompile(`(?i)DROP\s+TABLE`),
	regexp.MustCompile(`(?i)UNION\s+SELECT`),
}

// NormalizeQuery trims the query and collapses runs of whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// Validate checks the input contract. maxQueryLen is measured in runes.
// The returned error is a *errors.Error naming the offending field.
func (r Request) Validate(maxQueryLen int) error {
	q := NormalizeQuery(r.Query)
	if q == "" {
		return lcerrors.NewValidationError(lcerrors.ErrCodeInvalidQuery, "query", "query is required")
	}
	if maxQueryLen > 0 && utf8.RuneCountInString(q) > maxQueryLen {
		return lcerrors.NewValidationError(lcerrors.ErrCodeQueryTooLong, "query",
			fmt.Sprintf("query exceeds %d characters", maxQueryLen))
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(q) {
			return lcerrors.NewValidationError(lcerrors.ErrCodeUnsafeQuery, "query",
				"query contains disallowed content")
		}
	}

	if r.Quantity != nil && *r.Quantity <= 0 {
		return lcerrors.NewValidationError(lcerrors.ErrCodeInvalidQuantity, "quantity",
			fmt.Sprintf("quantity must be positive, got %d", *r.Quantity))
	}
	if r.RetailPrice != nil && (!finite(*r.RetailPrice) || *r.RetailPrice < 0) {
		return lcerrors.NewValidationError(lcerrors.ErrCodeInvalidPrice, "retail_price",
			"retail price must be a non-negative number")
	}
	if r.UnitWeightKg != nil && (!finite(*r.UnitWeightKg) || *r.UnitWeightKg <= 0) {
		return lcerrors.NewValidationError(lcerrors.ErrCodeInvalidWeight, "unit_weight_kg",
			"unit weight must be a positive number")
	}
	for i, p := range r.Policies {
		if err := p.Validate(); err != nil {
			return lcerrors.NewValidationError(lcerrors.ErrCodeInvalidPolicy,
				fmt.Sprintf("policies[%d]", i), err.Error())
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
