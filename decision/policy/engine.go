// Package policy provides procurement guardrails.
// Policies are evaluated against a cost breakdown and never change its numbers.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"landed-cost/decision/estimation"
	"landed-cost/pkg/platform"
	"landed-cost/pkg/units"
)

// PolicyType defines the type of policy
type PolicyType string

const (
	PolicyTypeMarginFloor      PolicyType = "margin_floor"
	PolicyTypePerUnitCeiling   PolicyType = "per_unit_ceiling"
	PolicyTypeOrderBudget      PolicyType = "order_budget"
	PolicyTypeFallbackCategory PolicyType = "fallback_category"
	PolicyTypeBelowBenchmark   PolicyType = "below_benchmark"
	PolicyTypeRouteFallback    PolicyType = "route_fallback"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Policy defines a guardrail
type Policy struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Type        PolicyType `json:"type" yaml:"type"`
	Severity    Severity   `json:"severity" yaml:"severity"`
	Threshold   float64    `json:"threshold" yaml:"threshold"`
	Enabled     bool       `json:"enabled" yaml:"enabled"`
}

// Violation represents a policy violation
type Violation struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Warning represents a policy warning
type Warning struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
}

// EvaluationRequest contains the input for policy evaluation
type EvaluationRequest struct {
	Breakdown        *estimation.CostBreakdown
	CategoryFallback bool
	CustomPolicies   []Policy
}

// EvaluationResult contains the policy evaluation outcome
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	Warnings    []Warning   `json:"warnings"`
	PoliciesRan int         `json:"policies_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Engine evaluates policies against cost breakdowns
type Engine struct {
	policies   []Policy
	webhook    string
	httpClient *platform.HTTPClient
}

// NewEngine creates a new policy engine
func NewEngine() *Engine {
	return &Engine{
		policies:   defaultPolicies(),
		httpClient: platform.NewHTTPClient(1, 10*time.Second),
	}
}

// WithWebhook configures an external policy service. It receives
// {"input": {...}} and answers {"result": {"violations": [...], "warnings": [...]}}.
func (e *Engine) WithWebhook(endpoint string) *Engine {
	e.webhook = endpoint
	return e
}

// WithHTTPClient replaces the client used for the webhook.
func (e *Engine) WithHTTPClient(c *platform.HTTPClient) *Engine {
	e.httpClient = c
	return e
}

// AddPolicy adds a custom policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// Policies returns a copy of the configured policies.
func (e *Engine) Policies() []Policy {
	out := make([]Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Evaluate runs all policies against the breakdown. The result is always
// usable; a non-nil error only reports that the webhook could not be consulted.
func (e *Engine) Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		Warnings:    make([]Warning, 0),
		EvaluatedAt: time.Now().UTC(),
	}
	if req.Breakdown == nil {
		return result, nil
	}

	allPolicies := make([]Policy, 0, len(e.policies)+len(req.CustomPolicies))
	allPolicies = append(allPolicies, e.policies...)
	allPolicies = append(allPolicies, req.CustomPolicies...)

	for _, policy := range allPolicies {
		if !policy.Enabled {
			continue
		}

		result.PoliciesRan++
		message, triggered := e.evaluatePolicy(policy, req)
		if !triggered {
			continue
		}

		if policy.Severity == SeverityError {
			result.Violations = append(result.Violations, Violation{
				PolicyID:   policy.ID,
				PolicyName: policy.Name,
				Message:    message,
				Severity:   string(policy.Severity),
			})
			result.Decision = DecisionDeny
			continue
		}

		result.Warnings = append(result.Warnings, Warning{PolicyID: policy.ID, Message: message})
		if result.Decision == DecisionPass {
			result.Decision = DecisionWarn
		}
	}

	if e.webhook != "" {
		ext, err := e.evaluateWebhook(ctx, req)
		if err != nil {
			return result, err
		}
		result.Violations = append(result.Violations, ext.Violations...)
		result.Warnings = append(result.Warnings, ext.Warnings...)
		if len(ext.Violations) > 0 {
			result.Decision = DecisionDeny
		} else if len(ext.Warnings) > 0 && result.Decision == DecisionPass {
			result.Decision = DecisionWarn
		}
	}

	return result, nil
}

func (e *Engine) evaluatePolicy(p Policy, req EvaluationRequest) (string, bool) {
	b := req.Breakdown

	switch p.Type {
	case PolicyTypeMarginFloor:
		if b.Margin != nil && b.Margin.GrossMarginPercent < p.Threshold {
			return fmt.Sprintf("Gross margin (%.1f%%) below floor (%.1f%%)", b.Margin.GrossMarginPercent, p.Threshold), true
		}

	case PolicyTypePerUnitCeiling:
		if b.PerUnitLandedCost > p.Threshold {
			return fmt.Sprintf("Landed cost per unit ($%s) exceeds ceiling ($%s)",
				units.FormatPerUnit(b.PerUnitLandedCost), units.FormatPerUnit(p.Threshold)), true
		}

	case PolicyTypeOrderBudget:
		if b.TotalLandedCost > p.Threshold {
			return fmt.Sprintf("Total landed cost ($%s) exceeds budget ($%s)",
				units.FormatUSD(b.TotalLandedCost), units.FormatUSD(p.Threshold)), true
		}

	case PolicyTypeFallbackCategory:
		if req.CategoryFallback {
			return "Product did not match a specific category; generic cost profile used", true
		}

	case PolicyTypeBelowBenchmark:
		if b.Margin != nil && b.Margin.Assessment == estimation.AssessmentBelow {
			return fmt.Sprintf("Gross margin (%.1f%%) below category benchmark (%.0f%%)",
				b.Margin.GrossMarginPercent, b.Benchmarks.MarginLow*100), true
		}

	case PolicyTypeRouteFallback:
		if b.Assumptions.RouteFallback {
			return fmt.Sprintf("Route %q is not priced; %q rates used", b.Assumptions.RequestedRoute, b.Assumptions.Route), true
		}
	}

	return "", false
}

type webhookResponse struct {
	Result struct {
		Violations []Violation `json:"violations"`
		Warnings   []Warning   `json:"warnings"`
	} `json:"result"`
}

func (e *Engine) evaluateWebhook(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	b := req.Breakdown
	input := map[string]interface{}{
		"category_id":          b.Assumptions.CategoryID,
		"category_fallback":    req.CategoryFallback,
		"route":                b.Assumptions.Route,
		"route_fallback":       b.Assumptions.RouteFallback,
		"quantity":             b.Quantity,
		"total_landed_cost":    units.USD(b.TotalLandedCost),
		"landed_cost_per_unit": units.PerUnit(b.PerUnitLandedCost),
		"duty_rate_percent":    b.Assumptions.DutyRatePercent,
	}
	if b.Margin != nil {
		input["gross_margin_percent"] = units.Percent(b.Margin.GrossMarginPercent)
	}

	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return nil, err
	}

	resp, err := e.httpClient.PostJSON(ctx, e.webhook, body)
	if err != nil {
		return nil, fmt.Errorf("policy webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("policy webhook: unexpected status %d", resp.StatusCode)
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("policy webhook: decode response: %w", err)
	}

	return &EvaluationResult{
		Violations: out.Result.Violations,
		Warnings:   out.Result.Warnings,
	}, nil
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadPolicies reads a YAML policy list:
//
//	policies:
//	  - id: budget
//	    type: order_budget
//	    severity: error
//	    threshold: 25000
//	    enabled: true
func LoadPolicies(r io.Reader) ([]Policy, error) {
	var f policyFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	for i, p := range f.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		if p.Name == "" {
			f.Policies[i].Name = p.ID
		}
	}
	return f.Policies, nil
}

// Validate checks that the policy can be evaluated.
func (p Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch p.Type {
	case PolicyTypeMarginFloor, PolicyTypePerUnitCeiling, PolicyTypeOrderBudget,
		PolicyTypeFallbackCategory, PolicyTypeBelowBenchmark, PolicyTypeRouteFallback:
	default:
		return fmt.Errorf("%s: unknown type %q", p.ID, p.Type)
	}
	switch p.Severity {
	case SeverityError, SeverityWarning:
	default:
		return fmt.Errorf("%s: unknown severity %q", p.ID, p.Severity)
	}
	if p.Threshold < 0 {
		return fmt.Errorf("%s: negative threshold", p.ID)
	}
	return nil
}

// MarginFloor returns an error-severity margin floor policy.
func MarginFloor(percent float64) Policy {
	return Policy{
		ID:          "margin-floor",
		Name:        "Margin Floor",
		Description: fmt.Sprintf("Deny when gross margin is below %.1f%%", percent),
		Type:        PolicyTypeMarginFloor,
		Severity:    SeverityError,
		Threshold:   percent,
		Enabled:     true,
	}
}

// PerUnitCeiling returns an error-severity per-unit cost ceiling policy.
func PerUnitCeiling(usd float64) Policy {
	return Policy{
		ID:          "per-unit-ceiling",
		Name:        "Per-Unit Ceiling",
		Description: fmt.Sprintf("Deny when landed cost per unit exceeds $%s", units.FormatPerUnit(usd)),
		Type:        PolicyTypePerUnitCeiling,
		Severity:    SeverityError,
		Threshold:   usd,
		Enabled:     true,
	}
}

// OrderBudget returns an error-severity order budget policy.
func OrderBudget(usd float64) Policy {
	return Policy{
		ID:          "order-budget",
		Name:        "Order Budget",
		Description: fmt.Sprintf("Deny when total landed cost exceeds $%s", units.FormatUSD(usd)),
		Type:        PolicyTypeOrderBudget,
		Severity:    SeverityError,
		Threshold:   usd,
		Enabled:     true,
	}
}

func defaultPolicies() []Policy {
	return []Policy{
		{
			ID:          "negative-margin",
			Name:        "Retail Below Landed Cost",
			Description: "Deny when the retail price does not cover landed cost",
			Type:        PolicyTypeMarginFloor,
			Severity:    SeverityError,
			Threshold:   0,
			Enabled:     true,
		},
		{
			ID:          "below-benchmark",
			Name:        "Below Category Benchmark",
			Description: "Warn when margin is below the category's low benchmark",
			Type:        PolicyTypeBelowBenchmark,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "fallback-category",
			Name:        "Generic Category",
			Description: "Warn when the product fell back to the generic profile",
			Type:        PolicyTypeFallbackCategory,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "route-fallback",
			Name:        "Unpriced Route",
			Description: "Warn when the requested route fell back to the default rates",
			Type:        PolicyTypeRouteFallback,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
	}
}
