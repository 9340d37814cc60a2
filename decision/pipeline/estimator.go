// Package pipeline runs one estimate end to end: validate the request,
// classify the query, price the order, derive sensitivity scenarios, assemble
// the record, evaluate guardrail policies and record analytics.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"landed-cost/db/analytics"
	"landed-cost/decision/assembly"
	"landed-cost/decision/catalog"
	"landed-cost/decision/classify"
	"landed-cost/decision/estimation"
	"landed-cost/decision/policy"
	"landed-cost/decision/sensitivity"
	lcerrors "landed-cost/pkg/errors"
	"landed-cost/pkg/platform"
)

// Response is the result of one estimate. Policy never alters the record.
type Response struct {
	Classification classify.Match           `json:"classification"`
	Result         assembly.ResultRecord    `json:"result"`
	Policy         *policy.EvaluationResult `json:"policy"`
}

// BatchItem is one entry of a batch response, in request order.
type BatchItem struct {
	Index    int       `json:"index"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Code     string    `json:"code,omitempty"`
}

// Estimator wires the registry, engines and collaborators. All fields are
// read-only after construction so one Estimator serves concurrent callers.
type Estimator struct {
	settings   *platform.Settings
	registry   *catalog.Registry
	classifier *classify.Classifier
	costs      *estimation.Engine
	scenarios  *sensitivity.Engine
	assembler  *assembly.Assembler
	policies   *policy.Engine
	sink       analytics.Sink
	source     string
	logger     zerolog.Logger
}

// New creates an estimator over reg. A nil settings uses the defaults.
func New(reg *catalog.Registry, settings *platform.Settings) *Estimator {
	if settings == nil {
		settings = platform.DefaultSettings()
	}
	return &Estimator{
		settings:   settings,
		registry:   reg,
		classifier: classify.New(reg),
		costs:      estimation.NewEngine().WithDefaultRoute(reg.DefaultRoute()),
		scenarios:  sensitivity.NewEngine(),
		assembler: assembly.NewAssembler(reg).WithConfig(assembly.Config{
			Currency:          settings.Currency,
			ConsultationEmail: settings.ConsultationEmail,
		}),
		policies: policy.NewEngine(),
		sink:     analytics.Nop{},
		source:   analytics.SourceCLI,
		logger:   zerolog.Nop(),
	}
}

// WithPolicyEngine replaces the default guardrails.
func (e *Estimator) WithPolicyEngine(p *policy.Engine) *Estimator {
	e.policies = p
	return e
}

// WithAssembler replaces the result assembler.
func (e *Estimator) WithAssembler(a *assembly.Assembler) *Estimator {
	e.assembler = a
	return e
}

// WithSink sets the analytics sink.
func (e *Estimator) WithSink(s analytics.Sink) *Estimator {
	e.sink = s
	return e
}

// WithSource tags analytics entries with the calling surface.
func (e *Estimator) WithSource(source string) *Estimator {
	e.source = source
	return e
}

// WithLogger sets the logger.
func (e *Estimator) WithLogger(l zerolog.Logger) *Estimator {
	e.logger = l
	return e
}

// Registry returns the registry the estimator prices against.
func (e *Estimator) Registry() *catalog.Registry { return e.registry }

// Settings returns the caller-side defaults.
func (e *Estimator) Settings() *platform.Settings { return e.settings }

// Sink returns the analytics sink.
func (e *Estimator) Sink() analytics.Sink { return e.sink }

// Estimate runs a single request. Only input contract violations and a
// cancelled context produce an error.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Response, error) {
	return e.estimate(ctx, req, analytics.ModeSingle)
}

// EstimateBatch runs reqs with at most Settings.BatchConcurrency in flight.
// A non-positive BatchConcurrency uses the default.
// Per-request failures are reported in the matching item; the error is
// non-nil only when ctx ended before the batch finished.
func (e *Estimator) EstimateBatch(ctx context.Context, reqs []Request) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))

	limit := e.settings.BatchConcurrency
	if limit <= 0 {
		limit = platform.DefaultSettings().BatchConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			items[i] = e.batchItem(ctx, i, req)
			return nil
		})
	}
	_ = g.Wait()

	return items, ctx.Err()
}

func (e *Estimator) batchItem(ctx context.Context, i int, req Request) BatchItem {
	resp, err := e.estimate(ctx, req, analytics.ModeBatch)
	if err != nil {
		item := BatchItem{Index: i, Error: err.Error()}
		if le, ok := lcerrors.AsError(err); ok {
			item.Error = le.Message
			item.Code = le.Code
		}
		return item
	}
	return BatchItem{Index: i, Response: resp}
}

func (e *Estimator) estimate(ctx context.Context, req Request, mode string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	if err := req.Validate(e.settings.MaxQueryLength); err != nil {
		return nil, err
	}
	query := NormalizeQuery(req.Query)

	match, err := e.resolveCategory(query, req.CategoryID)
	if err != nil {
		return nil, err
	}
	profile := e.registry.Lookup(match.CategoryID)

	order := e.order(req, profile.ID)
	breakdown := e.costs.Compute(order, profile)
	scenarios := e.scenarios.Compute(breakdown)

	ann := e.annotation(req)
	if m, ok := ann.(assembly.MalformedAnnotation); ok {
		e.logger.Warn().
			Str("query", query).
			Str("reason", m.Reason).
			Msg("annotation malformed, using category defaults")
	}

	rec := e.assembler.Assemble(assembly.Input{
		Query:        query,
		TargetMarket: firstNonEmpty(req.TargetMarket, e.settings.TargetMarket),
		Channel:      firstNonEmpty(req.Channel, e.settings.Channel),
		Order:        order,
		Breakdown:    breakdown,
		Sensitivity:  scenarios,
		Annotation:   ann,
	})

	verdict, err := e.policies.Evaluate(ctx, policy.EvaluationRequest{
		Breakdown:        &breakdown,
		CategoryFallback: rec.Meta.CategoryFallback,
		CustomPolicies:   req.Policies,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("analysis_id", rec.Meta.AnalysisID).Msg("policy webhook unavailable")
	}

	elapsed := time.Since(start)
	if err := e.sink.Record(ctx, analytics.NewEntry(rec, mode, e.source, req.SessionID, elapsed)); err != nil {
		e.logger.Warn().Err(lcerrors.NewAnalyticsError("record", err)).Str("analysis_id", rec.Meta.AnalysisID).Msg("analytics write failed")
	}

	e.logger.Debug().
		Str("analysis_id", rec.Meta.AnalysisID).
		Str("category", rec.Meta.CategoryID).
		Str("mode", mode).
		Str("annotation", string(rec.Meta.AnnotationStatus)).
		Str("decision", string(verdict.Decision)).
		Dur("elapsed", elapsed).
		Msg("estimate complete")

	return &Response{Classification: match, Result: rec, Policy: verdict}, nil
}

// resolveCategory honours an explicit category id and classifies otherwise.
func (e *Estimator) resolveCategory(query, categoryID string) (classify.Match, error) {
	if categoryID == "" {
		return e.classifier.Explain(query), nil
	}
	if _, ok := e.registry.Get(categoryID); !ok {
		return classify.Match{}, lcerrors.NewValidationError(lcerrors.ErrCodeInvalidCategory, "category_id",
			fmt.Sprintf("unknown category %q", categoryID))
	}
	return classify.Match{CategoryID: categoryID, Fallback: e.registry.IsFallback(categoryID)}, nil
}

func (e *Estimator) order(req Request, categoryID string) estimation.OrderSpec {
	qty := e.settings.DefaultVolume
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	return estimation.OrderSpec{
		CategoryID:       categoryID,
		Quantity:         qty,
		Route:            firstNonEmpty(req.Route, e.settings.DefaultRoute),
		Incoterm:         firstNonEmpty(req.Incoterm, e.settings.Incoterm),
		RetailPrice:      req.RetailPrice,
		WeightOverrideKg: req.UnitWeightKg,
	}
}

// annotation parses the raw annotation; oversized payloads are malformed.
func (e *Estimator) annotation(req Request) assembly.Annotation {
	limit := e.settings.MaxAnnotationBytes
	if limit > 0 && len(req.Annotation) > limit {
		return assembly.MalformedAnnotation{Reason: fmt.Sprintf("annotation exceeds %d bytes", limit)}
	}
	return assembly.ParseAnnotation(req.Annotation)
}

func firstNonEmpty(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
