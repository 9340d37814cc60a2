package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"landed-cost/db/analytics"
	"landed-cost/decision/pipeline"
	"landed-cost/decision/policy"
	"landed-cost/pkg/units"
)

// =============================================================================
// ESTIMATE COMMAND
// =============================================================================

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:      "estimate",
		Usage:     "Estimate landed cost for a product description",
		ArgsUsage: "<product description>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "quantity",
				Aliases: []string{"q"},
				Usage:   "Order volume in units (default from settings)",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Skip classification and price this category id",
			},
			&cli.StringFlag{
				Name:  "route",
				Usage: "Shipping route id (see 'landedcost routes')",
			},
			&cli.StringFlag{
				Name:  "incoterm",
				Usage: "Incoterm (DDP, FOB, EXW, CIF)",
			},
			&cli.StringFlag{
				Name:  "market",
				Usage: "Target market",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Sales channel",
			},
			&cli.Float64Flag{
				Name:  "retail",
				Usage: "Retail price per unit in USD, enables margin estimate",
			},
			&cli.Float64Flag{
				Name:  "weight",
				Usage: "Override unit weight in kg",
			},
			&cli.StringFlag{
				Name:  "annotation",
				Usage: "Path to a JSON annotation with qualitative market insight",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json, markdown)",
			},
			&cli.Float64Flag{
				Name:  "max-per-unit",
				Usage: "Deny when landed cost per unit exceeds this USD amount",
			},
			&cli.Float64Flag{
				Name:  "budget",
				Usage: "Deny when total landed cost exceeds this USD amount",
			},
			&cli.Float64Flag{
				Name:  "min-margin",
				Usage: "Deny when gross margin percent is below this (needs --retail)",
			},
		},
		Action: runEstimate,
	}
}

func runEstimate(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a product description is required")
	}

	req, err := buildRequest(c, query)
	if err != nil {
		return err
	}

	d, err := newDeps(c, analytics.SourceCLI)
	if err != nil {
		return err
	}
	defer d.Close()

	resp, err := d.estimator.Estimate(c.Context, req)
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "json":
		err = outputJSON(os.Stdout, resp)
	case "markdown":
		err = outputMarkdown(os.Stdout, resp)
	default:
		err = outputTable(os.Stdout, resp)
	}
	if err != nil {
		return err
	}

	if resp.Policy != nil && resp.Policy.Decision == policy.DecisionDeny {
		return cli.Exit("", 2)
	}
	return nil
}

// buildRequest maps estimate flags onto a pipeline request.
func buildRequest(c *cli.Context, query string) (pipeline.Request, error) {
	req := pipeline.Request{
		Query:        query,
		CategoryID:   c.String("category"),
		Route:        c.String("route"),
		Incoterm:     c.String("incoterm"),
		TargetMarket: c.String("market"),
		Channel:      c.String("channel"),
	}
	if c.IsSet("quantity") {
		q := c.Int("quantity")
		req.Quantity = &q
	}
	if c.IsSet("retail") {
		v := c.Float64("retail")
		req.RetailPrice = &v
	}
	if c.IsSet("weight") {
		v := c.Float64("weight")
		req.UnitWeightKg = &v
	}
	if path := c.String("annotation"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("failed to read annotation: %w", err)
		}
		req.Annotation = data
	}

	if c.IsSet("max-per-unit") {
		p := policy.PerUnitCeiling(c.Float64("max-per-unit"))
		p.ID = "cli-" + p.ID
		req.Policies = append(req.Policies, p)
	}
	if c.IsSet("budget") {
		p := policy.OrderBudget(c.Float64("budget"))
		p.ID = "cli-" + p.ID
		req.Policies = append(req.Policies, p)
	}
	if c.IsSet("min-margin") {
		p := policy.MarginFloor(c.Float64("min-margin"))
		p.ID = "cli-" + p.ID
		req.Policies = append(req.Policies, p)
	}
	return req, nil
}

// =============================================================================
// BATCH COMMAND
// =============================================================================

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Estimate many requests from a JSON-lines file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Value:   "-",
				Usage:   "JSON-lines request file, one request per line ('-' for stdin)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "-",
				Usage:   "JSON-lines result file ('-' for stdout)",
			},
		},
		Action: runBatch,
	}
}

func runBatch(c *cli.Context) error {
	in := io.Reader(os.Stdin)
	if path := c.String("input"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	out := io.Writer(os.Stdout)
	if path := c.String("output"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	lines, err := readBatch(in)
	if err != nil {
		return err
	}

	d, err := newDeps(c, analytics.SourceCLI)
	if err != nil {
		return err
	}
	defer d.Close()

	items, err := runLines(c.Context, d.estimator, lines)
	if err != nil {
		return err
	}

	failed := 0
	enc := json.NewEncoder(out)
	for _, item := range items {
		if item.Response == nil {
			failed++
		}
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	d.logger.Info().
		Int("requests", len(items)).
		Int("failed", failed).
		Msg("batch complete")
	return nil
}

// batchLine is one input line: a parsed request or the reason it was rejected.
type batchLine struct {
	req pipeline.Request
	err error
}

func readBatch(r io.Reader) ([]batchLine, error) {
	var lines []batchLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var line batchLine
		if err := json.Unmarshal([]byte(text), &line.req); err != nil {
			line.err = fmt.Errorf("invalid request line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}

// runLines estimates the parseable lines and keeps results in line order.
func runLines(ctx context.Context, est *pipeline.Estimator, lines []batchLine) ([]pipeline.BatchItem, error) {
	items := make([]pipeline.BatchItem, len(lines))
	var reqs []pipeline.Request
	var positions []int
	for i, line := range lines {
		if line.err != nil {
			items[i] = pipeline.BatchItem{Index: i, Error: line.err.Error(), Code: "INVALID_JSON"}
			continue
		}
		reqs = append(reqs, line.req)
		positions = append(positions, i)
	}

	results, err := est.EstimateBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	for j, res := range results {
		res.Index = positions[j]
		items[positions[j]] = res
	}
	return items, nil
}

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func outputJSON(w io.Writer, resp *pipeline.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func outputTable(w io.Writer, resp *pipeline.Response) error {
	rec := resp.Result
	lc := rec.LandedCost

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                    LANDED COST ESTIMATE                      ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Product:               %-37s ║\n", truncate(rec.Meta.ProductName, 37))
	fmt.Fprintf(w, "║  Category:              %-37s ║\n", truncate(rec.Meta.CategoryID, 37))
	fmt.Fprintf(w, "║  Route:                 %-37s ║\n", truncate(rec.Assumptions.RouteDisplay, 37))
	fmt.Fprintf(w, "║  Volume:                %-37s ║\n", fmt.Sprintf("%d units (%.3f CBM)", lc.Order.Units, lc.Order.TotalCBM))
	fmt.Fprintf(w, "║  Total Landed Cost:     $%-36s ║\n", units.FormatUSD(lc.Totals.TotalLandedCostUSD))
	fmt.Fprintf(w, "║  Per Unit:              $%-36s ║\n", units.FormatPerUnit(lc.Totals.LandedCostPerUnitUSD))
	fmt.Fprintf(w, "║  Reliability:           %-37s ║\n", fmt.Sprintf("%s (%s)", rec.Assumptions.ReliabilityLevel, rec.Assumptions.ReliabilityRange))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")

	fmt.Fprintln(w, "║  COST COMPONENTS                                             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	for _, comp := range lc.Components {
		fmt.Fprintf(w, "║  %-28s $%-14s %13s ║\n",
			truncate(comp.Label, 28),
			units.FormatUSD(comp.AmountUSD),
			fmt.Sprintf("%.1f%%", comp.SharePercent))
	}
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")

	if m := lc.MarginEstimate; m != nil {
		fmt.Fprintf(w, "║  Gross Margin:          %-37s ║\n", fmt.Sprintf("%.1f%% at $%s retail", m.GrossMarginPercent, units.FormatUSD(m.RetailPricePerUnitUSD)))
		fmt.Fprintf(w, "║  %-59s ║\n", truncate(m.Assessment, 59))
	} else {
		fmt.Fprintf(w, "║  Margin (category):     %-37s ║\n", lc.CurrentMarginEstimate)
	}
	for _, sc := range lc.Sensitivity {
		fmt.Fprintf(w, "║  %-40s %18s ║\n", truncate(sc.Title, 40), sc.NewMargin)
	}
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")

	if pol := resp.Policy; pol != nil {
		fmt.Fprintf(w, "║  Policy Result:         %-37s ║\n", strings.ToUpper(string(pol.Decision)))
		for _, v := range pol.Violations {
			fmt.Fprintf(w, "║  x %-57s ║\n", truncate(v.Message, 57))
		}
		for _, warn := range pol.Warnings {
			fmt.Fprintf(w, "║  ! %-57s ║\n", truncate(warn.Message, 57))
		}
	}

	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintf(w, "Analysis %s · %s · %s\n", rec.Meta.AnalysisID, rec.Meta.CostAccuracy, rec.Meta.InsightSource)
	return nil
}

func outputMarkdown(w io.Writer, resp *pipeline.Response) error {
	rec := resp.Result
	lc := rec.LandedCost

	fmt.Fprintf(w, "## Landed Cost Report: %s\n\n", rec.Meta.ProductName)
	fmt.Fprintln(w, "| Metric | Value |")
	fmt.Fprintln(w, "|--------|-------|")
	fmt.Fprintf(w, "| **Category** | %s (`%s`) |\n", rec.Meta.CategoryLabel, rec.Meta.CategoryID)
	fmt.Fprintf(w, "| **Route** | %s |\n", rec.Assumptions.RouteDisplay)
	fmt.Fprintf(w, "| **Incoterm** | %s |\n", rec.Assumptions.IncotermDisplay)
	fmt.Fprintf(w, "| **Volume** | %d units |\n", lc.Order.Units)
	fmt.Fprintf(w, "| **Total Landed Cost** | $%s |\n", units.FormatUSD(lc.Totals.TotalLandedCostUSD))
	fmt.Fprintf(w, "| **Per Unit** | $%s |\n", units.FormatPerUnit(lc.Totals.LandedCostPerUnitUSD))
	fmt.Fprintf(w, "| **Reliability** | %s %s |\n", rec.Assumptions.ReliabilityLevel, rec.Assumptions.ReliabilityRange)
	if m := lc.MarginEstimate; m != nil {
		fmt.Fprintf(w, "| **Gross Margin** | %.1f%% (%s) |\n", m.GrossMarginPercent, m.Assessment)
	}
	if resp.Policy != nil {
		fmt.Fprintf(w, "| **Policy Result** | %s |\n", resp.Policy.Decision)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Cost Breakdown")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Item | Amount |")
	fmt.Fprintln(w, "|------|--------|")
	for _, item := range lc.DetailedBreakdown {
		fmt.Fprintf(w, "| %s | $%s |\n", item.Label, units.FormatUSD(item.AmountUSD))
	}

	if len(lc.Sensitivity) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Sensitivity")
		fmt.Fprintln(w)
		for _, sc := range lc.Sensitivity {
			fmt.Fprintf(w, "- **%s**: margin %s → %s. %s\n", sc.Title, sc.MarginImpact, sc.NewMargin, sc.Recommendation)
		}
	}

	if len(lc.HiddenCostAlerts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Hidden Costs")
		fmt.Fprintln(w)
		for _, alert := range lc.HiddenCostAlerts {
			fmt.Fprintf(w, "- %s\n", alert)
		}
	}

	if resp.Policy != nil && len(resp.Policy.Violations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Policy Violations")
		fmt.Fprintln(w)
		for _, v := range resp.Policy.Violations {
			fmt.Fprintf(w, "- **%s**: %s\n", v.PolicyName, v.Message)
		}
	}

	if resp.Policy != nil && len(resp.Policy.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Warnings")
		fmt.Fprintln(w)
		for _, warn := range resp.Policy.Warnings {
			fmt.Fprintf(w, "- %s\n", warn.Message)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
