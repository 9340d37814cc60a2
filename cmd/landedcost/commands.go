package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"landed-cost/api"
	"landed-cost/db/analytics"
	"landed-cost/decision/catalog"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format (table, json)",
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// REGISTRY COMMANDS
// =============================================================================

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "List the product categories in the registry",
		Flags: []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			d, err := newDeps(c, analytics.SourceCLI)
			if err != nil {
				return err
			}
			defer d.Close()

			if c.String("format") == "json" {
				return writeJSON(os.Stdout, d.registry.Profiles())
			}
			printCategories(os.Stdout, d.registry)
			return nil
		},
	}
}

func printCategories(w io.Writer, reg *catalog.Registry) {
	fmt.Fprintf(w, "Registry %s (%d categories)\n\n", reg.Version(), reg.Len())
	fmt.Fprintf(w, "%-34s %-12s %7s %7s %5s  %s\n", "ID", "KIND", "DUTY%", "MOQ", "DAYS", "LABEL")
	for _, p := range reg.Profiles() {
		label := p.Label
		if reg.IsFallback(p.ID) {
			label += " (fallback)"
		}
		fmt.Fprintf(w, "%-34s %-12s %7.1f %7d %5d  %s\n",
			truncate(p.ID, 34), p.Kind, p.DutyRatePercent, p.MOQUnits, p.LeadTimeDays, label)
	}
}

func routesCommand() *cli.Command {
	return &cli.Command{
		Name:  "routes",
		Usage: "List the shipping routes in the registry",
		Flags: []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			d, err := newDeps(c, analytics.SourceCLI)
			if err != nil {
				return err
			}
			defer d.Close()

			if c.String("format") == "json" {
				return writeJSON(os.Stdout, d.registry.Routes())
			}
			for _, r := range d.registry.Routes() {
				marker := " "
				if r.ID == d.registry.DefaultRoute() {
					marker = "*"
				}
				fmt.Fprintf(os.Stdout, "%s %-24s %-28s %s\n", marker, r.ID, r.Label, r.DestinationPort)
			}
			return nil
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the landed-cost API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"LANDEDCOST_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"LANDEDCOST_CORS_ORIGINS"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api/v1 routes",
				EnvVars: []string{"LANDEDCOST_API_KEY"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	d, err := newDeps(c, analytics.SourceAPI)
	if err != nil {
		return err
	}
	defer d.Close()

	corsOrigins := strings.Split(c.String("cors-origins"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = corsOrigins
	cfg.APIKey = c.String("api-key")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(d.estimator, cfg, d.logger)
	return server.StartWithGracefulShutdown(ctx)
}

// =============================================================================
// ANALYTICS COMMAND
// =============================================================================

func analyticsCommand() *cli.Command {
	daysFlag := func(def int) cli.Flag {
		return &cli.IntFlag{Name: "days", Aliases: []string{"d"}, Value: def, Usage: "Look-back window in days"}
	}

	return &cli.Command{
		Name:  "analytics",
		Usage: "Query recorded estimates (needs --analytics-driver)",
		Subcommands: []*cli.Command{
			{
				Name:  "top-queries",
				Usage: "Most frequent product queries",
				Flags: []cli.Flag{
					daysFlag(7),
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "Maximum rows"},
					formatFlag(),
				},
				Action: func(c *cli.Context) error {
					return withSink(c, func(sink analytics.Sink) error {
						rows, err := sink.TopQueries(c.Context, c.Int("days"), c.Int("limit"))
						if err != nil {
							return err
						}
						if c.String("format") == "json" {
							return writeJSON(os.Stdout, rows)
						}
						fmt.Fprintf(os.Stdout, "%6s  %-7s %s\n", "COUNT", "MODE", "QUERY")
						for _, r := range rows {
							fmt.Fprintf(os.Stdout, "%6d  %-7s %s\n", r.Count, r.Mode, truncate(r.Query, 80))
						}
						return nil
					})
				},
			},
			{
				Name:  "category-trends",
				Usage: "Volume, average cost and reliability per category",
				Flags: []cli.Flag{daysFlag(30), formatFlag()},
				Action: func(c *cli.Context) error {
					return withSink(c, func(sink analytics.Sink) error {
						rows, err := sink.CategoryTrends(c.Context, c.Int("days"))
						if err != nil {
							return err
						}
						if c.String("format") == "json" {
							return writeJSON(os.Stdout, rows)
						}
						fmt.Fprintf(os.Stdout, "%6s  %14s  %6s  %s\n", "COUNT", "AVG TOTAL USD", "RELIAB", "CATEGORY")
						for _, r := range rows {
							fmt.Fprintf(os.Stdout, "%6d  %14.2f  %6.2f  %s\n", r.Count, r.AvgTotalUSD, r.AvgReliability, r.Category)
						}
						return nil
					})
				},
			},
			{
				Name:  "daily",
				Usage: "Estimates and distinct sessions per day",
				Flags: []cli.Flag{daysFlag(7), formatFlag()},
				Action: func(c *cli.Context) error {
					return withSink(c, func(sink analytics.Sink) error {
						rows, err := sink.DailyStats(c.Context, c.Int("days"))
						if err != nil {
							return err
						}
						if c.String("format") == "json" {
							return writeJSON(os.Stdout, rows)
						}
						fmt.Fprintf(os.Stdout, "%-10s  %6s  %8s\n", "DAY", "COUNT", "SESSIONS")
						for _, r := range rows {
							fmt.Fprintf(os.Stdout, "%-10s  %6d  %8d\n", r.Day, r.Count, r.Sessions)
						}
						return nil
					})
				},
			},
		},
	}
}

// withSink opens only the analytics store; reports need no registry.
func withSink(c *cli.Context, fn func(analytics.Sink) error) error {
	sink, err := openSink(c.Context, c)
	if err != nil {
		return err
	}
	defer sink.Close()
	return fn(sink)
}
