// landedcost CLI - landed-cost estimates for imported consumer products
//
// Usage:
//
//	landedcost estimate "custom printed keychains" --quantity 5000 [options]
//	landedcost batch --input requests.jsonl
//	landedcost serve --port 8080
//	landedcost analytics top-queries --days 7
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"landed-cost/db/analytics"
	"landed-cost/db/clickhouse"
	"landed-cost/db/sqlstore"
	"landed-cost/decision/catalog"
	"landed-cost/decision/pipeline"
	"landed-cost/decision/policy"
	"landed-cost/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Analytics drivers accepted by --analytics-driver.
const (
	driverNone       = "none"
	driverMemory     = "memory"
	driverClickHouse = "clickhouse"
)

func main() {
	app := &cli.App{
		Name:    "landedcost",
		Usage:   "Landed-cost estimates for products sourced from China",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LANDEDCOST_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "pretty",
				Usage:   "Human-readable console logs",
				EnvVars: []string{"LANDEDCOST_LOG_PRETTY"},
			},
			&cli.StringFlag{
				Name:    "settings",
				Usage:   "Path to a YAML settings file",
				EnvVars: []string{"LANDEDCOST_SETTINGS"},
			},
			&cli.StringFlag{
				Name:  "registry",
				Usage: "Category registry source: file path, http(s):// URL or s3://bucket/key (default: embedded)",
			},
			&cli.StringFlag{
				Name:    "analytics-driver",
				Value:   driverNone,
				Usage:   "Analytics store (none, memory, sqlite, postgres, clickhouse)",
				EnvVars: []string{"LANDEDCOST_ANALYTICS_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "analytics-dsn",
				Usage:   "DSN for the sqlite or postgres analytics store",
				EnvVars: []string{"LANDEDCOST_ANALYTICS_DSN"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "landedcost",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "policy-file",
				Usage:   "YAML file with additional guardrail policies",
				EnvVars: []string{"LANDEDCOST_POLICY_FILE"},
			},
			&cli.StringFlag{
				Name:    "policy-webhook",
				Usage:   "External policy service evaluated after the built-in policies",
				EnvVars: []string{"LANDEDCOST_POLICY_WEBHOOK"},
			},
		},

		Commands: []*cli.Command{
			estimateCommand(),
			batchCommand(),
			categoriesCommand(),
			routesCommand(),
			serveCommand(),
			analyticsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// deps is everything a command needs, built once from the global flags.
type deps struct {
	settings  *platform.Settings
	logger    zerolog.Logger
	registry  *catalog.Registry
	sink      analytics.Sink
	estimator *pipeline.Estimator
}

func newDeps(c *cli.Context, source string) (*deps, error) {
	logger := platform.NewLogger(c.String("log-level"), c.Bool("pretty"))

	settings, err := platform.LoadSettings(c.String("settings"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("registry") {
		settings.RegistrySource = c.String("registry")
	}

	reg, err := catalog.NewLoader().Open(c.Context, settings.RegistrySource)
	if err != nil {
		logger.Fatal().Err(err).Str("source", settings.RegistrySource).Msg("failed to load category registry")
	}

	policies, err := newPolicyEngine(c)
	if err != nil {
		return nil, err
	}

	sink, err := openSink(c.Context, c)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("registry_version", reg.Version()).
		Int("categories", reg.Len()).
		Str("analytics", c.String("analytics-driver")).
		Msg("runtime ready")

	est := pipeline.New(reg, settings).
		WithPolicyEngine(policies).
		WithSink(sink).
		WithSource(source).
		WithLogger(logger)

	return &deps{
		settings:  settings,
		logger:    logger,
		registry:  reg,
		sink:      sink,
		estimator: est,
	}, nil
}

func (d *deps) Close() error {
	return d.sink.Close()
}

func newPolicyEngine(c *cli.Context) (*policy.Engine, error) {
	engine := policy.NewEngine()
	if hook := c.String("policy-webhook"); hook != "" {
		engine.WithWebhook(hook)
	}

	path := c.String("policy-file")
	if path == "" {
		return engine, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	policies, err := policy.LoadPolicies(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy file %s: %w", path, err)
	}
	for _, p := range policies {
		engine.AddPolicy(p)
	}
	return engine, nil
}

func openSink(ctx context.Context, c *cli.Context) (analytics.Sink, error) {
	driver := c.String("analytics-driver")
	switch driver {
	case "", driverNone:
		return analytics.Nop{}, nil
	case driverMemory:
		return analytics.NewMemory(), nil
	case driverClickHouse:
		cfg := clickhouse.DefaultConfig()
		cfg.Host = c.String("clickhouse-host")
		cfg.Port = c.Int("clickhouse-port")
		cfg.Database = c.String("clickhouse-database")
		cfg.Username = c.String("clickhouse-user")
		cfg.Password = c.String("clickhouse-password")
		store, err := clickhouse.NewStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case sqlstore.DriverSQLite, "sqlite3", sqlstore.DriverPostgres:
		dsn := c.String("analytics-dsn")
		if dsn == "" {
			if driver == sqlstore.DriverPostgres {
				return nil, fmt.Errorf("--analytics-dsn is required for postgres")
			}
			dsn = "landedcost.db"
		}
		store, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown analytics driver %q", driver)
	}
}
