// Package sqlstore implements the analytics sink on PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"landed-cost/db/analytics"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Times are stored as unix seconds plus a precomputed day string so the
// same statements run on both drivers.
const schema = `
CREATE TABLE IF NOT EXISTS analysis_logs (
	analysis_id           TEXT PRIMARY KEY,
	created_unix          BIGINT NOT NULL,
	day                   TEXT NOT NULL,
	session_id            TEXT NOT NULL DEFAULT '',
	user_query            TEXT NOT NULL,
	mode                  TEXT NOT NULL,
	category_id           TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	reliability_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_landed_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	landed_cost_per_unit  DOUBLE PRECISION NOT NULL DEFAULT 0,
	supplier_count        INTEGER NOT NULL DEFAULT 0,
	risk_level            TEXT NOT NULL DEFAULT '',
	annotation_status     TEXT NOT NULL DEFAULT '',
	request_source        TEXT NOT NULL DEFAULT '',
	processing_ms         BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_analysis_logs_created ON analysis_logs (created_unix);
CREATE INDEX IF NOT EXISTS idx_analysis_logs_category ON analysis_logs (category);
`

// row is the persisted shape of an analytics.Entry.
type row struct {
	AnalysisID       string  `db:"analysis_id"`
	CreatedUnix      int64   `db:"created_unix"`
	Day              string  `db:"day"`
	SessionID        string  `db:"session_id"`
	Query            string  `db:"user_query"`
	Mode             string  `db:"mode"`
	CategoryID       string  `db:"category_id"`
	Category         string  `db:"category"`
	ReliabilityScore float64 `db:"reliability_score"`
	TotalUSD         float64 `db:"total_landed_cost_usd"`
	PerUnitUSD       float64 `db:"landed_cost_per_unit"`
	SupplierCount    int     `db:"supplier_count"`
	RiskLevel        string  `db:"risk_level"`
	AnnotationStatus string  `db:"annotation_status"`
	Source           string  `db:"request_source"`
	ProcessingMs     int64   `db:"processing_ms"`
}

func toRow(e analytics.Entry) row {
	return row{
		AnalysisID:       e.AnalysisID,
		CreatedUnix:      e.CreatedAt.Unix(),
		Day:              analytics.Day(e.CreatedAt),
		SessionID:        e.SessionID,
		Query:            e.Query,
		Mode:             e.Mode,
		CategoryID:       e.CategoryID,
		Category:         e.Category,
		ReliabilityScore: e.ReliabilityScore,
		TotalUSD:         e.TotalLandedCostUSD,
		PerUnitUSD:       e.PerUnitUSD,
		SupplierCount:    e.SupplierCount,
		RiskLevel:        e.RiskLevel,
		AnnotationStatus: e.AnnotationStatus,
		Source:           e.Source,
		ProcessingMs:     e.ProcessingMs,
	}
}

// Store is an analytics.Sink backed by database/sql through sqlx.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ analytics.Sink = (*Store)(nil)

// Open connects to driver at dsn and applies the schema. For SQLite the dsn
// is a file path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite, "sqlite3":
		driver = DriverSQLite
		sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
	default:
		return nil, fmt.Errorf("unsupported analytics driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection. The schema is not applied.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock sets the clock used for reporting windows.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Migrate creates the table and indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Record inserts one entry. Re-recording the same analysis id fails.
func (s *Store) Record(ctx context.Context, e analytics.Entry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_logs (
			analysis_id, created_unix, day, session_id, user_query, mode,
			category_id, category, reliability_score, total_landed_cost_usd,
			landed_cost_per_unit, supplier_count, risk_level, annotation_status,
			request_source, processing_ms
		) VALUES (
			:analysis_id, :created_unix, :day, :session_id, :user_query, :mode,
			:category_id, :category, :reliability_score, :total_landed_cost_usd,
			:landed_cost_per_unit, :supplier_count, :risk_level, :annotation_status,
			:request_source, :processing_ms
		)`, toRow(e))
	if err != nil {
		return fmt.Errorf("insert analysis log: %w", err)
	}
	return nil
}

func (s *Store) since(days int) int64 {
	return analytics.Since(s.now(), days).Unix()
}

// TopQueries counts queries per mode over the last days.
func (s *Store) TopQueries(ctx context.Context, days, limit int) ([]analytics.QueryCount, error) {
	if limit <= 0 {
		limit = 10
	}
	out := []analytics.QueryCount{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT user_query, mode, COUNT(*) AS count
		FROM analysis_logs
		WHERE created_unix >= ?
		GROUP BY user_query, mode
		ORDER BY count DESC, user_query ASC, mode ASC
		LIMIT ?`), s.since(days), limit)
	if err != nil {
		return nil, fmt.Errorf("top queries: %w", err)
	}
	return out, nil
}

// CategoryTrends aggregates volume, cost and reliability per category.
func (s *Store) CategoryTrends(ctx context.Context, days int) ([]analytics.CategoryTrend, error) {
	out := []analytics.CategoryTrend{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT category,
		       COUNT(*) AS count,
		       AVG(total_landed_cost_usd) AS avg_total_usd,
		       AVG(reliability_score) AS avg_reliability
		FROM analysis_logs
		WHERE created_unix >= ? AND category <> '' AND category <> 'Unknown'
		GROUP BY category
		ORDER BY count DESC, category ASC
		LIMIT ?`), s.since(days), analytics.DefaultTrendLimit)
	if err != nil {
		return nil, fmt.Errorf("category trends: %w", err)
	}
	return out, nil
}

// DailyStats counts analyses and distinct sessions per day, newest first.
func (s *Store) DailyStats(ctx context.Context, days int) ([]analytics.DailyStat, error) {
	out := []analytics.DailyStat{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT day,
		       COUNT(*) AS count,
		       COUNT(DISTINCT NULLIF(session_id, '')) AS sessions
		FROM analysis_logs
		WHERE created_unix >= ?
		GROUP BY day
		ORDER BY day DESC`), s.since(days))
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	return out, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
