// Package clickhouse provides a ClickHouse implementation of analytics.Sink.
// Entries are buffered and written with batch inserts into a MergeTree table.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"landed-cost/db/analytics"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	Debug     bool
	BatchSize int
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "localhost",
		Port:      9000,
		Database:  "landedcost",
		Username:  "default",
		Password:  "",
		Debug:     false,
		BatchSize: 1,
	}
}

// Addr is the host:port the driver dials.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

const createTable = `
CREATE TABLE IF NOT EXISTS analysis_logs (
	analysis_id           String,
	created_at            DateTime('UTC'),
	session_id            String,
	user_query            String,
	mode                  LowCardinality(String),
	category_id           LowCardinality(String),
	category              String,
	reliability_score     Float64,
	total_landed_cost_usd Float64,
	landed_cost_per_unit  Float64,
	supplier_count        UInt16,
	risk_level            LowCardinality(String),
	annotation_status     LowCardinality(String),
	request_source        LowCardinality(String),
	processing_ms         UInt32
) ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (created_at, analysis_id)`

const insertColumns = `INSERT INTO analysis_logs (
	analysis_id, created_at, session_id, user_query, mode,
	category_id, category, reliability_score, total_landed_cost_usd,
	landed_cost_per_unit, supplier_count, risk_level, annotation_status,
	request_source, processing_ms
)`

// Store implements analytics.Sink using ClickHouse
type Store struct {
	conn driver.Conn
	cfg  *Config
	now  func() time.Time

	mu      sync.Mutex
	pending []analytics.Entry
}

var _ analytics.Sink = (*Store)(nil)

// NewStore connects and creates the table if missing.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	s := &Store{conn: conn, cfg: cfg, now: time.Now}
	if err := s.conn.Exec(ctx, createTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create analysis_logs: %w", err)
	}
	return s, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close flushes pending entries and closes the connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flushErr := s.Flush(ctx)
	if err := s.conn.Close(); err != nil {
		return err
	}
	return flushErr
}

// =============================================================================
// WRITES
// =============================================================================

// Record buffers the entry and sends a batch once BatchSize entries are
// pending.
func (s *Store) Record(ctx context.Context, e analytics.Entry) error {
	s.mu.Lock()
	s.pending = append(s.pending, e)
	full := len(s.pending) >= s.batchSize()
	s.mu.Unlock()

	if !full {
		return nil
	}
	return s.Flush(ctx)
}

func (s *Store) batchSize() int {
	if s.cfg == nil || s.cfg.BatchSize <= 0 {
		return 1
	}
	return s.cfg.BatchSize
}

// Flush writes all pending entries in one batch.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	entries := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, insertColumns)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range entries {
		if err := batch.Append(batchValues(e)...); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func batchValues(e analytics.Entry) []any {
	return []any{
		e.AnalysisID,
		e.CreatedAt.UTC(),
		e.SessionID,
		e.Query,
		e.Mode,
		e.CategoryID,
		e.Category,
		e.ReliabilityScore,
		e.TotalLandedCostUSD,
		e.PerUnitUSD,
		clampUint16(e.SupplierCount),
		e.RiskLevel,
		e.AnnotationStatus,
		e.Source,
		clampUint32(e.ProcessingMs),
	}
}

// =============================================================================
// REPORTS
// =============================================================================

const topQueriesQuery = `
	SELECT user_query, mode, count() AS n
	FROM analysis_logs
	WHERE created_at >= ?
	GROUP BY user_query, mode
	ORDER BY n DESC, user_query ASC, mode ASC
	LIMIT ?`

const categoryTrendsQuery = `
	SELECT category, count() AS n, avg(total_landed_cost_usd), avg(reliability_score)
	FROM analysis_logs
	WHERE created_at >= ? AND category != '' AND category != 'Unknown'
	GROUP BY category
	ORDER BY n DESC, category ASC
	LIMIT ?`

const dailyStatsQuery = `
	SELECT toString(toDate(created_at)) AS day, count() AS n, uniqExactIf(session_id, session_id != '')
	FROM analysis_logs
	WHERE created_at >= ?
	GROUP BY day
	ORDER BY day DESC`

// TopQueries counts queries per mode over the last days.
func (s *Store) TopQueries(ctx context.Context, days, limit int) ([]analytics.QueryCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.Query(ctx, topQueriesQuery, analytics.Since(s.now(), days), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top queries: %w", err)
	}
	defer rows.Close()

	out := []analytics.QueryCount{}
	for rows.Next() {
		var qc analytics.QueryCount
		var n uint64
		if err := rows.Scan(&qc.Query, &qc.Mode, &n); err != nil {
			return nil, fmt.Errorf("failed to scan top query: %w", err)
		}
		qc.Count = int(n)
		out = append(out, qc)
	}
	return out, rows.Err()
}

// CategoryTrends aggregates volume, cost and reliability per category.
func (s *Store) CategoryTrends(ctx context.Context, days int) ([]analytics.CategoryTrend, error) {
	rows, err := s.conn.Query(ctx, categoryTrendsQuery, analytics.Since(s.now(), days), analytics.DefaultTrendLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query category trends: %w", err)
	}
	defer rows.Close()

	out := []analytics.CategoryTrend{}
	for rows.Next() {
		var ct analytics.CategoryTrend
		var n uint64
		if err := rows.Scan(&ct.Category, &n, &ct.AvgTotalUSD, &ct.AvgReliability); err != nil {
			return nil, fmt.Errorf("failed to scan category trend: %w", err)
		}
		ct.Count = int(n)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// DailyStats counts analyses and distinct sessions per day, newest first.
func (s *Store) DailyStats(ctx context.Context, days int) ([]analytics.DailyStat, error) {
	rows, err := s.conn.Query(ctx, dailyStatsQuery, analytics.Since(s.now(), days))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	out := []analytics.DailyStat{}
	for rows.Next() {
		var ds analytics.DailyStat
		var n, sessions uint64
		if err := rows.Scan(&ds.Day, &n, &sessions); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		ds.Count = int(n)
		ds.Sessions = int(sessions)
		out = append(out, ds)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func clampUint16(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFF:
		return 0xFFFF
	}
	return uint16(v)
}

func clampUint32(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFFFFFF:
		return 0xFFFFFFFF
	}
	return uint32(v)
}

// ParseAddr splits "host:port" into a Config copy of base.
func ParseAddr(base *Config, addr string) (*Config, error) {
	cfg := *base
	host, port, ok := strings.Cut(addr, ":")
	if !ok || host == "" {
		return nil, fmt.Errorf("invalid ClickHouse address %q", addr)
	}
	if _, err := fmt.Sscanf(port, "%d", &cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid ClickHouse port in %q: %w", addr, err)
	}
	cfg.Host = host
	return &cfg, nil
}
