// Package analytics defines the estimate log: what is recorded per analysis,
// the Sink interface the storage backends implement, and the reports read
// back from it.
package analytics

import (
	"context"
	"time"

	"landed-cost/decision/assembly"
)

// Modes of an estimate request.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// Request sources.
const (
	SourceCLI = "cli"
	SourceAPI = "api"
)

// DefaultTrendLimit caps the category trend report.
const DefaultTrendLimit = 15

// Entry is one logged analysis.
type Entry struct {
	AnalysisID         string    `json:"analysis_id"`
	CreatedAt          time.Time `json:"created_at"`
	SessionID          string    `json:"session_id,omitempty"`
	Query              string    `json:"user_query"`
	Mode               string    `json:"mode"`
	CategoryID         string    `json:"category_id"`
	Category           string    `json:"category"`
	ReliabilityScore   float64   `json:"reliability_score"`
	TotalLandedCostUSD float64   `json:"total_landed_cost_usd"`
	PerUnitUSD         float64   `json:"landed_cost_per_unit_usd"`
	SupplierCount      int       `json:"supplier_count"`
	RiskLevel          string    `json:"risk_level"`
	AnnotationStatus   string    `json:"annotation_status"`
	Source             string    `json:"request_source"`
	ProcessingMs       int64     `json:"processing_ms"`
}

// QueryCount is a row of the top queries report.
type QueryCount struct {
	Query string `db:"user_query" json:"user_query"`
	Mode  string `db:"mode" json:"mode"`
	Count int    `db:"count" json:"count"`
}

// CategoryTrend is a row of the category trends report.
type CategoryTrend struct {
	Category       string  `db:"category" json:"category"`
	Count          int     `db:"count" json:"count"`
	AvgTotalUSD    float64 `db:"avg_total_usd" json:"avg_total_landed_cost_usd"`
	AvgReliability float64 `db:"avg_reliability" json:"avg_reliability"`
}

// DailyStat is a row of the daily volume report.
type DailyStat struct {
	Day      string `db:"day" json:"day"`
	Count    int    `db:"count" json:"count"`
	Sessions int    `db:"sessions" json:"unique_sessions"`
}

// Sink stores entries and answers the reports. Implementations must be safe
// for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	TopQueries(ctx context.Context, days, limit int) ([]QueryCount, error)
	CategoryTrends(ctx context.Context, days int) ([]CategoryTrend, error)
	DailyStats(ctx context.Context, days int) ([]DailyStat, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewEntry builds an entry from an assembled record.
func NewEntry(rec assembly.ResultRecord, mode, source, sessionID string, elapsed time.Duration) Entry {
	created, err := time.Parse(time.RFC3339, rec.Meta.TimestampUTC)
	if err != nil {
		created = time.Now().UTC()
	}
	return Entry{
		AnalysisID:         rec.Meta.AnalysisID,
		CreatedAt:          created,
		SessionID:          sessionID,
		Query:              rec.Meta.ProductRawInput,
		Mode:               mode,
		CategoryID:         rec.Meta.CategoryID,
		Category:           rec.Meta.CategoryLabel,
		ReliabilityScore:   rec.Assumptions.ReliabilityScore,
		TotalLandedCostUSD: rec.LandedCost.Totals.TotalLandedCostUSD,
		PerUnitUSD:         rec.LandedCost.Totals.LandedCostPerUnitUSD,
		SupplierCount:      len(rec.Suppliers),
		RiskLevel:          string(rec.RiskOverview.OverallLevel),
		AnnotationStatus:   string(rec.Meta.AnnotationStatus),
		Source:             source,
		ProcessingMs:       elapsed.Milliseconds(),
	}
}

// Since returns the start of the reporting window ending at now.
func Since(now time.Time, days int) time.Time {
	if days <= 0 {
		days = 1
	}
	return now.UTC().AddDate(0, 0, -days)
}

// Day formats the reporting day of t.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Nop discards entries and reports nothing.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) TopQueries(context.Context, int, int) ([]QueryCount, error) {
	return []QueryCount{}, nil
}
func (Nop) CategoryTrends(context.Context, int) ([]CategoryTrend, error) {
	return []CategoryTrend{}, nil
}
func (Nop) DailyStats(context.Context, int) ([]DailyStat, error) {
	return []DailyStat{}, nil
}
func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() error               { return nil }
