package analytics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps entries in process. It backs tests and single-process runs
// without a database.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// WithClock sets the clock used for reporting windows.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of everything recorded.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) window(days int) []Entry {
	since := Since(m.now(), days)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) TopQueries(_ context.Context, days, limit int) ([]QueryCount, error) {
	type key struct{ query, mode string }
	counts := make(map[key]int)
	for _, e := range m.window(days) {
		counts[key{e.Query, e.Mode}]++
	}

	out := make([]QueryCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, QueryCount{Query: k.query, Mode: k.mode, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Query != out[j].Query {
			return out[i].Query < out[j].Query
		}
		return out[i].Mode < out[j].Mode
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CategoryTrends(_ context.Context, days int) ([]CategoryTrend, error) {
	type acc struct {
		n                  int
		total, reliability float64
	}
	byCategory := make(map[string]*acc)
	for _, e := range m.window(days) {
		if e.Category == "" || e.Category == "Unknown" {
			continue
		}
		a, ok := byCategory[e.Category]
		if !ok {
			a = &acc{}
			byCategory[e.Category] = a
		}
		a.n++
		a.total += e.TotalLandedCostUSD
		a.reliability += e.ReliabilityScore
	}

	out := make([]CategoryTrend, 0, len(byCategory))
	for name, a := range byCategory {
		out = append(out, CategoryTrend{
			Category:       name,
			Count:          a.n,
			AvgTotalUSD:    a.total / float64(a.n),
			AvgReliability: a.reliability / float64(a.n),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > DefaultTrendLimit {
		out = out[:DefaultTrendLimit]
	}
	return out, nil
}

func (m *Memory) DailyStats(_ context.Context, days int) ([]DailyStat, error) {
	counts := make(map[string]int)
	sessions := make(map[string]map[string]struct{})
	for _, e := range m.window(days) {
		d := Day(e.CreatedAt)
		counts[d]++
		if e.SessionID == "" {
			continue
		}
		if sessions[d] == nil {
			sessions[d] = make(map[string]struct{})
		}
		sessions[d][e.SessionID] = struct{}{}
	}

	out := make([]DailyStat, 0, len(counts))
	for d, n := range counts {
		out = append(out, DailyStat{Day: d, Count: n, Sessions: len(sessions[d])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
