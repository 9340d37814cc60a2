// Package confidence provides score clamping and reliability bucketing.
package confidence

import "fmt"

// Level is a qualitative bucket for a score.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelHigh, LevelMedium, LevelLow:
		return true
	}
	return false
}

// Reliability scores for a classified category and for the fallback profile.
const (
	ClassifiedReliability = 0.80
	FallbackReliability   = 0.60
)

// Clamp ensures a score is in valid range [0, 1].
func Clamp(score float64) float64 {
	return ClampRange(score, 0, 1)
}

// ClampRange bounds v to [lo, hi].
func ClampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Reliability returns the data-coverage score for a category.
func Reliability(fallback bool) float64 {
	if fallback {
		return FallbackReliability
	}
	return ClassifiedReliability
}

// ReliabilityLevel buckets a reliability score.
func ReliabilityLevel(score float64) Level {
	switch {
	case score >= 0.75:
		return LevelHigh
	case score >= 0.55:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ScoreLevel buckets a market score (demand, competition).
func ScoreLevel(score float64) Level {
	switch {
	case score >= 0.85:
		return LevelHigh
	case score >= 0.70:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ReliabilityRange renders the band shown next to a reliability score,
// e.g. 0.80 -> "~70–85%".
func ReliabilityRange(score float64) string {
	pct := int(score * 100)
	return fmt.Sprintf("~%d–%d%%", pct-10, pct+5)
}
