package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.3))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.42, Clamp(0.42))
	assert.Equal(t, 90.0, ClampRange(120, 0, 90))
}

func TestReliability(t *testing.T) {
	assert.Equal(t, 0.80, Reliability(false))
	assert.Equal(t, 0.60, Reliability(true))
	assert.Equal(t, LevelHigh, ReliabilityLevel(0.80))
	assert.Equal(t, LevelMedium, ReliabilityLevel(0.60))
	assert.Equal(t, LevelLow, ReliabilityLevel(0.2))
	assert.Equal(t, "~70–85%", ReliabilityRange(0.80))
	assert.Equal(t, "~50–65%", ReliabilityRange(0.60))
}

func TestScoreLevel(t *testing.T) {
	assert.Equal(t, LevelHigh, ScoreLevel(0.9))
	assert.Equal(t, LevelMedium, ScoreLevel(0.7))
	assert.Equal(t, LevelLow, ScoreLevel(0.6))
}

func TestLevelValid(t *testing.T) {
	assert.True(t, LevelMedium.Valid())
	assert.False(t, Level("Extreme").Valid())
	assert.False(t, Level("").Valid())
}
