package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjustedConfidence_NoFeedback(t *testing.T) {
	adjusted, delta := AdjustedConfidence(50.0, nil, nil, 0)
	assert.Equal(t, 50.0, adjusted)
	assert.Equal(t, 0.0, delta)
}

func TestAdjustedConfidence_ApprovedBoost(t *testing.T) {
	// avg weight 0.7 -> boost 0.7*0.25 = 0.175 -> +17.5 points
	adjusted, delta := AdjustedConfidence(50.0, []float64{0.7}, nil, 0)
	assert.InDelta(t, 17.5, delta, 0.001)
	assert.InDelta(t, 67.5, adjusted, 0.001)
}

func TestAdjustedConfidence_ApprovedBoostCapped(t *testing.T) {
	// avg weight 1.0 -> 0.25 capped at 0.20 -> +20 points
	adjusted, delta := AdjustedConfidence(50.0, []float64{1.0, 1.0}, nil, 0)
	assert.InDelta(t, 20.0, delta, 0.001)
	assert.InDelta(t, 70.0, adjusted, 0.001)
}

func TestAdjustedConfidence_RejectedPenalty(t *testing.T) {
	// avg weight 0.7 -> penalty 0.7*0.35 = 0.245 -> -24.5 points
	adjusted, delta := AdjustedConfidence(50.0, nil, []float64{0.7}, 0)
	assert.InDelta(t, -24.5, delta, 0.001)
	assert.InDelta(t, 25.5, adjusted, 0.001)
}

func TestAdjustedConfidence_RejectedPenaltyCapped(t *testing.T) {
	// avg weight 1.0 -> 0.35 capped at 0.30 -> -30 points
	adjusted, delta := AdjustedConfidence(80.0, nil, []float64{1.0}, 0)
	assert.InDelta(t, -30.0, delta, 0.001)
	assert.InDelta(t, 50.0, adjusted, 0.001)
}

func TestAdjustedConfidence_PatternBoost(t *testing.T) {
	// 2 patterns -> 0.10 -> +10 points
	adjusted, delta := AdjustedConfidence(50.0, nil, nil, 2)
	assert.InDelta(t, 10.0, delta, 0.001)
	assert.InDelta(t, 60.0, adjusted, 0.001)
}

func TestAdjustedConfidence_PatternBoostCapped(t *testing.T) {
	// 10 patterns -> 0.50 capped at 0.15 -> +15 points
	_, delta := AdjustedConfidence(50.0, nil, nil, 10)
	assert.InDelta(t, 15.0, delta, 0.001)
}

func TestAdjustedConfidence_Combined(t *testing.T) {
	// +17.5 (approved, 0.7) - 24.5 (rejected, 0.7) + 5 (one pattern) = -2
	adjusted, delta := AdjustedConfidence(50.0, []float64{0.7}, []float64{0.7}, 1)
	assert.InDelta(t, -2.0, delta, 0.001)
	assert.InDelta(t, 48.0, adjusted, 0.001)
}

func TestAdjustedConfidence_ClampsLow(t *testing.T) {
	adjusted, delta := AdjustedConfidence(10.0, nil, []float64{1.0}, 0)
	assert.InDelta(t, -30.0, delta, 0.001)
	assert.Equal(t, 0.0, adjusted)
}

func TestAdjustedConfidence_ClampsHigh(t *testing.T) {
	adjusted, delta := AdjustedConfidence(95.0, []float64{1.0}, nil, 3)
	assert.InDelta(t, 35.0, delta, 0.001)
	assert.Equal(t, 100.0, adjusted)
}

func TestAdjustedConfidence_ZeroWeightUsesDefault(t *testing.T) {
	// Unweighted rows are treated as 0.7 relevance.
	_, withDefault := AdjustedConfidence(50.0, []float64{0}, nil, 0)
	_, explicit := AdjustedConfidence(50.0, []float64{DefaultFeedbackWeight}, nil, 0)
	assert.InDelta(t, explicit, withDefault, 0.001)
}
