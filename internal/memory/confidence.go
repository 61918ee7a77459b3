package memory

import (
	"go.uber.org/zap"

	"github.com/forensicvalue/forensic-cli/internal/model"
)

// DefaultFeedbackWeight is assumed for feedback rows that carry no
// explicit relevance weight.
const DefaultFeedbackWeight = 0.7

// AdjustedConfidence recomputes a finding's confidence from feedback
// history. Base is on the 0-100 scale; approved and rejected carry one
// relevance weight in [0, 1] per similar past finding; patternMatches
// counts user-defined patterns that match.
//
// Returns the clamped adjusted confidence and the applied delta in
// percentage points. The delta can exceed what was applied when the
// clamp engages.
func AdjustedConfidence(base float64, approved, rejected []float64, patternMatches int) (adjusted, delta float64) {
	adjustment := 0.0

	if len(approved) > 0 {
		boost := min(0.20, avgWeight(approved)*0.25) // max +20 points
		adjustment += boost
		zap.L().Debug("confidence boost from approved patterns",
			zap.Float64("boost_points", boost*100),
			zap.Int("approved", len(approved)))
	}

	if len(rejected) > 0 {
		penalty := min(0.30, avgWeight(rejected)*0.35) // max -30 points
		adjustment -= penalty
		zap.L().Debug("confidence penalty from rejected patterns",
			zap.Float64("penalty_points", penalty*100),
			zap.Int("rejected", len(rejected)))
	}

	if patternMatches > 0 {
		boost := min(0.15, float64(patternMatches)*0.05)
		adjustment += boost
		zap.L().Debug("confidence boost from matching patterns",
			zap.Float64("boost_points", boost*100),
			zap.Int("patterns", patternMatches))
	}

	delta = adjustment * 100
	adjusted = model.ClampScore(base + delta)
	return adjusted, delta
}

func avgWeight(weights []float64) float64 {
	sum := 0.0
	for _, w := range weights {
		if w <= 0 {
			w = DefaultFeedbackWeight
		}
		sum += w
	}
	return sum / float64(len(weights))
}
