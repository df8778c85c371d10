package extractor

import "nlq-resolver/internal/models"

// Signal weights for CalculateConfidence. They sum to 1.
const (
	EntityWeight    = 0.4
	FilterWeight    = 0.3
	AttributeWeight = 0.2
	OperationWeight = 0.1
)

// CalculateConfidence scores how much signal the extractor found. It is a
// pure function of the context and always returns a value in [0,1].
func CalculateConfidence(qc models.QueryContext) float64 {
	score := 0.0
	if len(qc.EntitiesMentioned) > 0 {
		score += EntityWeight
	}
	if len(qc.Filters) > 0 {
		score += FilterWeight
	}
	if len(qc.AttributesMentioned) > 0 {
		score += AttributeWeight
	}
	if len(qc.Operations) > 0 {
		score += OperationWeight
	}
	return Clip(score)
}

// Clip bounds a score to [0,1].
func Clip(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
