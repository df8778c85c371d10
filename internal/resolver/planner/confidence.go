package planner

// PlanSignals are the inputs to CalculatePlanConfidence.
type PlanSignals struct {
	AverageSimilarity float64
	TableCount        int
	ConnectedPairs    int
	HasSelect         bool
	HasExplicitSelect bool
	Dropped           int
}

const (
	similarityWeight = 0.6
	selectWeight     = 0.2
	joinWeight       = 0.2
)

// CalculatePlanConfidence combines average match similarity, a reward for
// selecting named columns, and a penalty for primary tables left unjoined.
// Each dropped filter or aggregate costs DroppedConditionPenalty. The result
// is clipped to [0,1].
func CalculatePlanConfidence(s PlanSignals) float64 {
	if s.TableCount == 0 {
		return 0
	}
	score := similarityWeight * s.AverageSimilarity

	switch {
	case s.HasExplicitSelect:
		score += selectWeight
	case s.HasSelect:
		score += selectWeight / 2
	}

	coverage := 1.0
	if s.TableCount > 1 {
		coverage = float64(s.ConnectedPairs) / float64(s.TableCount-1)
	}
	score += joinWeight * coverage

	score -= DroppedConditionPenalty * float64(s.Dropped)

	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
