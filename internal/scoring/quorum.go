package scoring

import "fmt"

// Quorum is the outcome of the evaluator-quorum check.
type Quorum struct {
	// Met reports whether enough evaluators have scored.
	Met bool

	// Valid is false when no judge pool is configured, in which case the
	// aggregate cannot be trusted regardless of how many scored.
	Valid bool

	// Percentage is the share of the pool that scored, clamped to 100.
	Percentage float64

	// Message explains an invalid or unmet quorum.
	Message string
}

// CheckQuorum decides whether evaluatorCount out of totalJudges satisfies
// requiredPercentage. The pool may have shrunk after scoring began, so
// evaluatorCount may exceed totalJudges; the percentage is clamped and the
// requirement is met.
func CheckQuorum(evaluatorCount, totalJudges int, requiredPercentage float64) Quorum {
	if totalJudges <= 0 {
		return Quorum{
			Met:     false,
			Valid:   false,
			Message: "no judge pool configured for this step",
		}
	}

	pct := float64(evaluatorCount) / float64(totalJudges) * 100
	if pct > 100 {
		pct = 100
	}

	q := Quorum{
		Valid:      true,
		Percentage: pct,
		Met:        evaluatorCount >= totalJudges || pct+epsilon >= requiredPercentage,
	}
	if !q.Met {
		q.Message = fmt.Sprintf("%d of %d evaluators scored (%.0f%%), %.0f%% required",
			evaluatorCount, totalJudges, pct, requiredPercentage)
	}
	return q
}

// RequiredEvaluators returns the minimum evaluator count that satisfies
// requiredPercentage of totalJudges.
func RequiredEvaluators(totalJudges int, requiredPercentage float64) int {
	if totalJudges <= 0 {
		return 0
	}
	for n := 0; n <= totalJudges; n++ {
		if CheckQuorum(n, totalJudges, requiredPercentage).Met {
			return n
		}
	}
	return totalJudges
}
