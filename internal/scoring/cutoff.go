package scoring

import "github.com/ahrav/go-cohort/internal/domain"

// MeetsCutoff reports whether average reaches cutoff. The boundary is
// inclusive.
func MeetsCutoff(average *float64, cutoff float64) bool {
	return average != nil && *average+epsilon >= cutoff
}

// Decide maps an average, a cutoff, and the quorum outcome to a status.
// An under-quorum sample is never judged PASSED or FAILED.
func Decide(average *float64, cutoff float64, quorumMet bool) domain.AggregateStatus {
	switch {
	case average == nil:
		return domain.AggregateNotScored
	case !quorumMet:
		return domain.AggregatePending
	case MeetsCutoff(average, cutoff):
		return domain.AggregatePassed
	default:
		return domain.AggregateFailed
	}
}
