package scoring

import "github.com/ahrav/go-cohort/internal/domain"

// Input is everything needed to evaluate one (submission, step) pair. It is
// expected to come from a single snapshot read.
type Input struct {
	SubmissionID string
	Step         domain.EvaluationStep
	Records      []domain.ScoreRecord
	TotalJudges  int
	Cutoffs      domain.CutoffConfiguration
}

// Evaluate runs the aggregator, the quorum validator, and the cutoff engine
// in order and assembles the AggregateResult.
func Evaluate(in Input) domain.AggregateResult {
	settings := in.Cutoffs.Settings
	avg := AverageScores(in.Step, in.Records, settings.MaxScore)
	quorum := CheckQuorum(avg.EvaluatorCount, in.TotalJudges, settings.RequiredEvaluatorPercentage)

	cutoff, hasCutoff := in.Cutoffs.CutoffFor(in.Step.StepNumber)

	result := domain.AggregateResult{
		SubmissionID:              in.SubmissionID,
		StepID:                    in.Step.ID,
		StepNumber:                in.Step.StepNumber,
		EvaluatorCount:            avg.EvaluatorCount,
		TotalJudges:               in.TotalJudges,
		AverageScore:              avg.Value,
		Cutoff:                    cutoff,
		EvaluatorPercentage:       quorum.Percentage,
		MeetsEvaluatorRequirement: quorum.Met,
		MeetsCutoff:               MeetsCutoff(avg.Value, cutoff),
		Status:                    Decide(avg.Value, cutoff, quorum.Met),
		Valid:                     quorum.Valid,
		ValidityMessage:           quorum.Message,
	}
	if !quorum.Valid {
		result.InvalidReason = domain.ReasonNoJudgePool
	}

	if !hasCutoff && result.Status != domain.AggregateNotScored {
		// Without a configured cutoff nothing can pass or fail.
		result.MeetsCutoff = false
		result.Status = domain.AggregatePending
		result.Valid = false
		result.InvalidReason = domain.ReasonNoCutoff
		result.ValidityMessage = "no cutoff configured for " + domain.StepKey(in.Step.StepNumber)
	}
	return result
}
