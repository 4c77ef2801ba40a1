package domain

// Transition names a lifecycle transition.
type Transition string

// Lifecycle transitions.
const (
	TransitionSubmit      Transition = "submit"
	TransitionBeginReview Transition = "begin_review"
	TransitionAdvance     Transition = "advance"
	TransitionAdmit       Transition = "admit"
	TransitionReject      Transition = "reject"
	TransitionWaitlist    Transition = "waitlist"
)

// Skip reports a batch item that was not transitioned and why.
type Skip struct {
	SubmissionID string `json:"submission_id"`
	Reason       Reason `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}

// BatchResult summarizes a batch transition. Items are evaluated
// independently; one ineligible id never aborts the others.
type BatchResult struct {
	// Transition names the operation that produced the result.
	Transition Transition `json:"transition"`

	// Count is the number of submissions that were transitioned.
	Count int `json:"count"`

	// Transitioned lists the ids that were transitioned, in request order.
	Transitioned []string `json:"transitioned"`

	// Skipped lists the ids that were not transitioned, in request order.
	Skipped []Skip `json:"skipped"`
}

// NewBatchResult returns an empty result for the given transition.
func NewBatchResult(t Transition) BatchResult {
	return BatchResult{
		Transition:   t,
		Transitioned: make([]string, 0),
		Skipped:      make([]Skip, 0),
	}
}

// Succeed records a transitioned id.
func (b *BatchResult) Succeed(id string) {
	b.Count++
	b.Transitioned = append(b.Transitioned, id)
}

// Skip records a skipped id.
func (b *BatchResult) Skip(id string, reason Reason, detail string) {
	b.Skipped = append(b.Skipped, Skip{SubmissionID: id, Reason: reason, Detail: detail})
}

// SkipReasons returns the skip reason for each skipped id.
func (b BatchResult) SkipReasons() map[string]Reason {
	out := make(map[string]Reason, len(b.Skipped))
	for _, s := range b.Skipped {
		out[s.SubmissionID] = s.Reason
	}
	return out
}
