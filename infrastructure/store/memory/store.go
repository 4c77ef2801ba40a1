// Package memory provides an in-process ports.Store. Transactions are
// serialized by a single mutex and work on a copy of the state that
// replaces the committed state only when the transaction function returns
// nil, which gives every transaction a serializable snapshot.
//
// It backs the engine's tests and CLI dry runs. WithTx must not be called
// from inside a transaction function.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type poolKey struct {
	applicationID string
	stepNumber    int
}

type demoScoreKey struct {
	submissionID string
	judgeID      string
}

type state struct {
	applications map[string]domain.Application
	steps        map[string]domain.EvaluationStep
	submissions  map[string]domain.Submission
	scores       map[domain.ScoreKey]domain.ScoreRecord
	pools        map[poolKey][]string
	events       map[string]domain.DemoDayEvent
	demoSubs     map[string]domain.DemoDaySubmission
	demoScores   map[demoScoreKey]domain.DemoDayScore
}

func newState() state {
	return state{
		applications: make(map[string]domain.Application),
		steps:        make(map[string]domain.EvaluationStep),
		submissions:  make(map[string]domain.Submission),
		scores:       make(map[domain.ScoreKey]domain.ScoreRecord),
		pools:        make(map[poolKey][]string),
		events:       make(map[string]domain.DemoDayEvent),
		demoSubs:     make(map[string]domain.DemoDaySubmission),
		demoScores:   make(map[demoScoreKey]domain.DemoDayScore),
	}
}

// clone copies every map. Values are treated as immutable once stored, so
// a shallow copy of each map is enough to isolate a transaction.
func (s state) clone() state {
	return state{
		applications: maps.Clone(s.applications),
		steps:        maps.Clone(s.steps),
		submissions:  maps.Clone(s.submissions),
		scores:       maps.Clone(s.scores),
		pools:        maps.Clone(s.pools),
		events:       maps.Clone(s.events),
		demoSubs:     maps.Clone(s.demoSubs),
		demoScores:   maps.Clone(s.demoScores),
	}
}

// Store is an in-memory ports.Store. The zero value is not usable; call
// New.
type Store struct {
	mu    sync.Mutex
	state state
}

// New returns an empty Store.
func New() *Store { return &Store{state: newState()} }

// WithTx implements ports.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("WithTx", "transaction", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{state: s.state.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.state = t.state
	return nil
}

type tx struct{ state state }

func (t *tx) GetApplication(_ context.Context, id string) (domain.Application, error) {
	app, ok := t.state.applications[id]
	if !ok {
		return domain.Application{}, domain.NewNotFoundError("application", id)
	}
	app.Cutoffs.Cutoffs = maps.Clone(app.Cutoffs.Cutoffs)
	return app, nil
}

func (t *tx) CreateApplication(_ context.Context, app domain.Application) error {
	app.Cutoffs.Cutoffs = maps.Clone(app.Cutoffs.Cutoffs)
	t.state.applications[app.ID] = app
	return nil
}

func (t *tx) ListSteps(_ context.Context, applicationID string) ([]domain.EvaluationStep, error) {
	out := make([]domain.EvaluationStep, 0, 2)
	for _, st := range t.state.steps {
		if st.ApplicationID == applicationID {
			out = append(out, cloneStep(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

func (t *tx) GetStep(_ context.Context, stepID string) (domain.EvaluationStep, error) {
	st, ok := t.state.steps[stepID]
	if !ok {
		return domain.EvaluationStep{}, domain.NewNotFoundError("step", stepID)
	}
	return cloneStep(st), nil
}

func (t *tx) CreateSteps(_ context.Context, steps []domain.EvaluationStep) error {
	for _, st := range steps {
		t.state.steps[st.ID] = cloneStep(st)
	}
	return nil
}

func (t *tx) GetSubmission(_ context.Context, id string) (domain.Submission, error) {
	sub, ok := t.state.submissions[id]
	if !ok {
		return domain.Submission{}, domain.NewNotFoundError("submission", id)
	}
	return sub, nil
}

func (t *tx) ListSubmissions(_ context.Context, applicationID string) ([]domain.Submission, error) {
	out := make([]domain.Submission, 0)
	for _, sub := range t.state.submissions {
		if sub.ApplicationID == applicationID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateSubmission(_ context.Context, sub domain.Submission) error {
	t.state.submissions[sub.ID] = sub
	return nil
}

func (t *tx) UpdateSubmission(_ context.Context, sub domain.Submission) error {
	if _, ok := t.state.submissions[sub.ID]; !ok {
		return domain.NewNotFoundError("submission", sub.ID)
	}
	t.state.submissions[sub.ID] = sub
	return nil
}

func (t *tx) ListScores(_ context.Context, submissionID, stepID string) ([]domain.ScoreRecord, error) {
	out := make([]domain.ScoreRecord, 0)
	for k, rec := range t.state.scores {
		if k.SubmissionID == submissionID && k.StepID == stepID {
			out = append(out, cloneScore(rec))
		}
	}
	sortScores(out)
	return out, nil
}

func (t *tx) ListScoresForStep(_ context.Context, stepID string) ([]domain.ScoreRecord, error) {
	out := make([]domain.ScoreRecord, 0)
	for k, rec := range t.state.scores {
		if k.StepID == stepID {
			out = append(out, cloneScore(rec))
		}
	}
	sortScores(out)
	return out, nil
}

func (t *tx) UpsertScore(_ context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	if prev, ok := t.state.scores[rec.Key()]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	}
	rec = cloneScore(rec)
	t.state.scores[rec.Key()] = rec
	return cloneScore(rec), nil
}

func (t *tx) AssignEvaluators(_ context.Context, applicationID string, stepNumber int, evaluatorIDs []string) error {
	ids := slices.Clone(evaluatorIDs)
	slices.Sort(ids)
	t.state.pools[poolKey{applicationID, stepNumber}] = slices.Compact(ids)
	return nil
}

func (t *tx) CountEligibleEvaluators(_ context.Context, applicationID string, stepNumber int) (int, error) {
	return len(t.state.pools[poolKey{applicationID, stepNumber}]), nil
}

func (t *tx) GetDemoDayEvent(_ context.Context, id string) (domain.DemoDayEvent, error) {
	ev, ok := t.state.events[id]
	if !ok {
		return domain.DemoDayEvent{}, domain.NewNotFoundError("demo_day_event", id)
	}
	ev.Criteria = slices.Clone(ev.Criteria)
	return ev, nil
}

func (t *tx) CreateDemoDayEvent(_ context.Context, event domain.DemoDayEvent) error {
	event.Criteria = slices.Clone(event.Criteria)
	t.state.events[event.ID] = event
	return nil
}

func (t *tx) GetDemoDaySubmission(_ context.Context, id string) (domain.DemoDaySubmission, error) {
	sub, ok := t.state.demoSubs[id]
	if !ok {
		return domain.DemoDaySubmission{}, domain.NewNotFoundError("demo_day_submission", id)
	}
	return sub, nil
}

func (t *tx) ListDemoDaySubmissions(_ context.Context, eventID string) ([]domain.DemoDaySubmission, error) {
	out := make([]domain.DemoDaySubmission, 0)
	for _, sub := range t.state.demoSubs {
		if sub.EventID == eventID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateDemoDaySubmission(_ context.Context, sub domain.DemoDaySubmission) error {
	t.state.demoSubs[sub.ID] = sub
	return nil
}

func (t *tx) ListDemoDayScores(_ context.Context, eventID string) ([]domain.DemoDayScore, error) {
	out := make([]domain.DemoDayScore, 0)
	for k, s := range t.state.demoScores {
		if t.state.demoSubs[k.submissionID].EventID == eventID {
			s.Scores = maps.Clone(s.Scores)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmissionID != out[j].SubmissionID {
			return out[i].SubmissionID < out[j].SubmissionID
		}
		return out[i].JudgeID < out[j].JudgeID
	})
	return out, nil
}

func (t *tx) UpsertDemoDayScore(_ context.Context, s domain.DemoDayScore) (domain.DemoDayScore, error) {
	key := demoScoreKey{s.SubmissionID, s.JudgeID}
	if prev, ok := t.state.demoScores[key]; ok {
		s.ID = prev.ID
		s.CreatedAt = prev.CreatedAt
	}
	s.Scores = maps.Clone(s.Scores)
	t.state.demoScores[key] = s
	out := s
	out.Scores = maps.Clone(s.Scores)
	return out, nil
}

func cloneStep(st domain.EvaluationStep) domain.EvaluationStep {
	st.Criteria = slices.Clone(st.Criteria)
	return st
}

func cloneScore(rec domain.ScoreRecord) domain.ScoreRecord {
	rec.Scores = maps.Clone(rec.Scores)
	return rec
}

func sortScores(recs []domain.ScoreRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].SubmissionID != recs[j].SubmissionID {
			return recs[i].SubmissionID < recs[j].SubmissionID
		}
		return recs[i].EvaluatorID < recs[j].EvaluatorID
	})
}
