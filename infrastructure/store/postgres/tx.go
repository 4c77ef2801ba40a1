package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/payload"
	"github.com/ahrav/go-cohort/internal/scoring"
)

type tx struct{ tx pgx.Tx }

func (t *tx) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	var (
		app     domain.Application
		cutoffs []byte
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, cutoffs FROM applications WHERE id = $1`, id,
	).Scan(&app.ID, &app.Name, &cutoffs)
	if err != nil {
		return domain.Application{}, notFound("GetApplication", "application", id, err)
	}
	// Settings missing from the row stay zero so the engine applies its
	// configured defaults.
	if app.Cutoffs, err = payload.Cutoffs(cutoffs, domain.EvaluationSettings{}); err != nil {
		return domain.Application{}, fmt.Errorf("application %s cutoffs: %w", id, err)
	}
	return app, nil
}

func (t *tx) CreateApplication(ctx context.Context, app domain.Application) error {
	cutoffs, err := json.Marshal(app.Cutoffs)
	if err != nil {
		return fmt.Errorf("failed to marshal cutoffs: %w", err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO applications (id, name, cutoffs) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = $2, cutoffs = $3`,
		app.ID, app.Name, cutoffs,
	)
	return classify("CreateApplication", "application", err)
}

const stepColumns = `id, application_id, step_number, name, type, criteria, is_active, created_at`

func scanStep(row pgx.Row) (domain.EvaluationStep, error) {
	var (
		st       domain.EvaluationStep
		criteria []byte
	)
	if err := row.Scan(&st.ID, &st.ApplicationID, &st.StepNumber, &st.Name, &st.Type, &criteria, &st.IsActive, &st.CreatedAt); err != nil {
		return domain.EvaluationStep{}, err
	}
	var err error
	if st.Criteria, err = payload.Criteria(criteria); err != nil {
		return domain.EvaluationStep{}, fmt.Errorf("step %s criteria: %w", st.ID, err)
	}
	return st, nil
}

func (t *tx) ListSteps(ctx context.Context, applicationID string) ([]domain.EvaluationStep, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+stepColumns+` FROM evaluation_steps WHERE application_id = $1 ORDER BY step_number`,
		applicationID,
	)
	if err != nil {
		return nil, classify("ListSteps", "evaluation_step", err)
	}
	defer rows.Close()

	steps := make([]domain.EvaluationStep, 0, 2)
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, classify("ListSteps", "evaluation_step", err)
		}
		steps = append(steps, st)
	}
	return steps, classify("ListSteps", "evaluation_step", rows.Err())
}

func (t *tx) GetStep(ctx context.Context, stepID string) (domain.EvaluationStep, error) {
	st, err := scanStep(t.tx.QueryRow(ctx, `SELECT `+stepColumns+` FROM evaluation_steps WHERE id = $1`, stepID))
	if err != nil {
		return domain.EvaluationStep{}, notFound("GetStep", "step", stepID, err)
	}
	return st, nil
}

func (t *tx) CreateSteps(ctx context.Context, steps []domain.EvaluationStep) error {
	batch := &pgx.Batch{}
	for _, st := range steps {
		criteria, err := json.Marshal(st.Criteria)
		if err != nil {
			return fmt.Errorf("failed to marshal criteria: %w", err)
		}
		batch.Queue(
			`INSERT INTO evaluation_steps (`+stepColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			st.ID, st.ApplicationID, st.StepNumber, st.Name, st.Type, criteria, st.IsActive, st.CreatedAt,
		)
	}
	return classify("CreateSteps", "evaluation_step", t.tx.SendBatch(ctx, batch).Close())
}

const submissionColumns = `id, application_id, applicant, status, current_step, submitted_at, reviewed_at, review_notes, last_decision`

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var (
		sub       domain.Submission
		applicant []byte
		decision  []byte
	)
	err := row.Scan(&sub.ID, &sub.ApplicationID, &applicant, &sub.Status, &sub.CurrentStep,
		&sub.SubmittedAt, &sub.ReviewedAt, &sub.ReviewNotes, &decision)
	if err != nil {
		return domain.Submission{}, err
	}
	if len(applicant) > 0 {
		if err := json.Unmarshal(applicant, &sub.Applicant); err != nil {
			return domain.Submission{}, fmt.Errorf("submission %s applicant: %w", sub.ID, err)
		}
	}
	if len(decision) > 0 {
		sub.LastDecision = &domain.Decision{}
		if err := json.Unmarshal(decision, sub.LastDecision); err != nil {
			return domain.Submission{}, fmt.Errorf("submission %s decision: %w", sub.ID, err)
		}
	}
	return sub, nil
}

// GetSubmission locks the row for the rest of the transaction.
func (t *tx) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	sub, err := scanSubmission(t.tx.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Submission{}, notFound("GetSubmission", "submission", id, err)
	}
	return sub, nil
}

func (t *tx) ListSubmissions(ctx context.Context, applicationID string) ([]domain.Submission, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE application_id = $1 ORDER BY id`, applicationID)
	if err != nil {
		return nil, classify("ListSubmissions", "submission", err)
	}
	defer rows.Close()

	subs := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, classify("ListSubmissions", "submission", err)
		}
		subs = append(subs, sub)
	}
	return subs, classify("ListSubmissions", "submission", rows.Err())
}

func submissionArgs(sub domain.Submission) ([]any, error) {
	applicant, err := json.Marshal(sub.Applicant)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal applicant: %w", err)
	}
	var decision []byte
	if sub.LastDecision != nil {
		if decision, err = json.Marshal(sub.LastDecision); err != nil {
			return nil, fmt.Errorf("failed to marshal decision: %w", err)
		}
	}
	return []any{sub.ID, sub.ApplicationID, applicant, sub.Status, sub.CurrentStep,
		sub.SubmittedAt, sub.ReviewedAt, sub.ReviewNotes, decision}, nil
}

func (t *tx) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...)
	return classify("CreateSubmission", "submission", err)
}

func (t *tx) UpdateSubmission(ctx context.Context, sub domain.Submission) error {
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE submissions SET application_id = $2, applicant = $3, status = $4, current_step = $5,
		     submitted_at = $6, reviewed_at = $7, review_notes = $8, last_decision = $9
		 WHERE id = $1`, args...)
	if err != nil {
		return classify("UpdateSubmission", "submission", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("submission", sub.ID)
	}
	return nil
}

const scoreColumns = `id, submission_id, step_id, evaluator_id, scores, weighted_total, normalized_total, feedback, notes, created_at, updated_at`

func scanScore(row pgx.Row) (domain.ScoreRecord, error) {
	var (
		rec    domain.ScoreRecord
		scores []byte
	)
	err := row.Scan(&rec.ID, &rec.SubmissionID, &rec.StepID, &rec.EvaluatorID, &scores,
		&rec.WeightedTotal, &rec.NormalizedTotal, &rec.Feedback, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	if rec.Scores, err = payload.Scores(scores); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("score %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (t *tx) listScores(ctx context.Context, query string, args ...any) ([]domain.ScoreRecord, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("ListScores", "score_record", err)
	}
	defer rows.Close()

	out := make([]domain.ScoreRecord, 0)
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, classify("ListScores", "score_record", err)
		}
		out = append(out, rec)
	}
	return out, classify("ListScores", "score_record", rows.Err())
}

func (t *tx) ListScores(ctx context.Context, submissionID, stepID string) ([]domain.ScoreRecord, error) {
	return t.listScores(ctx,
		`SELECT `+scoreColumns+` FROM score_records WHERE submission_id = $1 AND step_id = $2 ORDER BY evaluator_id`,
		submissionID, stepID)
}

func (t *tx) ListScoresForStep(ctx context.Context, stepID string) ([]domain.ScoreRecord, error) {
	return t.listScores(ctx,
		`SELECT `+scoreColumns+` FROM score_records WHERE step_id = $1 ORDER BY submission_id, evaluator_id`,
		stepID)
}

// UpsertScore keeps the id and created_at of an existing record for the
// same (submission, step, evaluator).
func (t *tx) UpsertScore(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("failed to marshal scores: %w", err)
	}
	out, err := scanScore(t.tx.QueryRow(ctx,
		`INSERT INTO score_records (`+scoreColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (submission_id, step_id, evaluator_id) DO UPDATE SET
		     scores = EXCLUDED.scores,
		     weighted_total = EXCLUDED.weighted_total,
		     normalized_total = EXCLUDED.normalized_total,
		     feedback = EXCLUDED.feedback,
		     notes = EXCLUDED.notes,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+scoreColumns,
		rec.ID, rec.SubmissionID, rec.StepID, rec.EvaluatorID, scores,
		rec.WeightedTotal, rec.NormalizedTotal, rec.Feedback, rec.Notes, rec.CreatedAt, rec.UpdatedAt,
	))
	if err != nil {
		return domain.ScoreRecord{}, classify("UpsertScore", "score_record", err)
	}
	return out, nil
}

// AssignEvaluators replaces the pool for the step.
func (t *tx) AssignEvaluators(ctx context.Context, applicationID string, stepNumber int, evaluatorIDs []string) error {
	if _, err := t.tx.Exec(ctx,
		`DELETE FROM step_evaluators WHERE application_id = $1 AND step_number = $2`,
		applicationID, stepNumber,
	); err != nil {
		return classify("AssignEvaluators", "step_evaluator", err)
	}
	if len(evaluatorIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO step_evaluators (application_id, step_number, evaluator_id)
		 SELECT $1, $2, UNNEST($3::text[])
		 ON CONFLICT DO NOTHING`,
		applicationID, stepNumber, evaluatorIDs,
	)
	return classify("AssignEvaluators", "step_evaluator", err)
}

func (t *tx) CountEligibleEvaluators(ctx context.Context, applicationID string, stepNumber int) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM step_evaluators WHERE application_id = $1 AND step_number = $2`,
		applicationID, stepNumber,
	).Scan(&n)
	return n, classify("CountEligibleEvaluators", "step_evaluator", err)
}

func (t *tx) GetDemoDayEvent(ctx context.Context, id string) (domain.DemoDayEvent, error) {
	var (
		ev       domain.DemoDayEvent
		criteria []byte
		date     *time.Time
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, criteria, max_raw_score, min_raw_score, event_date FROM demo_day_events WHERE id = $1`, id,
	).Scan(&ev.ID, &ev.Name, &criteria, &ev.MaxRawScore, &ev.MinRawScore, &date)
	if err != nil {
		return domain.DemoDayEvent{}, notFound("GetDemoDayEvent", "demo_day_event", id, err)
	}
	if date != nil {
		ev.EventDate = *date
	}

	src, err := payload.DemoDayCriteria(criteria)
	if err != nil {
		return domain.DemoDayEvent{}, fmt.Errorf("event %s criteria: %w", id, err)
	}
	if ev.Criteria, err = scoring.ResolveCriteria(src); err != nil {
		return domain.DemoDayEvent{}, fmt.Errorf("event %s criteria: %w", id, err)
	}
	return ev, nil
}

func (t *tx) CreateDemoDayEvent(ctx context.Context, event domain.DemoDayEvent) error {
	criteria, err := json.Marshal(event.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	var date *time.Time
	if !event.EventDate.IsZero() {
		date = &event.EventDate
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO demo_day_events (id, name, criteria, max_raw_score, min_raw_score, event_date)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Name, criteria, event.MaxRawScore, event.MinRawScore, date,
	)
	return classify("CreateDemoDayEvent", "demo_day_event", err)
}

func (t *tx) GetDemoDaySubmission(ctx context.Context, id string) (domain.DemoDaySubmission, error) {
	var sub domain.DemoDaySubmission
	err := t.tx.QueryRow(ctx,
		`SELECT id, event_id, project_name, team_name FROM demo_day_submissions WHERE id = $1`, id,
	).Scan(&sub.ID, &sub.EventID, &sub.ProjectName, &sub.TeamName)
	if err != nil {
		return domain.DemoDaySubmission{}, notFound("GetDemoDaySubmission", "demo_day_submission", id, err)
	}
	return sub, nil
}

func (t *tx) ListDemoDaySubmissions(ctx context.Context, eventID string) ([]domain.DemoDaySubmission, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, event_id, project_name, team_name FROM demo_day_submissions WHERE event_id = $1 ORDER BY id`,
		eventID)
	if err != nil {
		return nil, classify("ListDemoDaySubmissions", "demo_day_submission", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DemoDaySubmission, error) {
		var s domain.DemoDaySubmission
		err := row.Scan(&s.ID, &s.EventID, &s.ProjectName, &s.TeamName)
		return s, err
	})
	return subs, classify("ListDemoDaySubmissions", "demo_day_submission", err)
}

func (t *tx) CreateDemoDaySubmission(ctx context.Context, sub domain.DemoDaySubmission) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO demo_day_submissions (id, event_id, project_name, team_name) VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.EventID, sub.ProjectName, sub.TeamName,
	)
	return classify("CreateDemoDaySubmission", "demo_day_submission", err)
}

const demoScoreColumns = `id, submission_id, judge_id, scores, total_score, feedback, notes, created_at, updated_at`

func scanDemoScore(row pgx.Row) (domain.DemoDayScore, error) {
	var (
		s      domain.DemoDayScore
		scores []byte
	)
	err := row.Scan(&s.ID, &s.SubmissionID, &s.JudgeID, &scores, &s.TotalScore, &s.Feedback, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.DemoDayScore{}, err
	}
	if s.Scores, err = payload.Scores(scores); err != nil {
		return domain.DemoDayScore{}, fmt.Errorf("demo day score %s: %w", s.ID, err)
	}
	return s, nil
}

func (t *tx) ListDemoDayScores(ctx context.Context, eventID string) ([]domain.DemoDayScore, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT s.id, s.submission_id, s.judge_id, s.scores, s.total_score, s.feedback, s.notes, s.created_at, s.updated_at
		 FROM demo_day_scores s
		 JOIN demo_day_submissions d ON d.id = s.submission_id
		 WHERE d.event_id = $1
		 ORDER BY s.submission_id, s.judge_id`,
		eventID)
	if err != nil {
		return nil, classify("ListDemoDayScores", "demo_day_score", err)
	}
	scores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DemoDayScore, error) {
		return scanDemoScore(row)
	})
	return scores, classify("ListDemoDayScores", "demo_day_score", err)
}

func (t *tx) UpsertDemoDayScore(ctx context.Context, s domain.DemoDayScore) (domain.DemoDayScore, error) {
	scores, err := json.Marshal(s.Scores)
	if err != nil {
		return domain.DemoDayScore{}, fmt.Errorf("failed to marshal scores: %w", err)
	}
	out, err := scanDemoScore(t.tx.QueryRow(ctx,
		`INSERT INTO demo_day_scores (`+demoScoreColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (submission_id, judge_id) DO UPDATE SET
		     scores = EXCLUDED.scores,
		     total_score = EXCLUDED.total_score,
		     feedback = EXCLUDED.feedback,
		     notes = EXCLUDED.notes,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+demoScoreColumns,
		s.ID, s.SubmissionID, s.JudgeID, scores, s.TotalScore, s.Feedback, s.Notes, s.CreatedAt, s.UpdatedAt,
	))
	if err != nil {
		return domain.DemoDayScore{}, classify("UpsertDemoDayScore", "demo_day_score", err)
	}
	return out, nil
}
