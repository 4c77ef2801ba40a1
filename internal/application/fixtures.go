package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/payload"
	"github.com/ahrav/go-cohort/internal/ports"
	"github.com/ahrav/go-cohort/internal/scoring"
)

// RawJSON holds a payload field exactly as stored upstream. In YAML it may
// be written either as a JSON string or as a native mapping or sequence;
// both forms end up as JSON bytes for the payload decoders.
type RawJSON []byte

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RawJSON) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = RawJSON(node.Value)
		return nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*r = b
	return nil
}

// Fixtures is a seed data set for a store.
type Fixtures struct {
	Applications []ApplicationFixture `yaml:"applications" validate:"dive"`
	DemoDays     []DemoDayFixture     `yaml:"demo_days" validate:"dive"`
}

// ApplicationFixture seeds one application, its steps, its evaluator pools
// and its submissions.
type ApplicationFixture struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name" validate:"required"`

	// Cutoffs is a cutoff configuration payload.
	Cutoffs RawJSON `yaml:"cutoffs"`

	Steps []StepFixture `yaml:"steps" validate:"omitempty,len=2,dive"`

	// Evaluators maps step number to the eligible evaluator ids.
	Evaluators map[int][]string `yaml:"evaluators" validate:"dive,keys,min=1,max=2,endkeys,dive,required"`

	Submissions []SubmissionFixture `yaml:"submissions" validate:"dive"`
}

// StepFixture seeds one evaluation step. Criteria is a criteria payload.
type StepFixture struct {
	Name     string          `yaml:"name"`
	Type     domain.StepType `yaml:"type"`
	Criteria RawJSON         `yaml:"criteria"`
}

// SubmissionFixture seeds one submission.
type SubmissionFixture struct {
	ID          string                  `yaml:"id" validate:"required"`
	Name        string                  `yaml:"name" validate:"required"`
	Email       string                  `yaml:"email" validate:"omitempty,email"`
	Company     string                  `yaml:"company"`
	Status      domain.SubmissionStatus `yaml:"status" validate:"omitempty,oneof=DRAFT SUBMITTED UNDER_REVIEW ACCEPTED REJECTED WAITLISTED"`
	CurrentStep int                     `yaml:"current_step" validate:"omitempty,min=1,max=2"`
}

// DemoDayFixture seeds one demo-day event and its projects.
type DemoDayFixture struct {
	ID          string    `yaml:"id" validate:"required"`
	Name        string    `yaml:"name" validate:"required"`
	EventDate   time.Time `yaml:"event_date"`
	MaxRawScore float64   `yaml:"max_raw_score" validate:"min=0"`
	MinRawScore float64   `yaml:"min_raw_score" validate:"min=0"`

	// Criteria is a demo-day criteria payload: a structured list or a flat
	// key-to-weight map.
	Criteria RawJSON `yaml:"criteria" validate:"required"`

	Projects []ProjectFixture `yaml:"projects" validate:"dive"`
}

// ProjectFixture seeds one demo-day submission.
type ProjectFixture struct {
	ID          string `yaml:"id" validate:"required"`
	ProjectName string `yaml:"project_name" validate:"required"`
	TeamName    string `yaml:"team_name"`
}

// LoadFixtures decodes a YAML fixture set. Unknown fields are rejected.
func LoadFixtures(r io.Reader) (Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return Fixtures{}, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return fx, nil
}

// SeedReport counts what Seed wrote.
type SeedReport struct {
	Applications int `json:"applications"`
	Steps        int `json:"steps"`
	Submissions  int `json:"submissions"`
	Events       int `json:"events"`
	Projects     int `json:"projects"`
}

// Seed writes a fixture set in one transaction. Payload fields go through
// the same normalizers stored payloads do, so a fixture that seeds cleanly
// reads back cleanly.
func (e *Engine) Seed(ctx context.Context, auth domain.Authorization, fx Fixtures) (SeedReport, error) {
	if err := auth.Require(domain.CapabilityConfigure); err != nil {
		return SeedReport{}, err
	}
	if err := e.validateInput("Fixtures", fx); err != nil {
		return SeedReport{}, err
	}

	var report SeedReport
	err := e.withTx(ctx, "seed", func(ctx context.Context, tx ports.Tx) error {
		report = SeedReport{}
		for _, af := range fx.Applications {
			if err := e.seedApplication(ctx, tx, af, &report); err != nil {
				return fmt.Errorf("application %s: %w", af.ID, err)
			}
		}
		for _, df := range fx.DemoDays {
			if err := e.seedDemoDay(ctx, tx, df, &report); err != nil {
				return fmt.Errorf("demo day %s: %w", df.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}

	e.logger.InfoContext(ctx, "fixtures seeded",
		"applications", report.Applications, "steps", report.Steps,
		"submissions", report.Submissions, "events", report.Events, "projects", report.Projects)
	return report, nil
}

func (e *Engine) seedApplication(ctx context.Context, tx ports.Tx, af ApplicationFixture, report *SeedReport) error {
	cutoffs, err := payload.Cutoffs(af.Cutoffs, e.config.Defaults)
	if err != nil {
		return err
	}
	if err := tx.CreateApplication(ctx, domain.Application{ID: af.ID, Name: af.Name, Cutoffs: cutoffs}); err != nil {
		return err
	}
	report.Applications++

	if len(af.Steps) > 0 {
		inputs := make([]StepInput, len(af.Steps))
		for i, sf := range af.Steps {
			criteria, err := payload.Criteria(sf.Criteria)
			if err != nil {
				return fmt.Errorf("step%d criteria: %w", i+1, err)
			}
			inputs[i] = StepInput{Name: sf.Name, Type: sf.Type, Criteria: criteria}
		}
		steps, err := e.buildSteps(af.ID, inputs...)
		if err != nil {
			return err
		}
		if err := tx.CreateSteps(ctx, steps); err != nil {
			return err
		}
		report.Steps += len(steps)
	}

	for number, ids := range af.Evaluators {
		if err := tx.AssignEvaluators(ctx, af.ID, number, ids); err != nil {
			return err
		}
	}

	now := e.now()
	for _, s := range af.Submissions {
		sub := domain.Submission{
			ID:            s.ID,
			ApplicationID: af.ID,
			Applicant:     domain.Applicant{Name: s.Name, Email: s.Email, Company: s.Company},
			Status:        s.Status,
			CurrentStep:   s.CurrentStep,
		}
		if sub.Status == "" {
			sub.Status = domain.StatusSubmitted
		}
		if sub.CurrentStep == 0 {
			sub.CurrentStep = 1
		}
		if sub.Status != domain.StatusDraft {
			submitted := now
			sub.SubmittedAt = &submitted
		}
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		report.Submissions++
	}
	return nil
}

func (e *Engine) seedDemoDay(ctx context.Context, tx ports.Tx, df DemoDayFixture, report *SeedReport) error {
	src, err := payload.DemoDayCriteria(df.Criteria)
	if err != nil {
		return err
	}
	criteria, err := scoring.ResolveCriteria(src)
	if err != nil {
		return err
	}
	event := domain.DemoDayEvent{
		ID:          df.ID,
		Name:        df.Name,
		Criteria:    criteria,
		MaxRawScore: df.MaxRawScore,
		MinRawScore: df.MinRawScore,
		EventDate:   df.EventDate,
	}
	if err := tx.CreateDemoDayEvent(ctx, event); err != nil {
		return err
	}
	report.Events++

	for _, p := range df.Projects {
		if err := tx.CreateDemoDaySubmission(ctx, domain.DemoDaySubmission{
			ID:          p.ID,
			EventID:     df.ID,
			ProjectName: p.ProjectName,
			TeamName:    p.TeamName,
		}); err != nil {
			return err
		}
		report.Projects++
	}
	return nil
}
