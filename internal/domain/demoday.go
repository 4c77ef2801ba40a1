package domain

import "time"

// DemoDayCriterion is one weighted criterion of a demo-day event.
type DemoDayCriterion struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// DemoDayEvent is a single-stage judged event.
type DemoDayEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Criteria is the resolved, ordered criteria list.
	Criteria []DemoDayCriterion `json:"criteria"`

	// MaxRawScore is the highest raw value a judge may enter per criterion.
	MaxRawScore float64 `json:"max_raw_score"`

	// MinRawScore is the lowest raw value a judge may enter per criterion.
	MinRawScore float64 `json:"min_raw_score"`

	EventDate time.Time `json:"event_date"`
}

// DemoDaySubmission is a project entered into a demo-day event.
type DemoDaySubmission struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	ProjectName string `json:"project_name"`
	TeamName    string `json:"team_name"`
}

// DemoDayScore is one judge's scoring of one demo-day submission. At most
// one exists per (SubmissionID, JudgeID).
type DemoDayScore struct {
	ID           string             `json:"id"`
	SubmissionID string             `json:"submission_id"`
	JudgeID      string             `json:"judge_id"`
	Scores       map[string]float64 `json:"scores"`

	// TotalScore is the raw weighted sum Σ raw × weight.
	TotalScore float64 `json:"total_score"`

	Feedback  string    `json:"feedback,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DemoDayStanding is one row of a demo-day leaderboard.
type DemoDayStanding struct {
	Rank         int               `json:"rank"`
	Submission   DemoDaySubmission `json:"submission"`
	JudgeCount   int               `json:"judge_count"`
	AverageScore *float64          `json:"average_score"`
	MaxPossible  float64           `json:"max_possible"`
	Percentage   *float64          `json:"percentage"`
}
