package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-cohort/internal/domain"
)

// DefaultDemoDayMaxRaw is the per-criterion maximum raw score used when an
// event does not configure one.
const DefaultDemoDayMaxRaw = 10

// CriteriaSource is the event configuration criteria are resolved from.
// Structured wins when non-empty; Weights is the flat fallback.
type CriteriaSource struct {
	Structured []domain.DemoDayCriterion
	Weights    map[string]float64
}

// ResolveCriteria returns the event's criteria. When no structured list is
// present the flat {key: weight} map is used, sorted by key, with a label
// generated from the key ("market_fit" → "Market Fit").
func ResolveCriteria(src CriteriaSource) ([]domain.DemoDayCriterion, error) {
	if len(src.Structured) > 0 {
		out := make([]domain.DemoDayCriterion, 0, len(src.Structured))
		for i, c := range src.Structured {
			if c.Key == "" {
				return nil, fmt.Errorf("criterion %d: key is required", i)
			}
			if !(c.Weight > 0) {
				return nil, fmt.Errorf("criterion %s: %w", c.Key, ErrNonPositiveWeight)
			}
			if c.Label == "" {
				c.Label = LabelFromKey(c.Key)
			}
			out = append(out, c)
		}
		return out, nil
	}

	if len(src.Weights) == 0 {
		return nil, ErrNoCriteria
	}

	keys := make([]string, 0, len(src.Weights))
	for k := range src.Weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.DemoDayCriterion, 0, len(keys))
	for _, k := range keys {
		w := src.Weights[k]
		if !(w > 0) {
			return nil, fmt.Errorf("criterion %s: %w", k, ErrNonPositiveWeight)
		}
		out = append(out, domain.DemoDayCriterion{Key: k, Label: LabelFromKey(k), Weight: w})
	}
	return out, nil
}

// LabelFromKey turns a criterion key into a capitalized display label.
// Letters after the first of each word keep their case, so acronyms survive.
func LabelFromKey(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	// A Caser is stateful, so each call gets its own.
	return cases.Title(language.English, cases.NoLower).String(strings.Join(words, " "))
}

// DemoDayTotal returns a judge's raw weighted sum Σ raw × weight. Every
// criterion must be scored and every raw value must lie in
// [event.MinRawScore, event.MaxRawScore].
func DemoDayTotal(event domain.DemoDayEvent, scores map[string]float64) (float64, error) {
	if len(event.Criteria) == 0 {
		return 0, ErrNoCriteria
	}
	maxRaw := EffectiveMaxRaw(event)

	known := make(map[string]struct{}, len(event.Criteria))
	var total float64
	for _, c := range event.Criteria {
		known[c.Key] = struct{}{}
		raw, ok := scores[c.Key]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingCriterion, c.Key)
		}
		if math.IsNaN(raw) || raw < event.MinRawScore || raw > maxRaw {
			return 0, fmt.Errorf("%w: criterion %s value %v outside [%v, %v]",
				domain.ErrInvalidScore, c.Key, raw, event.MinRawScore, maxRaw)
		}
		total += raw * c.Weight
	}
	for k := range scores {
		if _, ok := known[k]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownCriterion, k)
		}
	}
	return total, nil
}

// EffectiveMaxRaw returns the event's per-criterion maximum, defaulting to
// DefaultDemoDayMaxRaw.
func EffectiveMaxRaw(event domain.DemoDayEvent) float64 {
	if event.MaxRawScore > 0 {
		return event.MaxRawScore
	}
	return DefaultDemoDayMaxRaw
}

// DemoDayMaxPossible is the single "out of" figure shown next to every
// demo-day total: Σ(maxRaw × weight).
func DemoDayMaxPossible(event domain.DemoDayEvent) float64 {
	maxRaw := EffectiveMaxRaw(event)
	var total float64
	for _, c := range event.Criteria {
		total += maxRaw * c.Weight
	}
	return total
}

// DemoDayPercentage expresses total as a percentage of DemoDayMaxPossible.
// It is derived from the same two numbers wherever it is shown.
func DemoDayPercentage(event domain.DemoDayEvent, total float64) float64 {
	maxTotal := DemoDayMaxPossible(event)
	if maxTotal <= 0 {
		return 0
	}
	return total / maxTotal * 100
}

// DemoDayAverage is the mean of all judges' totals for one submission.
func DemoDayAverage(scores []domain.DemoDayScore) (int, *float64) {
	latest := make(map[string]domain.DemoDayScore, len(scores))
	for _, s := range scores {
		prev, ok := latest[s.JudgeID]
		if !ok || s.UpdatedAt.After(prev.UpdatedAt) {
			latest[s.JudgeID] = s
		}
	}
	if len(latest) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range latest {
		sum += s.TotalScore
	}
	mean := sum / float64(len(latest))
	return len(latest), &mean
}

// RankDemoDay builds a leaderboard ordered by average descending. Unscored
// submissions sort last; ties share a rank and keep project-name order.
func RankDemoDay(
	event domain.DemoDayEvent,
	submissions []domain.DemoDaySubmission,
	scores map[string][]domain.DemoDayScore,
) []domain.DemoDayStanding {
	maxTotal := DemoDayMaxPossible(event)
	out := make([]domain.DemoDayStanding, 0, len(submissions))
	for _, sub := range submissions {
		count, avg := DemoDayAverage(scores[sub.ID])
		standing := domain.DemoDayStanding{
			Submission:   sub,
			JudgeCount:   count,
			AverageScore: avg,
			MaxPossible:  maxTotal,
		}
		if avg != nil {
			pct := DemoDayPercentage(event, *avg)
			standing.Percentage = &pct
		}
		out = append(out, standing)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].AverageScore, out[j].AverageScore
		switch {
		case a == nil && b == nil:
			return out[i].Submission.ProjectName < out[j].Submission.ProjectName
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		}
		return out[i].Submission.ProjectName < out[j].Submission.ProjectName
	})

	for i := range out {
		switch {
		case out[i].AverageScore == nil:
			out[i].Rank = 0
		case i > 0 && out[i-1].AverageScore != nil && *out[i-1].AverageScore == *out[i].AverageScore:
			out[i].Rank = out[i-1].Rank
		default:
			out[i].Rank = i + 1
		}
	}
	return out
}
