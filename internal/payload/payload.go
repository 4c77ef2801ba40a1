// Package payload normalizes the JSON payloads that criteria, cutoffs,
// settings, and score maps arrive in. Upstream records store these fields
// either as native JSON, as a JSON document encoded inside a JSON string, or
// as an index-keyed object ({"0": {...}, "1": {...}}) in place of an array.
// Every decoder here accepts all three and returns one canonical Go value,
// so nothing downstream branches on representation.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/scoring"
)

// ErrMalformed is returned when a payload is not valid JSON or does not have
// the expected shape.
var ErrMalformed = errors.New("malformed payload")

// maxStringDepth bounds how many layers of string encoding are peeled off.
const maxStringDepth = 2

// parse validates raw and unwraps string-encoded JSON. An empty or null
// payload yields a Result whose Exists() is false.
func parse(raw []byte) (gjson.Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}

	r := gjson.ParseBytes(trimmed)
	for depth := 0; r.Type == gjson.String && depth < maxStringDepth; depth++ {
		inner := strings.TrimSpace(r.String())
		if inner == "" {
			return gjson.Result{}, nil
		}
		if !gjson.Valid(inner) {
			return gjson.Result{}, fmt.Errorf("%w: string does not contain JSON", ErrMalformed)
		}
		r = gjson.Parse(inner)
	}
	if r.Type == gjson.Null {
		return gjson.Result{}, nil
	}
	return r, nil
}

// elements returns the members of an array, or of an index-keyed object in
// index order.
func elements(r gjson.Result) ([]gjson.Result, error) {
	if r.IsArray() {
		return r.Array(), nil
	}
	if !r.IsObject() {
		return nil, fmt.Errorf("%w: expected an array", ErrMalformed)
	}

	type indexed struct {
		idx int
		val gjson.Result
	}
	var items []indexed
	var bad string
	r.ForEach(func(key, value gjson.Result) bool {
		idx, err := strconv.Atoi(key.String())
		if err != nil || idx < 0 {
			bad = key.String()
			return false
		}
		items = append(items, indexed{idx, value})
		return true
	})
	if bad != "" {
		return nil, fmt.Errorf("%w: object key %q is not an index", ErrMalformed, bad)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })
	out := make([]gjson.Result, len(items))
	for i, it := range items {
		out[i] = it.val
	}
	return out, nil
}

// number reads a JSON number or a numeric string.
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.String()), 64)
		return v, err == nil
	}
	return 0, false
}

// first returns the first of paths that exists on r.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// Criteria decodes a step's ordered criteria list. Each element carries
// "id" (or "key"), "name" (or "label"), "weight", and an optional "order".
// A missing id defaults to the element's index and a missing order to its
// position. Values are not validated here beyond being well-formed.
func Criteria(raw []byte) ([]domain.Criterion, error) {
	r, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if !r.Exists() {
		return []domain.Criterion{}, nil
	}

	elems, err := elements(r)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Criterion, 0, len(elems))
	for i, el := range elems {
		if !el.IsObject() {
			return nil, fmt.Errorf("%w: criterion %d is not an object", ErrMalformed, i)
		}
		weight, ok := number(el.Get("weight"))
		if !ok {
			return nil, fmt.Errorf("%w: criterion %d has no numeric weight", ErrMalformed, i)
		}
		c := domain.Criterion{
			ID:     first(el, "id", "key").String(),
			Name:   first(el, "name", "label").String(),
			Weight: weight,
			Order:  i,
		}
		if c.ID == "" {
			c.ID = strconv.Itoa(i)
		}
		if order, ok := number(el.Get("order")); ok {
			c.Order = int(order)
		}
		out = append(out, c)
	}
	return out, nil
}

// Settings decodes evaluation settings from either camelCase or snake_case
// keys. Keys that are absent keep their value from defaults.
func Settings(raw []byte, defaults domain.EvaluationSettings) (domain.EvaluationSettings, error) {
	r, err := parse(raw)
	if err != nil {
		return defaults, err
	}
	return settingsFrom(r, defaults)
}

func settingsFrom(r gjson.Result, s domain.EvaluationSettings) (domain.EvaluationSettings, error) {
	if !r.Exists() {
		return s, nil
	}
	if !r.IsObject() {
		return s, fmt.Errorf("%w: settings must be an object", ErrMalformed)
	}

	fields := []struct {
		dst   *float64
		paths []string
	}{
		{&s.RequiredEvaluatorPercentage, []string{"requiredEvaluatorPercentage", "required_evaluator_percentage"}},
		{&s.MinScore, []string{"minScore", "min_score"}},
		{&s.MaxScore, []string{"maxScore", "max_score"}},
	}
	for _, f := range fields {
		v := first(r, f.paths...)
		if !v.Exists() {
			continue
		}
		n, ok := number(v)
		if !ok {
			return s, fmt.Errorf("%w: %s must be numeric", ErrMalformed, f.paths[1])
		}
		*f.dst = n
	}
	if v := first(r, "admitPolicy", "admit_policy"); v.Exists() {
		s.AdmitPolicy = domain.AdmitPolicy(v.String())
	}
	return s, nil
}

// Cutoffs decodes an application's cutoff configuration. Step cutoffs are
// read from a "cutoffs" object when present, and otherwise from top-level
// "stepN" keys. Settings are read from a "settings" object, falling back
// to defaults.
func Cutoffs(raw []byte, defaults domain.EvaluationSettings) (domain.CutoffConfiguration, error) {
	cfg := domain.CutoffConfiguration{Cutoffs: map[string]float64{}, Settings: defaults}

	r, err := parse(raw)
	if err != nil || !r.Exists() {
		return cfg, err
	}
	if !r.IsObject() {
		return cfg, fmt.Errorf("%w: cutoff configuration must be an object", ErrMalformed)
	}

	source := r
	if nested := r.Get("cutoffs"); nested.Exists() {
		if source, err = parse([]byte(nested.Raw)); err != nil {
			return cfg, err
		}
	}

	var bad string
	source.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !isStepKey(k) {
			return true
		}
		n, ok := number(value)
		if !ok {
			bad = k
			return false
		}
		cfg.Cutoffs[k] = n
		return true
	})
	if bad != "" {
		return cfg, fmt.Errorf("%w: cutoff %s must be numeric", ErrMalformed, bad)
	}

	settingsRaw := r.Get("settings")
	if settingsRaw.Exists() {
		inner, err := parse([]byte(settingsRaw.Raw))
		if err != nil {
			return cfg, err
		}
		if cfg.Settings, err = settingsFrom(inner, defaults); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// isStepKey reports whether k has the form produced by domain.StepKey.
func isStepKey(k string) bool {
	n, ok := strings.CutPrefix(k, "step")
	if !ok || n == "" {
		return false
	}
	v, err := strconv.Atoi(n)
	return err == nil && v > 0
}

// Scores decodes a {criterionID: rawValue} map. Values may be numbers or
// numeric strings.
func Scores(raw []byte) (map[string]float64, error) {
	r, err := parse(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	if !r.Exists() {
		return out, nil
	}
	if !r.IsObject() {
		return nil, fmt.Errorf("%w: scores must be an object", ErrMalformed)
	}

	var bad string
	r.ForEach(func(key, value gjson.Result) bool {
		n, ok := number(value)
		if !ok {
			bad = key.String()
			return false
		}
		out[key.String()] = n
		return true
	})
	if bad != "" {
		return nil, fmt.Errorf("%w: score for %s must be numeric", ErrMalformed, bad)
	}
	return out, nil
}

// DemoDayCriteria decodes a demo-day event's criteria configuration. A list
// (or index-keyed object) of {key, label, weight} objects becomes the
// structured source; a flat {key: weight} object becomes the weight-map
// fallback. Pass the result to scoring.ResolveCriteria.
func DemoDayCriteria(raw []byte) (scoring.CriteriaSource, error) {
	var src scoring.CriteriaSource

	r, err := parse(raw)
	if err != nil || !r.Exists() {
		return src, err
	}

	if r.IsObject() && flatWeights(r) {
		src.Weights = make(map[string]float64)
		r.ForEach(func(key, value gjson.Result) bool {
			n, _ := number(value)
			src.Weights[key.String()] = n
			return true
		})
		return src, nil
	}

	elems, err := elements(r)
	if err != nil {
		return src, err
	}
	for i, el := range elems {
		if !el.IsObject() {
			return src, fmt.Errorf("%w: criterion %d is not an object", ErrMalformed, i)
		}
		w, ok := number(el.Get("weight"))
		if !ok {
			return src, fmt.Errorf("%w: criterion %d has no numeric weight", ErrMalformed, i)
		}
		src.Structured = append(src.Structured, domain.DemoDayCriterion{
			Key:    first(el, "key", "id").String(),
			Label:  first(el, "label", "name").String(),
			Weight: w,
		})
	}
	return src, nil
}

// flatWeights reports whether every value of the object is numeric.
func flatWeights(r gjson.Result) bool {
	flat := true
	r.ForEach(func(_, value gjson.Result) bool {
		_, flat = number(value)
		return flat
	})
	return flat
}
