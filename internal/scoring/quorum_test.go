package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckQuorum(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		judges    int
		required  float64
		wantMet   bool
		wantValid bool
		wantPct   float64
	}{
		{"exact threshold is inclusive", 3, 4, 75, true, true, 75},
		{"below threshold", 2, 4, 75, false, true, 50},
		{"everyone scored", 4, 4, 100, true, true, 100},
		{"pool shrank after scoring", 5, 4, 100, true, true, 100},
		{"one of ten", 1, 10, 100, false, true, 10},
		{"zero required", 0, 3, 0, true, true, 0},
		{"no judge pool", 3, 0, 50, false, false, 0},
		{"negative judge pool", 1, -1, 50, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := CheckQuorum(tt.count, tt.judges, tt.required)
			assert.Equal(t, tt.wantMet, q.Met)
			assert.Equal(t, tt.wantValid, q.Valid)
			assert.InDelta(t, tt.wantPct, q.Percentage, 1e-9)
			if !tt.wantMet {
				assert.NotEmpty(t, q.Message)
			}
		})
	}
}

// TestCheckQuorum_BelowCeilingIsNeverMet sweeps pool sizes and thresholds
// and checks that any count below ceil(pct/100 × judges) is unmet while the
// ceiling itself is met.
func TestCheckQuorum_BelowCeilingIsNeverMet(t *testing.T) {
	for judges := 1; judges <= 12; judges++ {
		for _, pct := range []int{0, 25, 33, 50, 75, 90, 100} {
			need := (pct*judges + 99) / 100
			t.Run(fmt.Sprintf("%d_of_%d", pct, judges), func(t *testing.T) {
				for n := 0; n < need; n++ {
					assert.False(t, CheckQuorum(n, judges, float64(pct)).Met, "count %d", n)
				}
				assert.True(t, CheckQuorum(need, judges, float64(pct)).Met)
				assert.Equal(t, need, RequiredEvaluators(judges, float64(pct)))
			})
		}
	}
}

func TestRequiredEvaluators_NoPool(t *testing.T) {
	assert.Equal(t, 0, RequiredEvaluators(0, 75))
}
