package application

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cohort/internal/domain"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		verify  func(t *testing.T, cfg EngineConfig)
	}{
		{
			name: "empty input keeps defaults",
			yaml: "",
			verify: func(t *testing.T, cfg EngineConfig) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "partial override",
			yaml: `
version: "2.1.0"
defaults:
  required_evaluator_percentage: 60
  min_score: 0
  max_score: 5
  admit_policy: final_step
scoreboard:
  concurrency: 2
`,
			verify: func(t *testing.T, cfg EngineConfig) {
				assert.Equal(t, "2.1.0", cfg.Version)
				assert.Equal(t, 60.0, cfg.Defaults.RequiredEvaluatorPercentage)
				assert.Equal(t, 5.0, cfg.Defaults.MaxScore)
				assert.Equal(t, domain.AdmitFinalStep, cfg.Defaults.AdmitPolicy)
				assert.Equal(t, 2, cfg.Scoreboard.Concurrency)
				assert.Equal(t, 10.0, cfg.DemoDay.MaxRawScore, "untouched sections keep defaults")
				assert.Equal(t, 3, cfg.Store.MaxRetries)
			},
		},
		{
			name:    "unknown key",
			yaml:    "defaults:\n  max_scores: 10\n",
			wantErr: "YAML decode failed",
		},
		{
			name:    "bad semver",
			yaml:    `version: "v1"`,
			wantErr: "Version failed semver",
		},
		{
			name:    "quorum above 100",
			yaml:    "defaults:\n  required_evaluator_percentage: 120\n",
			wantErr: "Defaults.RequiredEvaluatorPercentage failed max=100",
		},
		{
			name:    "inverted score range",
			yaml:    "defaults:\n  min_score: 8\n  max_score: 4\n",
			wantErr: "Defaults.MaxScore failed gtfield=MinScore",
		},
		{
			name:    "bad admit policy",
			yaml:    "defaults:\n  admit_policy: always\n",
			wantErr: "Defaults.AdmitPolicy failed oneof",
		},
		{
			name:    "zero concurrency",
			yaml:    "scoreboard:\n  concurrency: 0\n",
			wantErr: "Scoreboard.Concurrency failed min=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

func TestParseConfig_ValidationKind(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("defaults:\n  required_evaluator_percentage: -1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "EngineConfig", verr.Entity)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  max_retries: 0\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Store.MaxRetries)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestValidateStepType(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	for _, typ := range []domain.StepType{domain.StepTypeInitialReview, domain.StepTypeInterview, domain.StepTypeTechnical, domain.StepTypeFinalReview} {
		assert.NoError(t, v.Var(typ, "steptype"), typ)
	}
	assert.Error(t, v.Var(domain.StepType("PANEL"), "steptype"))
}
