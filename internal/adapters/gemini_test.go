package adapters

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusiq/ml-analytics/internal/analysis"
)

func TestNewGeminiAdapterUnconfigured(t *testing.T) {
	adapter, err := NewGeminiAdapter(context.Background(), "", "", 0)

	require.NoError(t, err)
	require.NotNil(t, adapter)
	assert.False(t, adapter.Configured())
	assert.Equal(t, "gemini-1.5-flash", adapter.ModelName())
	assert.Equal(t, 10*time.Second, adapter.timeout)
	assert.NoError(t, adapter.Close())
}

func TestNewGeminiAdapterConfigured(t *testing.T) {
	adapter, err := NewGeminiAdapter(context.Background(), "test-key", "gemini-1.5-pro", 5*time.Second)

	require.NoError(t, err)
	require.NotNil(t, adapter)
	assert.True(t, adapter.Configured())
	assert.Equal(t, "gemini-1.5-pro", adapter.ModelName())
	assert.Equal(t, 5*time.Second, adapter.timeout)
	assert.NoError(t, adapter.Close())
}

func TestTryEnrichUnconfiguredSkips(t *testing.T) {
	adapter, err := NewGeminiAdapter(context.Background(), "", "", 0)
	require.NoError(t, err)

	enr := adapter.TryEnrich(context.Background(), "student-1", analysis.Prediction{
		RiskScore: 0.42,
		RiskLevel: analysis.LevelMedium,
	})

	assert.False(t, enr.Attempted)
	assert.False(t, enr.Enriched)
	assert.Equal(t, "gemini not configured", enr.Reason)
	assert.Empty(t, enr.Insights)
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := buildPrompt(analysis.Prediction{
		RiskScore:   0.7211,
		RiskLevel:   analysis.LevelHigh,
		Confidence:  0.75,
		RiskFactors: []string{"Largely incomplete profile"},
		Strengths:   nil,
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "Assessment: "))
	assert.Contains(t, prompt, `"risk_score":0.7211`)
	assert.Contains(t, prompt, `"risk_level":"high"`)
	assert.Contains(t, prompt, "Largely incomplete profile")
	assert.NotContains(t, prompt, "strengths")
}

func TestParseEnrichment(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantErr       bool
		wantInsights  string
		wantActions   []string
		wantConfident float64
	}{
		{
			name:          "plain json",
			raw:           `{"insights": "Doing well overall.", "confidence": 0.8, "actions": []}`,
			wantInsights:  "Doing well overall.",
			wantConfident: 0.8,
		},
		{
			name:          "fenced json",
			raw:           "```json\n{\"insights\": \"Needs support.\", \"confidence\": 0.6}\n```",
			wantInsights:  "Needs support.",
			wantConfident: 0.6,
		},
		{
			name:          "fence without language tag",
			raw:           "```\n{\"insights\": \"Steady progress.\"}\n```",
			wantInsights:  "Steady progress.",
			wantConfident: 0,
		},
		{
			name:         "actions folded into insights",
			raw:          `{"insights": "At risk of disengaging.", "actions": ["Meet an advisor", "Join one event"]}`,
			wantInsights: "At risk of disengaging.\n\nSuggested next steps:\n- Meet an advisor\n- Join one event",
			wantActions:  []string{"Meet an advisor", "Join one event"},
		},
		{
			name:          "out of range confidence is dropped",
			raw:           `{"insights": "ok", "confidence": 1.5}`,
			wantInsights:  "ok",
			wantConfident: 0,
		},
		{
			name:    "empty insights rejected",
			raw:     `{"insights": "   ", "confidence": 0.9}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     "The student seems fine.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enr, err := parseEnrichment(tt.raw)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantInsights, enr.Insights)
			assert.Equal(t, tt.wantConfident, enr.Confidence)
			if tt.wantActions != nil {
				assert.Equal(t, tt.wantActions, enr.Actions)
			}
		})
	}
}

func TestParseEnrichmentTruncatesLongInsights(t *testing.T) {
	long := strings.Repeat("a", maxInsightsLength+500)
	enr, err := parseEnrichment(`{"insights": "` + long + `"}`)

	assert.NoError(t, err)
	assert.Len(t, enr.Insights, maxInsightsLength)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.raw))
		})
	}
}
