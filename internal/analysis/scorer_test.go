package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryWeightsSumToOne(t *testing.T) {
	w := DefaultScoringConfig().Weights
	assert.InDelta(t, 1.0, w.Sum(), 1e-10, "Category weights should sum to 1.0")
}

func TestLevelThresholds(t *testing.T) {
	s := NewScorer(nil)

	tests := []struct {
		name          string
		risk          float64
		expectedLevel string
		expectedEmoji string
	}{
		{"zero risk", 0.0, LevelLow, EmojiLow},
		{"just under the low boundary", 0.2999, LevelLow, EmojiLow},
		{"low boundary is medium", 0.30, LevelMedium, EmojiMedium},
		{"mid band", 0.45, LevelMedium, EmojiMedium},
		{"high boundary is medium", 0.60, LevelMedium, EmojiMedium},
		{"just over the high boundary", 0.6001, LevelHigh, EmojiHigh},
		{"full risk", 1.0, LevelHigh, EmojiHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, emoji := s.LevelFor(tt.risk)
			assert.Equal(t, tt.expectedLevel, level)
			assert.Equal(t, tt.expectedEmoji, emoji)
		})
	}
}

func TestScoreGoodStandingStudent(t *testing.T) {
	s := NewScorer(nil)

	p := s.Score(StudentFeatures{
		CGPA:              floatPtr(3.8),
		EventsAttended:    floatPtr(10),
		DaysSinceActivity: floatPtr(1),
		ProfileCompletion: floatPtr(0.95),
		Connections:       floatPtr(40),
	})

	assert.Equal(t, LevelLow, p.RiskLevel)
	assert.Equal(t, EmojiLow, p.RiskEmoji)
	assert.Less(t, p.RiskScore, 0.30)
	assert.InDelta(t, 0.1808, p.RiskScore, 1e-4)
	assert.InDelta(t, 0.75, p.Confidence, 1e-9)
	assert.Empty(t, p.RiskFactors)
	assert.Len(t, p.Strengths, 3)
	assert.Equal(t, "Strong academic performance", p.Strengths[0])
}

func TestScoreDisengagedStudent(t *testing.T) {
	s := NewScorer(nil)

	p := s.Score(StudentFeatures{
		CGPA:              floatPtr(1.5),
		EventsAttended:    floatPtr(0),
		DaysSinceActivity: floatPtr(45),
		ProfileCompletion: floatPtr(0.20),
		Connections:       floatPtr(3),
	})

	assert.Equal(t, LevelHigh, p.RiskLevel)
	assert.Equal(t, EmojiHigh, p.RiskEmoji)
	assert.Greater(t, p.RiskScore, 0.60)
	assert.InDelta(t, 0.7211, p.RiskScore, 1e-4)
	assert.Len(t, p.RiskFactors, 3)
	assert.Equal(t, "Largely incomplete profile", p.RiskFactors[0])
	assert.Empty(t, p.Strengths)
	assert.NotEmpty(t, p.Recommendations)
}

func TestScoreEmptyFeaturesIsNeutral(t *testing.T) {
	s := NewScorer(nil)

	p := s.Score(StudentFeatures{})

	assert.InDelta(t, 0.5, p.RiskScore, 1e-9)
	assert.Equal(t, LevelMedium, p.RiskLevel)
	assert.Equal(t, EmojiMedium, p.RiskEmoji)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
	assert.Empty(t, p.RiskFactors)
	assert.Empty(t, p.Strengths)
}

func TestScorePerformanceMetrics(t *testing.T) {
	s := NewScorer(nil)

	risks := s.Normalize(StudentFeatures{
		CGPA:              floatPtr(3.0),
		EventsAttended:    floatPtr(5),
		DaysSinceActivity: floatPtr(10),
	})
	p := s.ScoreRisks(risks)

	expected := map[string]float64{
		"academic_score":   1 - risks.Academic,
		"engagement_score": 1 - risks.Engagement,
		"activity_score":   1 - risks.Activity,
		"profile_score":    1 - risks.Profile,
		"social_score":     1 - risks.Social,
	}
	assert.Len(t, p.PerformanceMetrics, 5)
	for key, want := range expected {
		got, ok := p.PerformanceMetrics[key]
		assert.True(t, ok, "missing metric %s", key)
		assert.InDelta(t, want, got, 1e-4)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestScoreBounds(t *testing.T) {
	s := NewScorer(nil)

	extremes := []StudentFeatures{
		{},
		{CGPA: floatPtr(-10), EventsAttended: floatPtr(-10), DaysSinceActivity: floatPtr(1e6)},
		{CGPA: floatPtr(10), EventsAttended: floatPtr(1e6), DaysSinceActivity: floatPtr(-5), ActivityTrend: floatPtr(9)},
		{ProfileCompletion: floatPtr(-1), Connections: floatPtr(1e9)},
	}

	for _, features := range extremes {
		p := s.Score(features)
		assert.GreaterOrEqual(t, p.RiskScore, 0.0)
		assert.LessOrEqual(t, p.RiskScore, 1.0)
		assert.Contains(t, []string{LevelLow, LevelMedium, LevelHigh}, p.RiskLevel)
	}
}

func TestScoreConfidenceFromCoverage(t *testing.T) {
	s := NewScorer(nil)

	assert.InDelta(t, 0.5, s.Score(StudentFeatures{}).Confidence, 1e-9)

	full := StudentFeatures{
		CGPA:              floatPtr(3.2),
		EventsAttended:    floatPtr(4),
		EventsOrganized:   floatPtr(1),
		DaysSinceActivity: floatPtr(5),
		ActivityTrend:     floatPtr(0.2),
		ProfileCompletion: floatPtr(0.8),
		Connections:       floatPtr(12),
		Followers:         floatPtr(30),
		Interactions:      floatPtr(40),
	}
	assert.InDelta(t, 0.95, s.Score(full).Confidence, 1e-9)
}

func TestScoreRisksUniformInput(t *testing.T) {
	s := NewScorer(nil)

	for _, v := range []float64{0.1, 0.5, 0.9} {
		p := s.ScoreRisks(CategoryRisks{Academic: v, Engagement: v, Activity: v, Profile: v, Social: v})
		assert.InDelta(t, v, p.RiskScore, 1e-4, "convex combination of a uniform vector should be the vector value")
	}
}
