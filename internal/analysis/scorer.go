package analysis

// Scorer computes risk predictions from student features using a fixed
// scoring configuration. It is stateless and safe for concurrent use.
type Scorer struct {
	cfg *ScoringConfig
}

// NewScorer builds a scorer. A nil config selects the compiled-in defaults.
func NewScorer(cfg *ScoringConfig) *Scorer {
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}
	return &Scorer{cfg: cfg}
}

// Config returns the active scoring configuration.
func (s *Scorer) Config() *ScoringConfig { return s.cfg }

// Score runs the full local pipeline: normalize, weight, bucket, derive.
func (s *Scorer) Score(f StudentFeatures) Prediction {
	return s.ScoreRisks(s.Normalize(f))
}

// ScoreRisks combines already-normalized category risks into a prediction.
// The combination is convex (weights sum to 1), so the result stays in [0,1]
// whenever the sub-scores do; the clip guards against drifted configs.
func (s *Scorer) ScoreRisks(r CategoryRisks) Prediction {
	w := s.cfg.Weights
	risk := w.Academic*r.Academic +
		w.Engagement*r.Engagement +
		w.Activity*r.Activity +
		w.Profile*r.Profile +
		w.Social*r.Social
	risk = clip(risk, 0, 1)

	level, emoji := s.LevelFor(risk)

	return Prediction{
		RiskScore:          round(risk, 4),
		RiskLevel:          level,
		RiskEmoji:          emoji,
		RiskFactors:        riskFactors(r),
		Strengths:          strengths(r),
		Recommendations:    recommendations(r, level),
		PerformanceMetrics: performanceMetrics(r),
		Confidence:         round(0.5+0.45*r.Coverage, 2),
	}
}

// LevelFor buckets a risk score. The medium band is inclusive on both ends.
func (s *Scorer) LevelFor(risk float64) (string, string) {
	t := s.cfg.Thresholds
	switch {
	case risk < t.Low:
		return LevelLow, EmojiLow
	case risk > t.High:
		return LevelHigh, EmojiHigh
	default:
		return LevelMedium, EmojiMedium
	}
}

// performanceMetrics inverts each sub-risk into a performance score.
func performanceMetrics(r CategoryRisks) map[string]float64 {
	return map[string]float64{
		"academic_score":   round(1-r.Academic, 4),
		"engagement_score": round(1-r.Engagement, 4),
		"activity_score":   round(1-r.Activity, 4),
		"profile_score":    round(1-r.Profile, 4),
		"social_score":     round(1-r.Social, 4),
	}
}
