package analysis

// Risk level names and the display emoji attached to each in responses.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"

	EmojiLow    = "🟢"
	EmojiMedium = "🟡"
	EmojiHigh   = "🔴"
)

// Category names used in factor derivation and performance metrics.
const (
	CategoryAcademic   = "academic"
	CategoryEngagement = "engagement"
	CategoryActivity   = "activity"
	CategoryProfile    = "profile"
	CategorySocial     = "social"
)

// CategoryRisks holds the per-category risk sub-scores, each in [0,1], plus
// the fraction of scoreable inputs that were actually present.
type CategoryRisks struct {
	Academic   float64 `json:"academic"`
	Engagement float64 `json:"engagement"`
	Activity   float64 `json:"activity"`
	Profile    float64 `json:"profile"`
	Social     float64 `json:"social"`
	Coverage   float64 `json:"coverage"`
}

// Prediction is the locally computed risk assessment for one student.
type Prediction struct {
	RiskScore          float64            `json:"risk_score"`
	RiskLevel          string             `json:"risk_level"`
	RiskEmoji          string             `json:"risk_emoji"`
	RiskFactors        []string           `json:"risk_factors"`
	Strengths          []string           `json:"strengths"`
	Recommendations    []string           `json:"recommendations"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
	Confidence         float64            `json:"confidence"`
}
