package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// CategoryWeights are the convex combination weights for the five risk
// categories. They must sum to 1.0.
type CategoryWeights struct {
	Academic   float64 `json:"academic"`
	Engagement float64 `json:"engagement"`
	Activity   float64 `json:"activity"`
	Profile    float64 `json:"profile"`
	Social     float64 `json:"social"`
}

// Sum returns the total weight across all categories.
func (w CategoryWeights) Sum() float64 {
	return w.Academic + w.Engagement + w.Activity + w.Profile + w.Social
}

// FeatureCaps bound raw inputs before normalization. Values at or beyond a
// cap normalize to the extreme of their range.
type FeatureCaps struct {
	CGPAMax         float64 `json:"cgpa_max"`
	EventsAttended  float64 `json:"events_attended"`
	EventsOrganized float64 `json:"events_organized"`
	InactivityDays  float64 `json:"inactivity_days"`
	Connections     float64 `json:"connections"`
	Followers       float64 `json:"followers"`
	Interactions    float64 `json:"interactions"`
}

// LevelThresholds bucket the scalar risk score: below Low is "low", above
// High is "high", and the band between them inclusive is "medium".
type LevelThresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ScoringConfig is the full tunable surface of the risk model.
type ScoringConfig struct {
	Weights    CategoryWeights `json:"weights"`
	Caps       FeatureCaps     `json:"caps"`
	Thresholds LevelThresholds `json:"thresholds"`
}

// DefaultScoringConfig returns the compiled-in scoring parameters.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Weights: CategoryWeights{
			Academic:   0.25,
			Engagement: 0.35,
			Activity:   0.20,
			Profile:    0.15,
			Social:     0.05,
		},
		Caps: FeatureCaps{
			CGPAMax:         4.0, // standard 4-point scale
			EventsAttended:  10,  // attendance beyond this reads as fully engaged
			EventsOrganized: 5,
			InactivityDays:  30, // a month away reads as fully inactive
			Connections:     50,
			Followers:       200,
			Interactions:    100,
		},
		Thresholds: LevelThresholds{
			Low:  0.30,
			High: 0.60,
		},
	}
}

const weightSumTolerance = 1e-9

// Validate rejects configs that would break the scoring invariants.
func (c *ScoringConfig) Validate() error {
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("category weights must sum to 1.0, got %v", sum)
	}
	for name, w := range map[string]float64{
		CategoryAcademic:   c.Weights.Academic,
		CategoryEngagement: c.Weights.Engagement,
		CategoryActivity:   c.Weights.Activity,
		CategoryProfile:    c.Weights.Profile,
		CategorySocial:     c.Weights.Social,
	} {
		if w < 0 {
			return fmt.Errorf("weight for %s must not be negative, got %v", name, w)
		}
	}
	for name, limit := range map[string]float64{
		"cgpa_max":         c.Caps.CGPAMax,
		"events_attended":  c.Caps.EventsAttended,
		"events_organized": c.Caps.EventsOrganized,
		"inactivity_days":  c.Caps.InactivityDays,
		"connections":      c.Caps.Connections,
		"followers":        c.Caps.Followers,
		"interactions":     c.Caps.Interactions,
	} {
		if limit <= 0 {
			return fmt.Errorf("cap %s must be positive, got %v", name, limit)
		}
	}
	t := c.Thresholds
	if !(t.Low > 0 && t.Low < t.High && t.High < 1) {
		return fmt.Errorf("thresholds must satisfy 0 < low < high < 1, got low=%v high=%v", t.Low, t.High)
	}
	return nil
}

// LoadScoringConfig reads a scoring config file. An empty path or a missing
// file yields the defaults; a file that exists but fails to parse or
// validate is an error rather than a silent fallback.
func LoadScoringConfig(path string) (*ScoringConfig, error) {
	if path == "" {
		return DefaultScoringConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultScoringConfig(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scoring config: %w", err)
	}
	defer file.Close()

	var cfg ScoringConfig
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode scoring config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveScoringConfig writes a scoring config, creating parent directories
// as needed.
func SaveScoringConfig(path string, cfg *ScoringConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid scoring config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create scoring config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scoring config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode scoring config: %w", err)
	}
	return nil
}
