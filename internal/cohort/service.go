package cohort

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/campusiq/ml-analytics/internal/analysis"
	"github.com/campusiq/ml-analytics/internal/database"
)

// Supported aggregation windows.
const (
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"
	WindowAll = "all"
)

// summarySampleCap bounds how many score samples feed the median, MAD and
// recency-weighted aggregates for one window.
const summarySampleCap = 5000

// ErrUnknownWindow is returned for windows outside the supported set.
var ErrUnknownWindow = errors.New("unknown cohort window")

// Windows lists the supported windows in display order.
func Windows() []string {
	return []string{Window24h, Window7d, Window30d, WindowAll}
}

// Summary aggregates the stored predictions of one window. It carries no
// per-student data, only cohort-level statistics.
type Summary struct {
	Window             string           `json:"window"`
	Since              *time.Time       `json:"since,omitempty"`
	TotalPredictions   int64            `json:"total_predictions"`
	LevelCounts        map[string]int64 `json:"level_counts"`
	AverageRisk        float64          `json:"average_risk_score"`
	RecencyWeightedAvg float64          `json:"recency_weighted_avg"`
	MedianRisk         float64          `json:"median_risk_score"`
	RiskSpread         float64          `json:"risk_spread_mad"`
	EnrichedShare      float64          `json:"enriched_share"`
	SampleSize         int              `json:"sample_size"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// Service computes cohort risk summaries from stored predictions
type Service struct {
	repo  *database.Repository
	cache *SummaryCache
}

// NewService creates a cohort service with a 15 minute summary cache
func NewService(repo *database.Repository) *Service {
	return &Service{
		repo:  repo,
		cache: NewSummaryCache(15 * time.Minute),
	}
}

// NewServiceWithCache creates a cohort service with a custom cache
func NewServiceWithCache(repo *database.Repository, cache *SummaryCache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Summary returns the cohort summary for a window, served from cache when
// a fresh copy exists
func (s *Service) Summary(ctx context.Context, window string) (*Summary, error) {
	if _, err := windowSince(window, time.Now().UTC()); err != nil {
		return nil, err
	}

	if cached, found := s.cache.GetSummary(window); found {
		return cached, nil
	}

	return s.computeSummary(ctx, window)
}

// computeSummary aggregates a window from the database and caches the result
func (s *Service) computeSummary(ctx context.Context, window string) (*Summary, error) {
	now := time.Now().UTC()
	since, err := windowSince(window, now)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.LevelCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate level counts: %w", err)
	}

	levelCounts := map[string]int64{
		analysis.LevelLow:    0,
		analysis.LevelMedium: 0,
		analysis.LevelHigh:   0,
	}
	var total int64
	for level, n := range counts {
		levelCounts[level] = n
		total += n
	}

	avg, err := s.repo.AverageRiskScore(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate average risk: %w", err)
	}

	samples, err := s.repo.RecentScores(ctx, since, summarySampleCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load score samples: %w", err)
	}

	enriched, err := s.repo.EnrichedCount(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count enriched predictions: %w", err)
	}

	scores := make([]float64, len(samples))
	for i, sample := range samples {
		scores[i] = sample.Score
	}

	enrichedShare := 0.0
	if total > 0 {
		enrichedShare = float64(enriched) / float64(total)
	}

	summary := &Summary{
		Window:             window,
		TotalPredictions:   total,
		LevelCounts:        levelCounts,
		AverageRisk:        round4(avg),
		RecencyWeightedAvg: round4(weightedAverage(samples, windowTauDays(window), now)),
		MedianRisk:         round4(analysis.Median(scores)),
		RiskSpread:         round4(analysis.MAD(scores)),
		EnrichedShare:      round4(enrichedShare),
		SampleSize:         len(samples),
		GeneratedAt:        now,
	}
	if !since.IsZero() {
		summary.Since = &since
	}

	s.cache.SetSummary(window, summary)

	return summary, nil
}

// WarmCache recomputes and caches every window. Used at startup and by the
// auto-refresh loop so readers rarely hit a cold cache.
func (s *Service) WarmCache(ctx context.Context) {
	slog.Info("Warming cohort summary cache")

	for _, window := range Windows() {
		if _, err := s.computeSummary(ctx, window); err != nil {
			slog.Error("Failed to warm cohort summary", "window", window, "error", err)
		}
	}
}

// StartAutoRefresh recomputes all windows on a fixed interval until the
// context is cancelled
func (s *Service) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				slog.Debug("Auto-refreshing cohort summaries")
				s.WarmCache(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// InvalidateCache drops all cached summaries, forcing recomputation on the
// next read. Called after bulk deletes such as privacy purges.
func (s *Service) InvalidateCache() {
	s.cache.InvalidateAll()
}

// GetCacheStats returns summary cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}

// Close releases the summary cache
func (s *Service) Close() {
	s.cache.Close()
}

// windowSince maps a window name to its inclusive lower bound. The
// unbounded window returns the zero time, which matches every stored row.
func windowSince(window string, now time.Time) (time.Time, error) {
	switch window {
	case Window24h:
		return now.Add(-24 * time.Hour), nil
	case Window7d:
		return now.AddDate(0, 0, -7), nil
	case Window30d:
		return now.AddDate(0, 0, -30), nil
	case WindowAll:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownWindow, window)
	}
}

// windowTauDays is the decay time constant per window. Samples at the far
// edge of a bounded window weigh about a third of fresh ones; the unbounded
// window decays on a 30 day constant so old history fades out.
func windowTauDays(window string) float64 {
	switch window {
	case Window24h:
		return 1
	case Window7d:
		return 7
	default:
		return 30
	}
}

// weightedAverage is the decay-weighted mean of the samples, weighting each
// score by its age
func weightedAverage(samples []database.ScoreSample, tauDays float64, now time.Time) float64 {
	var num, den float64
	for _, sample := range samples {
		age := now.Sub(sample.CreatedAt).Hours() / 24
		w := analysis.DecayWeight(age, tauDays)
		num += w * sample.Score
		den += w
	}

	if den == 0 {
		return 0
	}
	return num / den
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
