package types

import (
	"time"

	"github.com/campusiq/ml-analytics/internal/analysis"
)

// PredictionResponse is the wire envelope for a computed prediction. The
// embedded prediction fields flatten into the top-level JSON object.
type PredictionResponse struct {
	StudentID string `json:"student_id"`
	analysis.Prediction
	GeminiInsights *string   `json:"gemini_insights"`
	FromCache      bool      `json:"from_cache"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// BatchStudentRecord pairs a student id with its feature payload.
type BatchStudentRecord struct {
	StudentID string                   `json:"student_id" binding:"required"`
	Features  analysis.StudentFeatures `json:"features"`
}

// BatchPredictResponse wraps the per-record results of a batch request.
type BatchPredictResponse struct {
	Predictions []PredictionResponse `json:"predictions"`
	Count       int                  `json:"count"`
	ProcessedAt time.Time            `json:"processed_at"`
}
