package database

import (
	"time"

	"github.com/google/uuid"
)

// PredictionRecord is one stored risk assessment. Students appear only
// as their anonymized hash, never as the raw platform identifier.
type PredictionRecord struct {
	ID          string    `json:"id" db:"id"`
	StudentHash string    `json:"-" db:"student_hash"`
	RiskScore   float64   `json:"risk_score" db:"risk_score"`
	RiskLevel   string    `json:"risk_level" db:"risk_level"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Coverage    float64   `json:"coverage" db:"coverage"`
	Breakdown   string    `json:"breakdown,omitempty" db:"breakdown"`
	Enriched    bool      `json:"enriched" db:"enriched"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RequestLog is an audit entry for a prediction endpoint request
type RequestLog struct {
	ID          string    `json:"id" db:"id"`
	StudentHash string    `json:"-" db:"student_hash"`
	IPAddress   string    `json:"-" db:"ip_address"`
	Endpoint    string    `json:"endpoint" db:"endpoint"`
	Method      string    `json:"method" db:"method"`
	UserAgent   string    `json:"-" db:"user_agent"`
	StatusCode  int       `json:"status_code" db:"status_code"`
	DurationMs  int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ScoreSample is a single risk score with its timestamp, the unit the
// cohort aggregates are computed from
type ScoreSample struct {
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPredictionRecord creates a prediction record with a generated ID
func NewPredictionRecord(studentHash string, riskScore float64, riskLevel string, confidence, coverage float64, breakdown string, enriched bool) *PredictionRecord {
	return &PredictionRecord{
		ID:          uuid.New().String(),
		StudentHash: studentHash,
		RiskScore:   riskScore,
		RiskLevel:   riskLevel,
		Confidence:  confidence,
		Coverage:    coverage,
		Breakdown:   breakdown,
		Enriched:    enriched,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewRequestLog creates a request log entry with a generated ID
func NewRequestLog(studentHash, ipAddress, endpoint, method, userAgent string, statusCode int, duration time.Duration) *RequestLog {
	return &RequestLog{
		ID:          uuid.New().String(),
		StudentHash: studentHash,
		IPAddress:   ipAddress,
		Endpoint:    endpoint,
		Method:      method,
		UserAgent:   userAgent,
		StatusCode:  statusCode,
		DurationMs:  duration.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
}
