package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SavePrediction persists one prediction record
func (r *Repository) SavePrediction(ctx context.Context, rec *PredictionRecord) error {
	stmt, err := r.db.GetPreparedStatement("insert_prediction")
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		rec.ID, rec.StudentHash, rec.RiskScore, rec.RiskLevel, rec.Confidence,
		rec.Coverage, rec.Breakdown, rec.Enriched, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	return nil
}

// LatestPrediction returns the most recent prediction for a student
// hash. Callers can detect absence with errors.Is(err, sql.ErrNoRows).
func (r *Repository) LatestPrediction(ctx context.Context, studentHash string) (*PredictionRecord, error) {
	stmt, err := r.db.GetPreparedStatement("latest_prediction")
	if err != nil {
		return nil, err
	}

	rec, err := scanPrediction(stmt.QueryRowContext(ctx, studentHash))
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prediction: %w", err)
	}

	return rec, nil
}

// ListPredictions returns up to limit predictions for a student hash,
// newest first
func (r *Repository) ListPredictions(ctx context.Context, studentHash string, limit int) ([]PredictionRecord, error) {
	stmt, err := r.db.GetPreparedStatement("list_predictions")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, studentHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var records []PredictionRecord
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}

	return records, nil
}

// RecentScores returns risk scores recorded since the given time,
// newest first, capped at limit
func (r *Repository) RecentScores(ctx context.Context, since time.Time, limit int) ([]ScoreSample, error) {
	stmt, err := r.db.GetPreparedStatement("recent_scores")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scores: %w", err)
	}
	defer rows.Close()

	var samples []ScoreSample
	for rows.Next() {
		var s ScoreSample
		if err := rows.Scan(&s.Score, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score samples: %w", err)
	}

	return samples, nil
}

// LevelCounts returns the number of stored predictions per risk level
// since the given time
func (r *Repository) LevelCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT risk_level, COUNT(*) FROM predictions
		WHERE created_at >= ?
		GROUP BY risk_level
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count levels: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		counts[level] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate level counts: %w", err)
	}

	return counts, nil
}

// AverageRiskScore returns the mean stored risk score since the given time
func (r *Repository) AverageRiskScore(ctx context.Context, since time.Time) (float64, error) {
	var avg float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(risk_score), 0) FROM predictions WHERE created_at >= ?
	`, since).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute average risk score: %w", err)
	}

	return avg, nil
}

// CountPredictions returns the total number of stored predictions
func (r *Repository) CountPredictions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}

	return count, nil
}

// EnrichedCount returns how many predictions stored since the given time
// carry Gemini enrichment
func (r *Repository) EnrichedCount(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM predictions WHERE created_at >= ? AND enriched = 1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enriched predictions: %w", err)
	}

	return count, nil
}

// LogRequest writes one audit entry
func (r *Repository) LogRequest(ctx context.Context, entry *RequestLog) error {
	stmt, err := r.db.GetPreparedStatement("insert_request_log")
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		entry.ID, entry.StudentHash, entry.IPAddress, entry.Endpoint, entry.Method,
		entry.UserAgent, entry.StatusCode, entry.DurationMs, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log request: %w", err)
	}

	return nil
}

// PurgeStudent deletes all stored rows for a student hash and returns
// the number of rows removed
func (r *Repository) PurgeStudent(ctx context.Context, studentHash string) (int64, error) {
	var total int64

	res, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE student_hash = ?`, studentHash)
	if err != nil {
		return 0, fmt.Errorf("failed to purge predictions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.ExecContext(ctx, `DELETE FROM request_logs WHERE student_hash = ?`, studentHash)
	if err != nil {
		return total, fmt.Errorf("failed to purge request logs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// DeleteOlderThan removes predictions and request logs created before
// the cutoff, returning the number of rows removed
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	res, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire predictions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.ExecContext(ctx, `DELETE FROM request_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("failed to expire request logs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*PredictionRecord, error) {
	var rec PredictionRecord
	var breakdown sql.NullString

	err := row.Scan(&rec.ID, &rec.StudentHash, &rec.RiskScore, &rec.RiskLevel,
		&rec.Confidence, &rec.Coverage, &breakdown, &rec.Enriched, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.Breakdown = breakdown.String
	return &rec, nil
}
