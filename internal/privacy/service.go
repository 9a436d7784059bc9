package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusiq/ml-analytics/internal/database"
)

// DefaultRetentionDays is how long stored predictions and request logs
// are kept before the cleanup loop removes them
const DefaultRetentionDays = 365

// Service handles data anonymization and privacy compliance. Student
// identifiers never reach the database raw, only as SHA-256 hashes.
type Service struct {
	repo          *database.Repository
	retentionDays int
}

// NewService creates a new privacy service
func NewService(repo *database.Repository, retentionDays int) *Service {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
	}
}

// HashStudentID returns the anonymized form of a student identifier
func (s *Service) HashStudentID(studentID string) string {
	hash := sha256.Sum256([]byte(studentID))
	return hex.EncodeToString(hash[:])
}

// HashIP anonymizes a client address before it is logged or stored
func (s *Service) HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:])
}

// ShortHash returns a log-safe prefix of an anonymized identifier
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8] + "..."
}

// DeleteStudentData removes all stored rows for a student and returns
// the number of rows deleted
func (s *Service) DeleteStudentData(ctx context.Context, studentID string) (int64, error) {
	studentHash := s.HashStudentID(studentID)

	slog.Info("Initiating student data deletion", "student_hash", ShortHash(studentHash))

	removed, err := s.repo.PurgeStudent(ctx, studentHash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete student data: %w", err)
	}

	slog.Info("Student data deletion completed",
		"student_hash", ShortHash(studentHash),
		"rows_deleted", removed)

	return removed, nil
}

// RetentionPolicy describes what is stored, for how long, and how it
// is anonymized
func (s *Service) RetentionPolicy() map[string]interface{} {
	return map[string]interface{}{
		"prediction_retention_days":  s.retentionDays,
		"request_log_retention_days": s.retentionDays,
		"cache_ttl_hours":            24,
		"anonymization_method":       "SHA-256",
		"raw_identifiers_stored":     false,
		"deletion_endpoint":          "/api/ml/student/{student_id}/data",
		"data_deletion_response":     "immediate",
	}
}

// RunRetentionCleanup deletes rows older than the retention window and
// returns the number of rows removed
func (s *Service) RunRetentionCleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention cleanup failed: %w", err)
	}

	if removed > 0 {
		slog.Info("Retention cleanup completed", "cutoff", cutoff.Format(time.RFC3339), "rows_deleted", removed)
	}

	return removed, nil
}

// StartRetentionLoop runs retention cleanup on the given interval until
// the context is cancelled
func (s *Service) StartRetentionLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunRetentionCleanup(ctx); err != nil {
					slog.Warn("Scheduled retention cleanup failed", "error", err.Error())
				}
			}
		}
	}()
}
