package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ml_analytics.db")

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// Prediction history, keyed by the anonymized student hash
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			student_hash TEXT NOT NULL,
			risk_score REAL NOT NULL,
			risk_level TEXT NOT NULL,
			confidence REAL NOT NULL,
			coverage REAL NOT NULL,
			breakdown TEXT, -- JSON of per-category performance scores
			enriched BOOLEAN DEFAULT FALSE,
			created_at DATETIME NOT NULL
		)`,

		// Request audit trail for prediction endpoints
		`CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			student_hash TEXT,
			ip_address TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			user_agent TEXT,
			status_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_predictions_hash ON predictions(student_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_level ON predictions(risk_level)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_hash ON request_logs(student_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_created ON request_logs(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_prediction": `INSERT INTO predictions (
			id, student_hash, risk_score, risk_level, confidence, coverage,
			breakdown, enriched, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_request_log": `INSERT INTO request_logs (
			id, student_hash, ip_address, endpoint, method, user_agent,
			status_code, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"latest_prediction": `SELECT id, student_hash, risk_score, risk_level, confidence,
			coverage, breakdown, enriched, created_at
			FROM predictions WHERE student_hash = ?
			ORDER BY created_at DESC LIMIT 1`,

		"list_predictions": `SELECT id, student_hash, risk_score, risk_level, confidence,
			coverage, breakdown, enriched, created_at
			FROM predictions WHERE student_hash = ?
			ORDER BY created_at DESC LIMIT ?`,

		"recent_scores": `SELECT risk_score, created_at
			FROM predictions WHERE created_at >= ?
			ORDER BY created_at DESC LIMIT ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
