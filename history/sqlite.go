package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"voiceguard/models"
	"voiceguard/utils"
)

// DefaultSQLitePath is used when no path is configured.
const DefaultSQLitePath = "db/voiceguard.sqlite3"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	if dataSourceName == "" {
		dataSourceName = DefaultSQLitePath
	}

	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Busy timeout in milliseconds
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	createAnalysesTable := `
    CREATE TABLE IF NOT EXISTS analyses (
        id TEXT PRIMARY KEY,
        timestamp DATETIME NOT NULL,
        file_name TEXT NOT NULL DEFAULT '',
        label INTEGER NOT NULL,
        verdict TEXT NOT NULL,
        probability REAL NOT NULL,
        confidence REAL NOT NULL,
        frames INTEGER NOT NULL DEFAULT 0,
        duration_sec REAL NOT NULL DEFAULT 0,
        latency_ms REAL NOT NULL DEFAULT 0,
        source TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
    `

	if _, err := db.Exec(createAnalysesTable); err != nil {
		return fmt.Errorf("error creating analyses table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	prepare(a)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (
			id, timestamp, file_name, label, verdict, probability,
			confidence, frames, duration_sec, latency_ms, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Timestamp.UTC(),
		a.FileName,
		int(a.Label),
		a.Verdict,
		a.Probability,
		a.Confidence,
		a.Frames,
		a.Duration,
		a.LatencyMs,
		a.Source,
	)
	if err != nil {
		return fmt.Errorf("error storing analysis: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, file_name, label, verdict, probability,
		       confidence, frames, duration_sec, latency_ms, source
		FROM analyses
		ORDER BY timestamp DESC
		LIMIT ?
	`, normLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %w", err)
	}
	defer rows.Close()

	analyses := []models.Analysis{}
	for rows.Next() {
		var a models.Analysis
		var label int
		var ts time.Time
		err := rows.Scan(
			&a.ID,
			&ts,
			&a.FileName,
			&label,
			&a.Verdict,
			&a.Probability,
			&a.Confidence,
			&a.Frames,
			&a.Duration,
			&a.LatencyMs,
			&a.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning analysis: %w", err)
		}
		a.Label = models.Label(label)
		a.Timestamp = ts.UTC()
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading analyses: %w", err)
	}
	return analyses, nil
}
