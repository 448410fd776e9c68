package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mescon/Scanarr/internal/db"
	"github.com/mescon/Scanarr/internal/domain"
)

// Store is the relational result sink: one summary row per scan plus its
// verdict rows, queryable afterwards.
type Store struct {
	conn *sql.DB
}

// NewStore wraps an opened database connection and ensures the schema.
func NewStore(conn *sql.DB) (*Store, error) {
	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_summaries (
			id TEXT PRIMARY KEY,
			directory TEXT NOT NULL,
			mode TEXT NOT NULL,
			total_files INTEGER NOT NULL DEFAULT 0,
			processed INTEGER NOT NULL DEFAULT 0,
			corrupt INTEGER NOT NULL DEFAULT 0,
			healthy INTEGER NOT NULL DEFAULT 0,
			rejected INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			duration_seconds REAL NOT NULL DEFAULT 0,
			complete BOOLEAN NOT NULL DEFAULT 0,
			resumed BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_directory ON scan_summaries(directory)`,
		`CREATE TABLE IF NOT EXISTS scan_verdicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			summary_id TEXT NOT NULL REFERENCES scan_summaries(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			filename TEXT NOT NULL,
			status TEXT NOT NULL,
			is_corrupt BOOLEAN NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			needs_deeper_check BOOLEAN NOT NULL DEFAULT 0,
			depth TEXT NOT NULL DEFAULT '',
			issues JSON,
			message TEXT,
			file_size INTEGER NOT NULL DEFAULT 0,
			elapsed_seconds REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_summary ON scan_verdicts(summary_id)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_corrupt ON scan_verdicts(is_corrupt)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize result store schema: %w", err)
		}
	}
	return nil
}

// CreateSummary inserts the summary row at scan start, marked incomplete.
// An interrupted run leaves this row behind, which is what
// LatestIncompleteSummary cross-checks during resume.
func (s *Store) CreateSummary(sum *domain.ScanSummary) error {
	_, err := db.ExecWithRetry(s.conn, `
		INSERT INTO scan_summaries (id, directory, mode, total_files, started_at, complete, resumed)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, sum.ID, sum.Directory, string(sum.Mode), sum.TotalFiles, sum.StartedAt.UTC(), sum.Resumed)
	if err != nil {
		return fmt.Errorf("failed to create scan summary: %w", err)
	}
	return nil
}

// RecordVerdict appends one verdict row under the summary.
func (s *Store) RecordVerdict(summaryID string, v *domain.Verdict, fileSize int64) error {
	issuesJSON, err := json.Marshal(v.Issues)
	if err != nil {
		issuesJSON = []byte("[]")
	}
	_, err = db.ExecWithRetry(s.conn, `
		INSERT INTO scan_verdicts
			(summary_id, path, filename, status, is_corrupt, confidence,
			 needs_deeper_check, depth, issues, message, file_size,
			 elapsed_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summaryID, v.Path, filenameOf(v.Path), v.Status(), v.IsCorrupt, v.Confidence,
		v.NeedsDeeperCheck, string(v.Depth), string(issuesJSON), v.Message, fileSize,
		v.Elapsed.Seconds(), v.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record verdict: %w", err)
	}
	return nil
}

// RecordRejection appends a rejected-file row under the summary.
func (s *Store) RecordRejection(summaryID string, r *domain.Rejection, fileSize int64) error {
	_, err := db.ExecWithRetry(s.conn, `
		INSERT INTO scan_verdicts
			(summary_id, path, filename, status, message, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, summaryID, r.Path, filenameOf(r.Path), domain.StatusRejected, r.Reason, fileSize, r.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}

// FinalizeSummary writes the final counters and completion flag in one
// transaction so a summary is never half-updated.
func (s *Store) FinalizeSummary(sum *domain.ScanSummary) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin summary transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
		UPDATE scan_summaries
		SET total_files = ?, processed = ?, corrupt = ?, healthy = ?, rejected = ?,
		    completed_at = ?, duration_seconds = ?, complete = ?
		WHERE id = ?
	`, sum.TotalFiles, sum.Processed, sum.Corrupt, sum.Healthy, sum.Rejected,
		sum.CompletedAt.UTC(), sum.Duration.Seconds(), sum.Complete, sum.ID)
	if err != nil {
		return fmt.Errorf("failed to finalize scan summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan summary: %w", err)
	}
	tx = nil
	return nil
}

// SummariesByDirectory lists summaries for a directory, newest first.
func (s *Store) SummariesByDirectory(directory string, limit int) ([]domain.ScanSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryWithRetry(s.conn, `
		SELECT id, directory, mode, total_files, processed, corrupt, healthy, rejected,
		       started_at, COALESCE(completed_at, started_at), duration_seconds, complete, resumed
		FROM scan_summaries
		WHERE directory = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, directory, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// LatestIncompleteSummary returns the newest incomplete summary for a
// directory, or nil when every recorded scan finished.
func (s *Store) LatestIncompleteSummary(directory string) (*domain.ScanSummary, error) {
	rows, err := db.QueryWithRetry(s.conn, `
		SELECT id, directory, mode, total_files, processed, corrupt, healthy, rejected,
		       started_at, COALESCE(completed_at, started_at), duration_seconds, complete, resumed
		FROM scan_summaries
		WHERE directory = ? AND complete = 0
		ORDER BY started_at DESC
		LIMIT 1
	`, directory)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomplete summary: %w", err)
	}
	defer rows.Close()

	sums, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return nil, nil
	}
	return &sums[0], nil
}

// VerdictRow is the queryable shape of one stored verdict.
type VerdictRow struct {
	SummaryID  string
	Path       string
	Filename   string
	Status     string
	IsCorrupt  bool
	Confidence float64
	Depth      string
	Message    string
	FileSize   int64
	Elapsed    float64
	CreatedAt  time.Time
}

// VerdictsBySummary lists verdicts under a summary. Pass corruptOnly to
// restrict to corrupt files.
func (s *Store) VerdictsBySummary(summaryID string, corruptOnly bool) ([]VerdictRow, error) {
	query := `
		SELECT summary_id, path, filename, status, is_corrupt, confidence, depth,
		       COALESCE(message, ''), file_size, elapsed_seconds, created_at
		FROM scan_verdicts
		WHERE summary_id = ?`
	args := []interface{}{summaryID}
	if corruptOnly {
		query += ` AND is_corrupt = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryWithRetry(s.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var out []VerdictRow
	for rows.Next() {
		var r VerdictRow
		if err := rows.Scan(&r.SummaryID, &r.Path, &r.Filename, &r.Status, &r.IsCorrupt,
			&r.Confidence, &r.Depth, &r.Message, &r.FileSize, &r.Elapsed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan verdict row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Aggregate holds directory-level roll-ups across all recorded scans.
type Aggregate struct {
	Scans        int
	FilesScanned int
	CorruptFiles int
	CorruptBytes int64
	TotalBytes   int64
}

// AggregateByDirectory computes counts and byte totals for a directory.
func (s *Store) AggregateByDirectory(directory string) (*Aggregate, error) {
	var agg Aggregate
	err := s.conn.QueryRow(`
		SELECT
			COUNT(DISTINCT sv.summary_id),
			COUNT(*),
			COALESCE(SUM(CASE WHEN sv.is_corrupt THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sv.is_corrupt THEN sv.file_size ELSE 0 END), 0),
			COALESCE(SUM(sv.file_size), 0)
		FROM scan_verdicts sv
		JOIN scan_summaries ss ON ss.id = sv.summary_id
		WHERE ss.directory = ?
	`, directory).Scan(&agg.Scans, &agg.FilesScanned, &agg.CorruptFiles, &agg.CorruptBytes, &agg.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate directory stats: %w", err)
	}
	return &agg, nil
}

func scanSummaries(rows *sql.Rows) ([]domain.ScanSummary, error) {
	var out []domain.ScanSummary
	for rows.Next() {
		var sum domain.ScanSummary
		var mode string
		var durationSeconds float64
		if err := rows.Scan(&sum.ID, &sum.Directory, &mode, &sum.TotalFiles, &sum.Processed,
			&sum.Corrupt, &sum.Healthy, &sum.Rejected, &sum.StartedAt, &sum.CompletedAt,
			&durationSeconds, &sum.Complete, &sum.Resumed); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		sum.Mode = domain.ScanMode(mode)
		sum.Duration = time.Duration(durationSeconds * float64(time.Second))
		out = append(out, sum)
	}
	return out, rows.Err()
}

func filenameOf(path string) string {
	return filepath.Base(path)
}
