package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/mymindmirror/mindmirror/internal/types"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed journal entry database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const entryColumns = `id, owner_id, entry_date, created_at, updated_at, ciphertext,
	mood_score, emotions, core_concerns, summary, growth_tips, key_phrases,
	cluster_id, analysis_status`

// CreateEntry persists a new record, assigning id and timestamps when unset.
func (s *SQLiteStore) CreateEntry(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.AnalysisStatus == "" {
		rec.AnalysisStatus = types.AnalysisPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.OwnerID, rec.EntryDate.Format(time.DateOnly),
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
		rec.Ciphertext, rec.MoodScore, rec.Emotions, rec.CoreConcerns,
		rec.Summary, rec.GrowthTips, rec.KeyPhrases, rec.ClusterID,
		string(rec.AnalysisStatus),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// GetEntry returns a single record by id.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM journal_entries WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateEntry rewrites ciphertext, analysis fields, and updated_at for one
// record in a single statement, so a partial write is never observable.
func (s *SQLiteStore) UpdateEntry(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE journal_entries
		SET entry_date = ?, updated_at = ?, ciphertext = ?, mood_score = ?,
			emotions = ?, core_concerns = ?, summary = ?, growth_tips = ?,
			key_phrases = ?, analysis_status = ?
		WHERE id = ?
	`,
		rec.EntryDate.Format(time.DateOnly), rec.UpdatedAt.Format(time.RFC3339),
		rec.Ciphertext, rec.MoodScore, rec.Emotions, rec.CoreConcerns,
		rec.Summary, rec.GrowthTips, rec.KeyPhrases,
		string(rec.AnalysisStatus), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntry permanently removes a record. No soft delete: the ciphertext
// is gone.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns an owner's entries within an entry-date range, newest
// creation first.
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string, start, end *time.Time) ([]Record, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE owner_id = ?`
	args := []any{ownerID}

	if start != nil {
		query += ` AND entry_date >= ?`
		args = append(args, start.Format(time.DateOnly))
	}
	if end != nil {
		query += ` AND entry_date <= ?`
		args = append(args, end.Format(time.DateOnly))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	return s.queryRecords(ctx, query, args...)
}

// CorpusByOwner returns every entry of an owner in canonical order.
func (s *SQLiteStore) CorpusByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+entryColumns+` FROM journal_entries
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`, ownerID)
}

// ListByMoodRange returns an owner's entries whose mood score falls inside
// [min, max], newest first. Entries without a score are excluded.
func (s *SQLiteStore) ListByMoodRange(ctx context.Context, ownerID string, min, max float64) ([]Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+entryColumns+` FROM journal_entries
		WHERE owner_id = ? AND mood_score IS NOT NULL AND mood_score >= ? AND mood_score <= ?
		ORDER BY created_at DESC, id DESC
	`, ownerID, min, max)
}

// AssignClusters writes every cluster label in one transaction. If any
// referenced entry is missing the whole batch rolls back.
func (s *SQLiteStore) AssignClusters(ctx context.Context, assignments []types.EntryAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE journal_entries SET cluster_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		res, err := stmt.ExecContext(ctx, a.ClusterID, a.EntryID)
		if err != nil {
			return fmt.Errorf("assign cluster %d to %s: %w", a.ClusterID, a.EntryID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrMissingAssignment, a.EntryID)
		}
	}

	return tx.Commit()
}

// SetAnalysis updates AI-derived fields and the analysis status. Nil fields
// write NULL. cluster_id is deliberately untouched: only reconciliation
// mutates it.
func (s *SQLiteStore) SetAnalysis(ctx context.Context, id string, fields AnalysisFields, status types.AnalysisStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE journal_entries
		SET mood_score = ?, emotions = ?, core_concerns = ?, summary = ?,
			growth_tips = ?, key_phrases = ?, analysis_status = ?, updated_at = ?
		WHERE id = ?
	`,
		fields.MoodScore, fields.Emotions, fields.CoreConcerns, fields.Summary,
		fields.GrowthTips, fields.KeyPhrases, string(status),
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("set analysis: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats returns aggregate store statistics.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(CASE WHEN analysis_status = ? THEN 1 END)
		FROM journal_entries
	`, string(types.AnalysisPending)).Scan(&stats.EntryCount, &stats.PendingAnalysis)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanRecord scans a row into a Record, parsing timestamps and nullable
// columns.
func scanRecord(scanner interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var entryDate, createdAt, updatedAt, status string
	var moodScore sql.NullFloat64
	var emotions, concerns, summary, tips, phrases sql.NullString
	var clusterID sql.NullInt64

	err := scanner.Scan(
		&rec.ID,
		&rec.OwnerID,
		&entryDate,
		&createdAt,
		&updatedAt,
		&rec.Ciphertext,
		&moodScore,
		&emotions,
		&concerns,
		&summary,
		&tips,
		&phrases,
		&clusterID,
		&status,
	)
	if err != nil {
		return nil, err
	}

	// A malformed timestamp would otherwise scan as the zero time and
	// silently corrupt the canonical ordering.
	if rec.EntryDate, err = time.Parse(time.DateOnly, entryDate); err != nil {
		return nil, fmt.Errorf("parse entry_date of %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", rec.ID, err)
	}

	if moodScore.Valid {
		rec.MoodScore = &moodScore.Float64
	}
	rec.Emotions = nullableString(emotions)
	rec.CoreConcerns = nullableString(concerns)
	rec.Summary = nullableString(summary)
	rec.GrowthTips = nullableString(tips)
	rec.KeyPhrases = nullableString(phrases)
	if clusterID.Valid {
		v := int(clusterID.Int64)
		rec.ClusterID = &v
	}
	rec.AnalysisStatus = types.AnalysisStatus(status)

	return &rec, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
