package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding export jobs, pending confirmations,
// dedupe keys, and note outcomes.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "clipdock.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors. This is
	// also what serializes mutations: every collection write goes through one
	// connection, so concurrent callers cannot interleave partial updates.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// --- Export jobs ---

const jobColumns = "id, bundle_id, notebook_ref, dedupe_key, status, attempts, max_attempts, last_error, created_at, last_attempt_at, next_attempt_at"

// CreateJob appends a new export job. The caller fills every field except
// LastError and LastAttemptAt, which start empty.
func (s *Store) CreateJob(j ExportJob) error {
	_, err := s.db.Exec(`
		INSERT INTO export_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.BundleID, j.NotebookRef, j.DedupeKey, j.Status, j.Attempts, j.MaxAttempts,
		nullIfEmpty(j.LastError), formatTime(j.CreatedAt), nullTime(j.LastAttemptAt), formatTime(j.NextAttemptAt),
	)
	return err
}

// UpdateJob overwrites every mutable field of an existing job.
func (s *Store) UpdateJob(j ExportJob) error {
	res, err := s.db.Exec(`
		UPDATE export_jobs
		SET status = ?, attempts = ?, max_attempts = ?, last_error = ?, last_attempt_at = ?, next_attempt_at = ?
		WHERE id = ?`,
		j.Status, j.Attempts, j.MaxAttempts,
		nullIfEmpty(j.LastError), nullTime(j.LastAttemptAt), formatTime(j.NextAttemptAt), j.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// GetJob retrieves a single job by ID.
func (s *Store) GetJob(id string) (ExportJob, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return ExportJob{}, ErrNotFound
	}
	return j, err
}

// ListJobs returns all jobs ordered newest first.
func (s *Store) ListJobs() ([]ExportJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM export_jobs ORDER BY created_at DESC, id DESC`)
}

// RequeueFailedDue moves failed (non-terminal) jobs whose backoff has elapsed
// back to queued, and returns how many were moved.
func (s *Store) RequeueFailedDue(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE export_jobs SET status = ? WHERE status = ? AND next_attempt_at <= ?`,
		StatusQueued, StatusFailed, formatTime(now),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DueQueuedJobs returns queued jobs whose next_attempt_at has elapsed, oldest first.
func (s *Store) DueQueuedJobs(now time.Time) ([]ExportJob, error) {
	return s.queryJobs(`
		SELECT `+jobColumns+` FROM export_jobs
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC`,
		StatusQueued, formatTime(now),
	)
}

// DeleteJob removes a job outright.
func (s *Store) DeleteJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM export_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteJobsByStatus bulk-removes jobs in any of the given statuses.
func (s *Store) DeleteJobsByStatus(statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat(",?", len(statuses)-1)
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	res, err := s.db.Exec(`DELETE FROM export_jobs WHERE status IN (?`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteTerminalJobsBefore prunes completed and max_retries jobs created
// before the cutoff.
func (s *Store) DeleteTerminalJobsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM export_jobs WHERE status IN (?, ?) AND created_at < ?`,
		StatusCompleted, StatusMaxRetries, formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountJobsByStatus returns a status -> count map over all jobs.
func (s *Store) CountJobsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM export_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (ExportJob, error) {
	var j ExportJob
	var lastError, lastAttemptAt sql.NullString
	var createdAt, nextAttemptAt string
	err := row.Scan(
		&j.ID, &j.BundleID, &j.NotebookRef, &j.DedupeKey, &j.Status, &j.Attempts, &j.MaxAttempts,
		&lastError, &createdAt, &lastAttemptAt, &nextAttemptAt,
	)
	if err != nil {
		return ExportJob{}, err
	}
	j.LastError = lastError.String
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return ExportJob{}, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if lastAttemptAt.Valid {
		if j.LastAttemptAt, err = parseTime(lastAttemptAt.String); err != nil {
			return ExportJob{}, fmt.Errorf("parsing last_attempt_at for job %s: %w", j.ID, err)
		}
	}
	if j.NextAttemptAt, err = parseTime(nextAttemptAt); err != nil {
		return ExportJob{}, fmt.Errorf("parsing next_attempt_at for job %s: %w", j.ID, err)
	}
	return j, nil
}

func (s *Store) queryJobs(query string, args ...any) ([]ExportJob, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// --- Dedupe keys ---

// HasDedupeKey reports whether the fingerprint has been marked.
func (s *Store) HasDedupeKey(key string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM dedupe_keys WHERE key = ?`, key).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkDedupeKey records the fingerprint. Marking an already-marked key is a no-op.
func (s *Store) MarkDedupeKey(key string, at time.Time) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO dedupe_keys (key, marked_at) VALUES (?, ?)`,
		key, formatTime(at))
	return err
}

// --- Pending confirmations ---

// PutPending stores a pending confirmation entry keyed by nonce.
func (s *Store) PutPending(p PendingJob) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_jobs (nonce, job_id, payload_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Nonce, p.JobID, p.PayloadJSON, formatTime(p.CreatedAt), formatTime(p.ExpiresAt),
	)
	return err
}

// PeekPending reads a pending entry without consuming it.
func (s *Store) PeekPending(nonce string) (PendingJob, error) {
	row := s.db.QueryRow(`
		SELECT nonce, job_id, payload_json, created_at, expires_at
		FROM pending_jobs WHERE nonce = ?`, nonce)
	p, err := scanPending(row)
	if err == sql.ErrNoRows {
		return PendingJob{}, ErrNotFound
	}
	return p, err
}

// TakePending removes and returns a pending entry. A second take of the same
// nonce returns ErrNotFound.
func (s *Store) TakePending(nonce string) (PendingJob, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return PendingJob{}, fmt.Errorf("beginning take transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT nonce, job_id, payload_json, created_at, expires_at
		FROM pending_jobs WHERE nonce = ?`, nonce)
	p, err := scanPending(row)
	if err == sql.ErrNoRows {
		return PendingJob{}, ErrNotFound
	}
	if err != nil {
		return PendingJob{}, err
	}

	if _, err := tx.Exec(`DELETE FROM pending_jobs WHERE nonce = ?`, nonce); err != nil {
		return PendingJob{}, err
	}
	if err := tx.Commit(); err != nil {
		return PendingJob{}, fmt.Errorf("committing take: %w", err)
	}
	return p, nil
}

// DeleteExpiredPending drops entries whose TTL elapsed strictly before now,
// matching the lazy expiry check on take.
func (s *Store) DeleteExpiredPending(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM pending_jobs WHERE expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanPending(row rowScanner) (PendingJob, error) {
	var p PendingJob
	var createdAt, expiresAt string
	if err := row.Scan(&p.Nonce, &p.JobID, &p.PayloadJSON, &createdAt, &expiresAt); err != nil {
		return PendingJob{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return PendingJob{}, fmt.Errorf("parsing created_at for pending %s: %w", p.Nonce, err)
	}
	if p.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return PendingJob{}, fmt.Errorf("parsing expires_at for pending %s: %w", p.Nonce, err)
	}
	return p, nil
}

// --- Note outcomes ---

// SetNoteOutcome upserts the export outcome persisted onto a note.
func (s *Store) SetNoteOutcome(o NoteOutcome) error {
	_, err := s.db.Exec(`
		INSERT INTO note_outcomes (note_id, exported, job_id, reason, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			exported = excluded.exported,
			job_id = excluded.job_id,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		o.NoteID, boolToInt(o.Exported), nullIfEmpty(o.JobID), nullIfEmpty(o.Reason), formatTime(o.UpdatedAt),
	)
	return err
}

// GetNoteOutcome retrieves the outcome for a note.
func (s *Store) GetNoteOutcome(noteID string) (NoteOutcome, error) {
	var o NoteOutcome
	var exported int
	var jobID, reason sql.NullString
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT note_id, exported, job_id, reason, updated_at
		FROM note_outcomes WHERE note_id = ?`, noteID,
	).Scan(&o.NoteID, &exported, &jobID, &reason, &updatedAt)
	if err == sql.ErrNoRows {
		return NoteOutcome{}, ErrNotFound
	}
	if err != nil {
		return NoteOutcome{}, err
	}
	o.Exported = exported != 0
	o.JobID = jobID.String
	o.Reason = reason.String
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return NoteOutcome{}, fmt.Errorf("parsing updated_at for note %s: %w", noteID, err)
	}
	return o, nil
}

// --- helpers ---

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
