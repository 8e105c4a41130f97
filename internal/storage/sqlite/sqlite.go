// Package sqlite implements the breachmon storage contracts on an
// embedded SQLite database via modernc.org/sqlite.
//
// Design decision: SQLite is the default backend because the database is
// a single file, the driver is CGO-free so cross-compilation stays
// trivial, and WAL mode gives good concurrent read performance for the
// check path. Deployments that need a shared store select the postgres
// backend instead.
//
// Timestamps are stored as Unix epoch seconds rather than DATETIME
// strings. Expiry comparisons are then plain integer comparisons with no
// format ambiguity, which matters because the retention boundary is
// inclusive to the second.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/storage"
)

// dbFileName is the database file created inside the configured directory.
const dbFileName = "breachmon.db"

// Store implements storage.Store on SQLite.
type Store struct {
	db        *sql.DB
	dbPath    string
	prefixLen int
}

// Options configures the SQLite backend.
type Options struct {
	// CreateIfNotExists creates the directory and database file when
	// they do not exist. When false, a missing database is an error.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging. Recommended: the check
	// path is read-heavy and WAL lets readers proceed during ingestion.
	EnableWAL bool
}

// DefaultOptions returns the recommended backend options.
func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Open opens or creates the breachmon database in dbDir. The prefixLen
// is the configured anonymity-set prefix length; it is fixed per
// database because stored k_anonymity_sets keys are prefix-length bound.
func Open(dbDir string, prefixLen int, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; one pooled connection avoids
	// SQLITE_BUSY churn between ingestion and cleanup.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath, prefixLen: prefixLen}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// createTables creates the schema if it does not exist.
func (s *Store) createTables() error {
	schema := `
	-- Append-only hashed breach disclosures. All timestamps are Unix
	-- epoch seconds; breach_date may be NULL when the source gives none.
	CREATE TABLE IF NOT EXISTS breach_records (
		id TEXT PRIMARY KEY,
		breach_hash TEXT NOT NULL,
		data_types TEXT NOT NULL,
		breach_date INTEGER,
		severity_score INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	-- One row per (hash, source): re-polling an unchanged page must not
	-- grow the table. INSERT OR IGNORE below relies on this constraint.
	CREATE UNIQUE INDEX IF NOT EXISTS uq_records_hash_source
		ON breach_records(breach_hash, source_type);
	CREATE INDEX IF NOT EXISTS idx_records_expires ON breach_records(expires_at);

	-- Watched hash prefixes. Never a full credential hash.
	CREATE TABLE IF NOT EXISTS monitoring_targets (
		id TEXT PRIMARY KEY,
		credential_hash_prefix TEXT NOT NULL,
		credential_type TEXT NOT NULL,
		alert_config TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_checked_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_targets_prefix ON monitoring_targets(credential_hash_prefix);

	-- Per-prefix k-anonymity bookkeeping.
	CREATE TABLE IF NOT EXISTS k_anonymity_sets (
		hash_prefix TEXT PRIMARY KEY,
		set_size INTEGER NOT NULL,
		last_updated INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// InsertRecord appends one breach record.
func (s *Store) InsertRecord(ctx context.Context, r *model.BreachRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	dataTypes, err := json.Marshal(r.DataTypes)
	if err != nil {
		return fmt.Errorf("failed to serialize data types: %w", err)
	}

	var breachDate sql.NullInt64
	if r.BreachDate != nil {
		breachDate = sql.NullInt64{Int64: r.BreachDate.Unix(), Valid: true}
	}

	query := `
	INSERT OR IGNORE INTO breach_records
		(id, breach_hash, data_types, breach_date, severity_score, source_type, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		r.ID, r.BreachHash, string(dataTypes), breachDate,
		r.SeverityScore, string(r.SourceType), r.CreatedAt.Unix(), r.ExpiresAt.Unix(),
	)
	if err != nil {
		return unavailable("insert breach record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("insert breach record", err)
	}
	if n == 0 {
		return storage.ErrDuplicateRecord
	}
	return nil
}

// CountDistinctHashes counts distinct non-expired breach hashes under a
// prefix. "Non-expired" means expires_at strictly after now: a record
// expiring exactly now is already gone from every read path.
func (s *Store) CountDistinctHashes(ctx context.Context, prefix string, now time.Time) (int, error) {
	query := `
	SELECT COUNT(DISTINCT breach_hash)
	FROM breach_records
	WHERE breach_hash LIKE ? || '%' AND expires_at > ?
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, prefix, now.Unix()).Scan(&count); err != nil {
		return 0, unavailable("count distinct hashes", err)
	}
	return count, nil
}

// Aggregate computes the set-level statistics for a prefix.
func (s *Store) Aggregate(ctx context.Context, prefix string, now time.Time, severityFloor int) (storage.AggregateStats, error) {
	query := `
	SELECT
		COUNT(DISTINCT breach_hash),
		COUNT(DISTINCT CASE WHEN severity_score >= ? THEN breach_hash END)
	FROM breach_records
	WHERE breach_hash LIKE ? || '%' AND expires_at > ?
	`
	var stats storage.AggregateStats
	err := s.db.QueryRowContext(ctx, query, severityFloor, prefix, now.Unix()).
		Scan(&stats.DistinctHashes, &stats.HighSeverityHashes)
	if err != nil {
		return storage.AggregateStats{}, unavailable("aggregate", err)
	}
	return stats, nil
}

// ListExpired returns up to limit records whose expiry has passed,
// oldest first. The boundary is inclusive: expires_at <= now.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]storage.ExpiredRecord, error) {
	query := `
	SELECT id, substr(breach_hash, 1, ?)
	FROM breach_records
	WHERE expires_at <= ?
	ORDER BY expires_at
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, s.prefixLen, now.Unix(), limit)
	if err != nil {
		return nil, unavailable("list expired", err)
	}
	defer rows.Close()

	var out []storage.ExpiredRecord
	for rows.Next() {
		var r storage.ExpiredRecord
		if err := rows.Scan(&r.ID, &r.HashPrefix); err != nil {
			return nil, unavailable("scan expired record", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list expired", err)
	}
	return out, nil
}

// DeleteRecords removes records by ID.
func (s *Store) DeleteRecords(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM breach_records WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, unavailable("delete records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete records", err)
	}
	return int(n), nil
}

// CountActive counts all non-expired records.
func (s *Store) CountActive(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM breach_records WHERE expires_at > ?", now.Unix()).Scan(&count)
	if err != nil {
		return 0, unavailable("count active", err)
	}
	return count, nil
}

// GetSetSize returns the cached set size for a prefix, 0 if never seen.
func (s *Store) GetSetSize(ctx context.Context, prefix string) (int, error) {
	var size int
	err := s.db.QueryRowContext(ctx,
		"SELECT set_size FROM k_anonymity_sets WHERE hash_prefix = ?", prefix).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get set size", err)
	}
	return size, nil
}

// UpsertSetSize stores a recomputed set size. Last write wins, so two
// concurrent recomputes of the same prefix converge on the later count.
func (s *Store) UpsertSetSize(ctx context.Context, prefix string, size int, updated time.Time) error {
	query := `
	INSERT INTO k_anonymity_sets (hash_prefix, set_size, last_updated)
	VALUES (?, ?, ?)
	ON CONFLICT(hash_prefix) DO UPDATE SET
		set_size = excluded.set_size,
		last_updated = excluded.last_updated
	`
	if _, err := s.db.ExecContext(ctx, query, prefix, size, updated.Unix()); err != nil {
		return unavailable("upsert set size", err)
	}
	return nil
}

// AddTarget stores a new monitoring target.
func (s *Store) AddTarget(ctx context.Context, t *model.MonitoringTarget) error {
	alertConfig, err := json.Marshal(t.AlertConfig)
	if err != nil {
		return fmt.Errorf("failed to serialize alert config: %w", err)
	}

	query := `
	INSERT INTO monitoring_targets (id, credential_hash_prefix, credential_type, alert_config, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.CredentialHashPrefix, string(t.CredentialType), string(alertConfig), t.CreatedAt.Unix())
	if err != nil {
		return unavailable("add target", err)
	}
	return nil
}

// RemoveTarget deletes a target by ID.
func (s *Store) RemoveTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM monitoring_targets WHERE id = ?", id)
	if err != nil {
		return unavailable("remove target", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("remove target", err)
	}
	if n == 0 {
		return storage.ErrTargetNotFound
	}
	return nil
}

// ListTargetsForPrefix returns all targets watching a prefix.
func (s *Store) ListTargetsForPrefix(ctx context.Context, prefix string) ([]model.MonitoringTarget, error) {
	query := `
	SELECT id, credential_hash_prefix, credential_type, alert_config, created_at, last_checked_at
	FROM monitoring_targets
	WHERE credential_hash_prefix = ?
	ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, unavailable("list targets", err)
	}
	defer rows.Close()

	var out []model.MonitoringTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list targets", err)
	}
	return out, nil
}

// TouchTarget sets last_checked_at on a target.
func (s *Store) TouchTarget(ctx context.Context, id string, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE monitoring_targets SET last_checked_at = ? WHERE id = ?", checkedAt.Unix(), id)
	if err != nil {
		return unavailable("touch target", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("touch target", err)
	}
	if n == 0 {
		return storage.ErrTargetNotFound
	}
	return nil
}

// CountTargets counts all registered targets.
func (s *Store) CountTargets(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM monitoring_targets").Scan(&count); err != nil {
		return 0, unavailable("count targets", err)
	}
	return count, nil
}

// DeleteOrphanTargets removes targets whose prefix has no non-expired
// breach coverage and whose last evaluation (or creation, if never
// evaluated) predates the grace cutoff.
func (s *Store) DeleteOrphanTargets(ctx context.Context, now time.Time, graceCutoff time.Time) (int, error) {
	query := `
	DELETE FROM monitoring_targets
	WHERE COALESCE(last_checked_at, created_at) <= ?
	AND NOT EXISTS (
		SELECT 1 FROM breach_records br
		WHERE br.breach_hash LIKE monitoring_targets.credential_hash_prefix || '%'
		AND br.expires_at > ?
	)
	`
	res, err := s.db.ExecContext(ctx, query, graceCutoff.Unix(), now.Unix())
	if err != nil {
		return 0, unavailable("delete orphan targets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete orphan targets", err)
	}
	return int(n), nil
}

// rowScanner covers *sql.Row and *sql.Rows for scanTarget.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTarget reads one monitoring_targets row.
func scanTarget(row rowScanner) (model.MonitoringTarget, error) {
	var (
		t           model.MonitoringTarget
		credType    string
		alertConfig string
		createdAt   int64
		lastChecked sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.CredentialHashPrefix, &credType, &alertConfig, &createdAt, &lastChecked); err != nil {
		return model.MonitoringTarget{}, unavailable("scan target", err)
	}

	t.CredentialType = model.CredentialType(credType)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastChecked.Valid {
		lc := time.Unix(lastChecked.Int64, 0).UTC()
		t.LastCheckedAt = &lc
	}
	if err := json.Unmarshal([]byte(alertConfig), &t.AlertConfig); err != nil {
		return model.MonitoringTarget{}, fmt.Errorf("failed to parse alert config: %w", err)
	}
	return t, nil
}

// unavailable tags a backend failure with storage.ErrStorageUnavailable
// so callers can match the taxonomy while keeping the driver detail.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(storage.ErrStorageUnavailable, err))
}
