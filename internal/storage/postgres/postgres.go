// Package postgres implements the breachmon storage contracts on
// PostgreSQL via the pgx stdlib driver.
//
// This is the networked backend for deployments where several breachmon
// instances or the API layer share one store. Schema management uses
// embedded goose migrations applied at startup, so a fresh database
// needs no manual setup.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/storage"
	"github.com/backgroundcheck/breachmon/internal/storage/postgres/migrations"
)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db        *sql.DB
	prefixLen int
}

// Open connects to the database, verifies connectivity, and applies
// pending migrations. The connection attempt is bounded by ctx so a
// down database fails fast instead of hanging startup; callers treat
// that failure as the signal to fall back to the embedded backend.
func Open(ctx context.Context, dsn string, prefixLen int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("connect", err)
	}

	s := &Store{db: db, prefixLen: prefixLen}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

// migrate applies embedded goose migrations.
func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Files)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
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

	var breachDate sql.NullTime
	if r.BreachDate != nil {
		breachDate = sql.NullTime{Time: *r.BreachDate, Valid: true}
	}

	query := `
	INSERT INTO breach_records
		(id, breach_hash, data_types, breach_date, severity_score, source_type, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (breach_hash, source_type) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		r.ID, r.BreachHash, string(dataTypes), breachDate,
		r.SeverityScore, string(r.SourceType), r.CreatedAt, r.ExpiresAt,
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
// prefix as of now.
func (s *Store) CountDistinctHashes(ctx context.Context, prefix string, now time.Time) (int, error) {
	query := `
	SELECT COUNT(DISTINCT breach_hash)
	FROM breach_records
	WHERE breach_hash LIKE $1 || '%' AND expires_at > $2
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, prefix, now).Scan(&count); err != nil {
		return 0, unavailable("count distinct hashes", err)
	}
	return count, nil
}

// Aggregate computes the set-level statistics for a prefix.
func (s *Store) Aggregate(ctx context.Context, prefix string, now time.Time, severityFloor int) (storage.AggregateStats, error) {
	query := `
	SELECT
		COUNT(DISTINCT breach_hash),
		COUNT(DISTINCT breach_hash) FILTER (WHERE severity_score >= $1)
	FROM breach_records
	WHERE breach_hash LIKE $2 || '%' AND expires_at > $3
	`
	var stats storage.AggregateStats
	err := s.db.QueryRowContext(ctx, query, severityFloor, prefix, now).
		Scan(&stats.DistinctHashes, &stats.HighSeverityHashes)
	if err != nil {
		return storage.AggregateStats{}, unavailable("aggregate", err)
	}
	return stats, nil
}

// ListExpired returns up to limit expired records, oldest first.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]storage.ExpiredRecord, error) {
	query := `
	SELECT id, substring(breach_hash FROM 1 FOR $1)
	FROM breach_records
	WHERE expires_at <= $2
	ORDER BY expires_at
	LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, s.prefixLen, now, limit)
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

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM breach_records WHERE id IN ("+strings.Join(placeholders, ",")+")", args...)
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
		"SELECT COUNT(*) FROM breach_records WHERE expires_at > $1", now).Scan(&count)
	if err != nil {
		return 0, unavailable("count active", err)
	}
	return count, nil
}

// GetSetSize returns the cached set size for a prefix, 0 if never seen.
func (s *Store) GetSetSize(ctx context.Context, prefix string) (int, error) {
	var size int
	err := s.db.QueryRowContext(ctx,
		"SELECT set_size FROM k_anonymity_sets WHERE hash_prefix = $1", prefix).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get set size", err)
	}
	return size, nil
}

// UpsertSetSize stores a recomputed set size, last write wins.
func (s *Store) UpsertSetSize(ctx context.Context, prefix string, size int, updated time.Time) error {
	query := `
	INSERT INTO k_anonymity_sets (hash_prefix, set_size, last_updated)
	VALUES ($1, $2, $3)
	ON CONFLICT (hash_prefix) DO UPDATE SET
		set_size = EXCLUDED.set_size,
		last_updated = EXCLUDED.last_updated
	`
	if _, err := s.db.ExecContext(ctx, query, prefix, size, updated); err != nil {
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
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.CredentialHashPrefix, string(t.CredentialType), string(alertConfig), t.CreatedAt)
	if err != nil {
		return unavailable("add target", err)
	}
	return nil
}

// RemoveTarget deletes a target by ID.
func (s *Store) RemoveTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM monitoring_targets WHERE id = $1", id)
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
	WHERE credential_hash_prefix = $1
	ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, unavailable("list targets", err)
	}
	defer rows.Close()

	var out []model.MonitoringTarget
	for rows.Next() {
		var (
			t           model.MonitoringTarget
			credType    string
			alertConfig string
			lastChecked sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.CredentialHashPrefix, &credType, &alertConfig, &t.CreatedAt, &lastChecked); err != nil {
			return nil, unavailable("scan target", err)
		}
		t.CredentialType = model.CredentialType(credType)
		if lastChecked.Valid {
			lc := lastChecked.Time
			t.LastCheckedAt = &lc
		}
		if err := json.Unmarshal([]byte(alertConfig), &t.AlertConfig); err != nil {
			return nil, fmt.Errorf("failed to parse alert config: %w", err)
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
		"UPDATE monitoring_targets SET last_checked_at = $1 WHERE id = $2", checkedAt, id)
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

// DeleteOrphanTargets removes targets with no breach coverage past the
// grace cutoff.
func (s *Store) DeleteOrphanTargets(ctx context.Context, now time.Time, graceCutoff time.Time) (int, error) {
	query := `
	DELETE FROM monitoring_targets mt
	WHERE COALESCE(mt.last_checked_at, mt.created_at) <= $1
	AND NOT EXISTS (
		SELECT 1 FROM breach_records br
		WHERE br.breach_hash LIKE mt.credential_hash_prefix || '%'
		AND br.expires_at > $2
	)
	`
	res, err := s.db.ExecContext(ctx, query, graceCutoff, now)
	if err != nil {
		return 0, unavailable("delete orphan targets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete orphan targets", err)
	}
	return int(n), nil
}

// unavailable tags a backend failure with storage.ErrStorageUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(storage.ErrStorageUnavailable, err))
}
