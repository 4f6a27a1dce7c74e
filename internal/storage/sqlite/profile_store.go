// Package sqlite implements storage.ProfileStore on an embedded SQLite
// database. It is the default backend and needs no external service.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/scopedb/internal/storage"
)

// Schema defines the profiles table. Applied on every open; CREATE IF NOT
// EXISTS keeps it idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id             TEXT PRIMARY KEY,
    query          TEXT NOT NULL,
    entity_type    TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    confidence     REAL NOT NULL DEFAULT 0,
    signals_json   BLOB,
    sources_json   BLOB,
    events_json    BLOB,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_entity_type ON profiles(entity_type);
CREATE INDEX IF NOT EXISTS idx_profiles_updated_at ON profiles(updated_at DESC);
`

// ProfileStore implements storage.ProfileStore using SQLite.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore opens a SQLite database, configures WAL mode, and creates
// the schema.
func NewProfileStore(dsn string) (*ProfileStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &ProfileStore{db: db}, nil
}

// Save creates or updates a profile record (upsert on ID).
func (s *ProfileStore) Save(ctx context.Context, p *storage.StoredProfile) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	if p.ID == "" {
		return fmt.Errorf("%w: profile ID is required", storage.ErrInvalidInput)
	}
	if p.Query == "" {
		return fmt.Errorf("%w: profile query is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO profiles (
			id, query, entity_type, canonical_name, description, confidence,
			signals_json, sources_json, events_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			query = excluded.query,
			entity_type = excluded.entity_type,
			canonical_name = excluded.canonical_name,
			description = excluded.description,
			confidence = excluded.confidence,
			signals_json = excluded.signals_json,
			sources_json = excluded.sources_json,
			events_json = excluded.events_json,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Query, p.EntityType, p.CanonicalName, p.Description, p.Confidence,
		p.SignalsJSON, p.SourcesJSON, p.EventsJSON, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Get retrieves a profile by its cluster ID.
func (s *ProfileStore) Get(ctx context.Context, id string) (*storage.StoredProfile, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: profile ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, query, entity_type, canonical_name, description, confidence,
		       signals_json, sources_json, events_json, created_at, updated_at
		FROM profiles WHERE id = ?
	`

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// List retrieves stored profiles with pagination, newest first.
func (s *ProfileStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedProfiles, error) {
	opts.Normalize()

	where := ""
	args := []interface{}{}
	if opts.EntityType != "" {
		where = "WHERE entity_type = ?"
		args = append(args, opts.EntityType)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM profiles %s", where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, query, entity_type, canonical_name, description, confidence,
		       signals_json, sources_json, events_json, created_at, updated_at
		FROM profiles %s
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var items []*storage.StoredProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	return &storage.PaginatedProfiles{
		Items:   items,
		Total:   total,
		Page:    opts.Page,
		Limit:   opts.Limit,
		HasMore: opts.Offset()+len(items) < total,
	}, nil
}

// Delete removes a profile record by ID.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: profile ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close releases the database connection.
func (s *ProfileStore) Close() error {
	return s.db.Close()
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scanner) (*storage.StoredProfile, error) {
	var p storage.StoredProfile
	err := row.Scan(
		&p.ID, &p.Query, &p.EntityType, &p.CanonicalName, &p.Description, &p.Confidence,
		&p.SignalsJSON, &p.SourcesJSON, &p.EventsJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
