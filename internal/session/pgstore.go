package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/flagconsole/internal/page"
	"github.com/pitabwire/flagconsole/model"
)

// Schema creates the table PgStore uses.
const Schema = `
CREATE TABLE IF NOT EXISTS console_sessions (
	id              TEXT PRIMARY KEY,
	subject_id      TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	environment_id  TEXT NOT NULL,
	page            JSONB,
	version         INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS console_sessions_expires_at ON console_sessions (expires_at);
`

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL session store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the session table if it does not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create console_sessions: %w", err)
	}
	return nil
}

// Create inserts a new record.
func (s *PgStore) Create(ctx context.Context, rec Record) error {
	pageJSON, err := marshalPage(rec.Page)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO console_sessions (
			id, subject_id, organization_id, environment_id,
			page, version, created_at, updated_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.SubjectID, rec.OrganizationID, rec.EnvironmentID,
		pageJSON, rec.Version, rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert console session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf("console session %q already exists", rec.ID))
	}
	return nil
}

// Get retrieves a record by id, scoped to subject.
func (s *PgStore) Get(ctx context.Context, subjectID, id string) (Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, organization_id, environment_id,
		       page, version, created_at, updated_at, expires_at
		FROM console_sessions
		WHERE id = $1 AND subject_id = $2`,
		id, subjectID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("query console session: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, model.NewNotFoundError(fmt.Sprintf("console session %q not found", id))
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan console session: %w", err)
	}
	return rec, nil
}

// Update persists a changed record with optimistic locking.
func (s *PgStore) Update(ctx context.Context, rec Record) error {
	pageJSON, err := marshalPage(rec.Page)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE console_sessions SET
			environment_id = $1,
			page = $2,
			version = $3,
			updated_at = $4,
			expires_at = $5
		WHERE id = $6 AND version = $7`,
		rec.EnvironmentID, pageJSON, rec.Version+1,
		time.Now().UTC(), rec.ExpiresAt,
		rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update console session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("console session %q version conflict (expected %d)", rec.ID, rec.Version),
		)
	}
	return nil
}

// FindExpired returns records past their expiry, oldest first.
func (s *PgStore) FindExpired(ctx context.Context, cutoff time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, organization_id, environment_id,
		       page, version, created_at, updated_at, expires_at
		FROM console_sessions
		WHERE expires_at < $1
		ORDER BY expires_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired console sessions: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scan console session: %w", err)
	}
	return recs, nil
}

// Delete removes a record.
func (s *PgStore) Delete(ctx context.Context, subjectID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM console_sessions
		WHERE id = $1 AND subject_id = $2`,
		id, subjectID,
	)
	if err != nil {
		return fmt.Errorf("delete console session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("console session %q not found", id))
	}
	return nil
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	var pageJSON []byte
	if err := row.Scan(
		&rec.ID, &rec.SubjectID, &rec.OrganizationID, &rec.EnvironmentID,
		&pageJSON, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt,
	); err != nil {
		return Record{}, err
	}
	if pageJSON != nil {
		var st page.State
		if err := json.Unmarshal(pageJSON, &st); err != nil {
			return Record{}, fmt.Errorf("unmarshal page state: %w", err)
		}
		rec.Page = &st
	}
	return rec, nil
}

func marshalPage(st *page.State) ([]byte, error) {
	if st == nil {
		return nil, nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal page state: %w", err)
	}
	return b, nil
}
