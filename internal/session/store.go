// Package session keeps console sessions: the page each browser tab is
// showing, its open form and pending confirmation. Live sessions are held in
// memory and a snapshot is persisted after every operation so another process
// can pick the session up.
package session

import (
	"context"
	"time"

	"github.com/pitabwire/flagconsole/internal/page"
)

// Record is the persisted form of a console session.
type Record struct {
	ID             string
	SubjectID      string
	OrganizationID string
	EnvironmentID  string
	// Page is nil until the session has navigated somewhere.
	Page      *page.State
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Store persists session records.
type Store interface {
	// Create persists a new record. Returns CONFLICT if the id exists.
	Create(ctx context.Context, rec Record) error

	// Get retrieves a record by id, scoped to the subject that created it.
	// Returns NOT_FOUND if the record doesn't exist or belongs to another
	// subject.
	Get(ctx context.Context, subjectID, id string) (Record, error)

	// Update persists a changed record with optimistic locking. The version
	// must match the stored version, which is then incremented. Returns
	// CONFLICT if the version has changed.
	Update(ctx context.Context, rec Record) error

	// FindExpired returns records whose expiry is before cutoff.
	FindExpired(ctx context.Context, cutoff time.Time) ([]Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, subjectID, id string) error

	// HealthCheck reports whether the store is reachable.
	HealthCheck(ctx context.Context) error
}
