package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/flagconsole/model"
)

// MemoryStore is an in-memory Store. Sessions do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // key: session id
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Create persists a new record.
func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("console session %q already exists", rec.ID))
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get retrieves a record by id, scoped to subject.
func (s *MemoryStore) Get(_ context.Context, subjectID, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists || rec.SubjectID != subjectID {
		return Record{}, model.NewNotFoundError(fmt.Sprintf("console session %q not found", id))
	}
	return cloneRecord(rec), nil
}

// Update persists a changed record with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("console session %q not found", rec.ID))
	}
	if existing.Version != rec.Version {
		return model.NewConflictError(
			fmt.Sprintf("console session %q version conflict (expected %d, got %d)", rec.ID, rec.Version, existing.Version),
		)
	}

	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// FindExpired returns records past their expiry, oldest first.
func (s *MemoryStore) FindExpired(_ context.Context, cutoff time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Record
	for _, rec := range s.records {
		if rec.ExpiresAt.Before(cutoff) {
			result = append(result, cloneRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	return result, nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, subjectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists || rec.SubjectID != subjectID {
		return model.NewNotFoundError(fmt.Sprintf("console session %q not found", id))
	}
	delete(s.records, id)
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of records. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// cloneRecord copies the page state so callers cannot mutate stored records.
func cloneRecord(rec Record) Record {
	if rec.Page == nil {
		return rec
	}
	st := *rec.Page
	st.Options = st.Options.Clone()
	if st.Form != nil {
		form := *st.Form
		form.Values = cloneMap(form.Values)
		dirty := make(map[string]bool, len(form.Dirty))
		for k, v := range form.Dirty {
			dirty[k] = v
		}
		form.Dirty = dirty
		st.Form = &form
	}
	if st.Intent != nil {
		intent := *st.Intent
		st.Intent = &intent
	}
	rec.Page = &st
	return rec
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
