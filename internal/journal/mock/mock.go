// Package mock provides an in-memory journal.Recorder for tests.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/echolotlabs/echolot/internal/journal"
)

// Compile-time interface check.
var _ journal.Recorder = (*Recorder)(nil)

// Recorder is an in-memory journal.Recorder. Set RecordErr to make Record
// fail. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	entries   []journal.Entry
	RecordErr error
}

// Record implements journal.Recorder.
func (r *Recorder) Record(_ context.Context, entry journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RecordErr != nil {
		return r.RecordErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

// Get implements journal.Recorder.
func (r *Recorder) Get(_ context.Context, id uuid.UUID) (journal.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return journal.Entry{}, journal.ErrNotFound
}

// Recent implements journal.Recorder.
func (r *Recorder) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []journal.Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Search implements journal.Recorder with a substring match.
func (r *Recorder) Search(_ context.Context, query string, limit int) ([]journal.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []journal.Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(r.entries[i].Transcript, query) {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

// Entries returns a copy of everything recorded so far, oldest first.
func (r *Recorder) Entries() []journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]journal.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
