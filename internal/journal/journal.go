// Package journal defines the persistence contract for analysed journal
// entries.
//
// An Entry is only ever written once, fully assembled, after a pipeline run
// completed without cancellation. Partial analysis failures are part of the
// record: the Status map says per feature whether its result is real or a
// fallback, so the UI can label degraded entries instead of hiding them.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// ErrNotFound is returned by Get when no entry has the requested id.
var ErrNotFound = errors.New("journal: entry not found")

// FeatureStatus records the outcome of one analysis feature within a run.
type FeatureStatus struct {
	// Succeeded is false when the stored result for this feature is a
	// neutral fallback rather than a model output.
	Succeeded bool `json:"succeeded"`

	// Reason explains a failure in one short phrase; empty on success.
	Reason string `json:"reason,omitempty"`
}

// Entry is one fully analysed journal recording.
type Entry struct {
	ID        uuid.UUID
	CreatedAt time.Time

	Transcript string
	Speech     time.Duration
	Total      time.Duration

	// Provider names the inference backend that produced the text signals.
	Provider string

	Emotion      *analysis.Signal
	EmotionPoint *analysis.Point
	Tone         *analysis.Signal
	Fallacies    []analysis.Fallacy
	GFK          *analysis.GFK
	Distortions  []analysis.Distortion
	FourSides    *analysis.FourSides
	Topic        *analysis.Topic

	// Status maps feature name to its outcome for this run.
	Status map[string]FeatureStatus
}

// Recorder persists and retrieves journal entries. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// Record stores a fully assembled entry.
	Record(ctx context.Context, entry Entry) error

	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (Entry, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Search performs a full-text search over transcripts, newest first.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}
