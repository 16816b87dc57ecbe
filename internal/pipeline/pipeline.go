// Package pipeline orchestrates one journal-entry analysis run: optional
// transcription, acoustic analysis, the parallel text-analysis batch,
// multi-signal fusion, and persistence.
//
// A run is an explicit step sequence with observable statuses so the UI can
// show progress per stage. Analysis failures degrade the entry instead of
// failing the run; only a failed transcription (the prerequisite for
// everything downstream) or a cancelled context aborts it. Cancelled runs
// are never persisted.
package pipeline

import (
	"github.com/echolotlabs/echolot/internal/journal"
)

// Status is the lifecycle state of one pipeline step.
type Status string

const (
	// StatusPending marks a step that has not started yet.
	StatusPending Status = "pending"

	// StatusActive marks the step currently running.
	StatusActive Status = "active"

	// StatusCompleted marks a step that finished successfully.
	StatusCompleted Status = "completed"

	// StatusError marks a step that failed.
	StatusError Status = "error"

	// StatusSkipped marks a step that could not run, e.g. because its
	// input is missing or its feature is disabled.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether s is a final state. Terminal states are sticky:
// once a step completed, failed, or was skipped, no later transition may
// overwrite that outcome.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusSkipped:
		return true
	}
	return false
}

// Step is one observable stage of a pipeline run.
type Step struct {
	// ID is the stable machine identifier, e.g. "transcribe" or "emotion".
	ID string

	// Label is the human-readable stage name shown in the UI.
	Label string

	// Status is the current lifecycle state.
	Status Status

	// Err holds the failure when Status is StatusError.
	Err error
}

// set transitions the step to a new status. Transitions out of a terminal
// state are ignored, keeping the first recorded outcome authoritative.
func (s *Step) set(to Status, err error) {
	if s.Status.Terminal() {
		return
	}
	s.Status = to
	if to == StatusError {
		s.Err = err
	}
}

// Step IDs, in run order.
const (
	StepTranscribe   = "transcribe"
	StepAudioEmotion = "audio_emotion"
	StepAudioTone    = "audio_tone"
	StepEmotion      = "emotion"
	StepTone         = "tone"
	StepFallacies    = "fallacies"
	StepGFK          = "gfk"
	StepDistortions  = "distortions"
	StepFourSides    = "four_sides"
	StepTopic        = "topic"
	StepPersist      = "persist"
)

// stepLabels maps step IDs to their UI labels.
var stepLabels = map[string]string{
	StepTranscribe:   "Transcribing recording",
	StepAudioEmotion: "Analyzing voice emotion",
	StepAudioTone:    "Analyzing voice tone",
	StepEmotion:      "Detecting emotion",
	StepTone:         "Detecting tone",
	StepFallacies:    "Checking arguments",
	StepGFK:          "Extracting needs",
	StepDistortions:  "Spotting thought patterns",
	StepFourSides:    "Reading message layers",
	StepTopic:        "Classifying topic",
	StepPersist:      "Saving entry",
}

// Features selects which text analyses a run performs. The zero value runs
// nothing; use DefaultFeatures for the full set.
type Features struct {
	Emotion     bool
	Tone        bool
	Fallacies   bool
	GFK         bool
	Distortions bool
	FourSides   bool
	Topic       bool
}

// DefaultFeatures enables every analysis.
func DefaultFeatures() Features {
	return Features{
		Emotion:     true,
		Tone:        true,
		Fallacies:   true,
		GFK:         true,
		Distortions: true,
		FourSides:   true,
		Topic:       true,
	}
}

// Input describes one run. Either Transcript or WAV must be set; when WAV
// is present the transcription step produces the transcript and Transcript
// is ignored.
type Input struct {
	Transcript string
	WAV        []byte
	Features   Features
}

// Result is the outcome of a run: the assembled journal entry and the final
// state of every step, in run order.
type Result struct {
	Entry journal.Entry
	Steps []Step
}

// StepByID returns the step with the given ID, or nil.
func (r *Result) StepByID(id string) *Step {
	for i := range r.Steps {
		if r.Steps[i].ID == id {
			return &r.Steps[i]
		}
	}
	return nil
}
