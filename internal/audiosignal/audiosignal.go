// Package audiosignal defines the contract against the native audio
// analysis collaborator: the component that derives emotion and tone from
// acoustic features of a recording (pitch, energy, speech rate) rather than
// from its words.
//
// The implementation lives outside this module (a native library in the
// desktop app). The pipeline consumes it as a black box producing
// Signal-shaped payloads that the fusion engine treats as the audio side.
package audiosignal

import (
	"context"
	"time"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// Analyzer derives emotion and tone signals from WAV audio. The speech and
// total durations let the implementation weight voiced segments; speech
// must be ≤ total.
//
// Implementations must be safe for concurrent use and must return signals
// tagged with analysis.SourceAudio.
type Analyzer interface {
	// Emotion analyses the acoustic emotion of the recording.
	Emotion(ctx context.Context, wav []byte, speech, total time.Duration) (analysis.Signal, error)

	// Tone analyses the acoustic communication tone of the recording.
	Tone(ctx context.Context, wav []byte, speech, total time.Duration) (analysis.Signal, error)
}
