// Package transcribe defines the speech-to-text contract the pipeline uses
// to turn a recorded journal entry into analysable text.
//
// Unlike a live captioning system the journal works on complete recordings,
// so the contract is a single batch call: one WAV in, one transcript out.
// Implementations also report how much of the recording contained speech;
// the acoustic analyzer weights voiced segments by that ratio.
package transcribe

import (
	"context"
	"time"
)

// Result is the outcome of transcribing one recording.
type Result struct {
	// Text is the transcript, trimmed of leading/trailing whitespace.
	Text string

	// Speech is the voiced portion of the recording.
	Speech time.Duration

	// Total is the full length of the recording.
	Total time.Duration
}

// Transcriber turns a complete WAV recording into text. Implementations
// must be safe for concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (Result, error)
}
