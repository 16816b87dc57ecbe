// Package mock provides a scripted audiosignal.Analyzer for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/echolotlabs/echolot/internal/audiosignal"
	"github.com/echolotlabs/echolot/pkg/analysis"
)

// Compile-time interface check.
var _ audiosignal.Analyzer = (*Analyzer)(nil)

// Analyzer is a scripted audiosignal.Analyzer. It records call counts and
// is safe for concurrent use.
type Analyzer struct {
	mu sync.Mutex

	EmotionResult analysis.Signal
	EmotionErr    error
	ToneResult    analysis.Signal
	ToneErr       error

	EmotionCalls int
	ToneCalls    int
}

// Emotion implements audiosignal.Analyzer.
func (a *Analyzer) Emotion(context.Context, []byte, time.Duration, time.Duration) (analysis.Signal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.EmotionCalls++
	return a.EmotionResult, a.EmotionErr
}

// Tone implements audiosignal.Analyzer.
func (a *Analyzer) Tone(context.Context, []byte, time.Duration, time.Duration) (analysis.Signal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ToneCalls++
	return a.ToneResult, a.ToneErr
}
