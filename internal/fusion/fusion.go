// Package fusion combines an audio-derived and a text-derived measurement
// of the same quantity (emotion or tone) into one confidence-weighted
// signal.
//
// The engine is pure computation: no state, no I/O, no provider knowledge.
// The orchestrator is responsible for making sure both inputs belong to the
// same pipeline run; fusion itself never enforces ordering.
package fusion

import (
	"math"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// Track weights for the combined confidence. Text carries more weight: the
// transcript-based classifier sees content, the acoustic one only delivery.
const (
	audioWeight = 0.4
	textWeight  = 0.6
)

// Agreement boosts applied when both tracks report the same primary
// category. Emotion gets the larger boost: two independent modalities
// agreeing on an emotion is stronger evidence than two agreeing on tone,
// which correlates across modalities anyway.
const (
	emotionAgreementBoost = 0.15
	toneAgreementBoost    = 0.10
)

// Kind selects which agreement boost applies.
type Kind int

const (
	// Emotion fuses emotion signals.
	Emotion Kind = iota

	// Tone fuses tone signals.
	Tone
)

// boost returns the agreement boost for k.
func (k Kind) boost() float64 {
	if k == Emotion {
		return emotionAgreementBoost
	}
	return toneAgreementBoost
}

// candidate is one category competing for the secondary slot.
type candidate struct {
	value      string
	confidence float64
	source     analysis.Source
}

// Fuse combines the audio and text measurements of one quantity. Either
// side may be nil:
//
//   - both nil: a zero-confidence neutral-free signal is not meaningful, so
//     the zero Signal is returned;
//   - one side present: returned unchanged apart from its source tag;
//   - both present: confidence is 0.4·audio + 0.6·text, boosted on primary
//     agreement and capped at 1.0, with the source tagged fused.
//
// After the primary is fixed, the highest-confidence runner-up category
// from either track (a losing primary or either track's own secondary) is
// attached as Secondary when it reaches analysis.SecondaryThreshold. Its
// confidence doubles as the blend ratio consumers render with.
func Fuse(audio, text *analysis.Signal, kind Kind) analysis.Signal {
	switch {
	case audio == nil && text == nil:
		return analysis.Signal{}
	case text == nil:
		out := *audio
		out.Source = analysis.SourceAudio
		return out
	case audio == nil:
		out := *text
		out.Source = analysis.SourceText
		return out
	}

	confidence := audioWeight*audio.Confidence + textWeight*text.Confidence

	// The primary is the category with the larger weighted contribution;
	// on agreement the question does not arise.
	primary := text.Primary
	losing := candidate{value: audio.Primary, confidence: audio.Confidence, source: analysis.SourceAudio}
	if audio.Primary != text.Primary && audioWeight*audio.Confidence > textWeight*text.Confidence {
		primary = audio.Primary
		losing = candidate{value: text.Primary, confidence: text.Confidence, source: analysis.SourceText}
	}

	if audio.Primary == text.Primary {
		confidence += kind.boost()
		// Two agreeing modalities must never end up less confident than the
		// stronger one alone.
		if m := math.Max(audio.Confidence, text.Confidence); confidence < m {
			confidence = m
		}
	}
	if confidence > 1 {
		confidence = 1
	}

	out := analysis.Signal{
		Primary:    primary,
		Confidence: confidence,
		Source:     analysis.SourceFused,
	}

	// Runner-up selection across both tracks.
	candidates := []candidate{}
	if audio.Primary != text.Primary {
		candidates = append(candidates, losing)
	}
	if audio.Secondary != nil {
		candidates = append(candidates, candidate{
			value:      audio.Secondary.Value,
			confidence: audio.Secondary.Confidence,
			source:     analysis.SourceAudio,
		})
	}
	if text.Secondary != nil {
		candidates = append(candidates, candidate{
			value:      text.Secondary.Value,
			confidence: text.Secondary.Confidence,
			source:     analysis.SourceText,
		})
	}

	best := candidate{}
	for _, c := range candidates {
		if c.value != primary && c.confidence > best.confidence {
			best = c
		}
	}
	if best.value != "" && best.confidence >= analysis.SecondaryThreshold {
		out.Secondary = &analysis.Secondary{
			Value:      best.value,
			Confidence: best.confidence,
			Source:     best.source,
		}
	}

	return out
}

// EmotionPoint projects a fused emotion signal onto the valence/arousal
// plane. Without a secondary the point is the primary category's fixed
// position; with one, the two categories' positions are interpolated by the
// blend ratio. Purely presentation data, reproducible bit for bit.
func EmotionPoint(sig analysis.Signal) analysis.Point {
	if sig.Secondary == nil {
		return analysis.EmotionCoordinates(sig.Primary)
	}
	return analysis.BlendCoordinates(sig.Primary, sig.Secondary.Value, sig.BlendRatio())
}
