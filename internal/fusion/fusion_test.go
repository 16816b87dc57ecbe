package fusion

import (
	"math"
	"testing"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

func sig(primary string, confidence float64, source analysis.Source) *analysis.Signal {
	return &analysis.Signal{Primary: primary, Confidence: confidence, Source: source}
}

// TestFuse_AudioOnly checks single-track passthrough with the audio tag.
func TestFuse_AudioOnly(t *testing.T) {
	got := Fuse(sig(analysis.EmotionStress, 0.8, analysis.SourceAudio), nil, Emotion)
	if got.Primary != analysis.EmotionStress || got.Confidence != 0.8 {
		t.Errorf("unexpected signal: %+v", got)
	}
	if got.Source != analysis.SourceAudio {
		t.Errorf("expected audio source, got %s", got.Source)
	}
}

// TestFuse_TextOnly checks single-track passthrough with the text tag.
func TestFuse_TextOnly(t *testing.T) {
	got := Fuse(nil, sig(analysis.ToneFriendly, 0.6, analysis.SourceText), Tone)
	if got.Primary != analysis.ToneFriendly || got.Source != analysis.SourceText {
		t.Errorf("unexpected signal: %+v", got)
	}
}

// TestFuse_AgreementEmotion reproduces the fixed-weight arithmetic: audio
// stress 0.8 fused with text stress 0.7 gives 0.4·0.8 + 0.6·0.7 + 0.15.
func TestFuse_AgreementEmotion(t *testing.T) {
	got := Fuse(
		sig(analysis.EmotionStress, 0.8, analysis.SourceAudio),
		sig(analysis.EmotionStress, 0.7, analysis.SourceText),
		Emotion,
	)
	want := 0.4*0.8 + 0.6*0.7 + 0.15
	if got.Primary != analysis.EmotionStress {
		t.Errorf("expected stress, got %q", got.Primary)
	}
	if math.Abs(got.Confidence-want) > 1e-12 {
		t.Errorf("confidence %v, want %v", got.Confidence, want)
	}
	if got.Source != analysis.SourceFused {
		t.Errorf("expected fused source, got %s", got.Source)
	}
}

// TestFuse_AgreementBoostDiffersByKind checks tone gets +0.10 where emotion
// gets +0.15.
func TestFuse_AgreementBoostDiffersByKind(t *testing.T) {
	audio := sig(analysis.ToneAggressive, 0.5, analysis.SourceAudio)
	text := sig(analysis.ToneAggressive, 0.5, analysis.SourceText)
	got := Fuse(audio, text, Tone)
	want := 0.4*0.5 + 0.6*0.5 + 0.10
	if math.Abs(got.Confidence-want) > 1e-12 {
		t.Errorf("confidence %v, want %v", got.Confidence, want)
	}
}

// TestFuse_AgreementAtLeastMax checks the boosted confidence dominates both
// inputs unless capped.
func TestFuse_AgreementAtLeastMax(t *testing.T) {
	for _, c := range [][2]float64{{0.8, 0.7}, {0.5, 0.9}, {0.95, 0.99}, {1, 1}} {
		got := Fuse(
			sig(analysis.EmotionJoy, c[0], analysis.SourceAudio),
			sig(analysis.EmotionJoy, c[1], analysis.SourceText),
			Emotion,
		)
		if got.Confidence > 1 {
			t.Errorf("confidence %v exceeds 1", got.Confidence)
		}
		if got.Confidence < 1 && got.Confidence < math.Max(c[0], c[1]) {
			t.Errorf("agreement at %v: fused %v below max input", c, got.Confidence)
		}
	}
}

// TestFuse_CapAtOne checks the 1.0 cap.
func TestFuse_CapAtOne(t *testing.T) {
	got := Fuse(
		sig(analysis.EmotionJoy, 1.0, analysis.SourceAudio),
		sig(analysis.EmotionJoy, 1.0, analysis.SourceText),
		Emotion,
	)
	if got.Confidence != 1.0 {
		t.Errorf("expected cap at 1.0, got %v", got.Confidence)
	}
}

// TestFuse_DisagreementPicksWeightedWinner checks primary selection under
// disagreement and the losing primary's demotion to secondary.
func TestFuse_DisagreementPicksWeightedWinner(t *testing.T) {
	audio := sig(analysis.EmotionAnger, 0.9, analysis.SourceAudio) // 0.36 weighted
	text := sig(analysis.EmotionSadness, 0.7, analysis.SourceText) // 0.42 weighted

	got := Fuse(audio, text, Emotion)
	if got.Primary != analysis.EmotionSadness {
		t.Errorf("expected text primary to win, got %q", got.Primary)
	}
	if got.Secondary == nil {
		t.Fatal("expected losing primary attached as secondary")
	}
	if got.Secondary.Value != analysis.EmotionAnger || got.Secondary.Source != analysis.SourceAudio {
		t.Errorf("unexpected secondary: %+v", got.Secondary)
	}
	if got.Secondary.Confidence != 0.9 {
		t.Errorf("secondary keeps its own confidence, got %v", got.Secondary.Confidence)
	}

	// A strong audio side can win against the text weighting.
	got = Fuse(
		sig(analysis.EmotionAnger, 0.9, analysis.SourceAudio),  // 0.36
		sig(analysis.EmotionSadness, 0.5, analysis.SourceText), // 0.30
		Emotion,
	)
	if got.Primary != analysis.EmotionAnger {
		t.Errorf("expected audio primary to win, got %q", got.Primary)
	}
}

// TestFuse_SecondaryThreshold checks the 0.40 attachment rule on the
// runner-up.
func TestFuse_SecondaryThreshold(t *testing.T) {
	got := Fuse(
		sig(analysis.EmotionStress, 0.39, analysis.SourceAudio),
		sig(analysis.EmotionCalm, 0.9, analysis.SourceText),
		Emotion,
	)
	if got.Secondary != nil {
		t.Errorf("runner-up below threshold must be dropped: %+v", got.Secondary)
	}

	got = Fuse(
		sig(analysis.EmotionStress, 0.40, analysis.SourceAudio),
		sig(analysis.EmotionCalm, 0.9, analysis.SourceText),
		Emotion,
	)
	if got.Secondary == nil || got.Secondary.Value != analysis.EmotionStress {
		t.Errorf("runner-up at threshold must be attached: %+v", got.Secondary)
	}
}

// TestFuse_TrackSecondaryCompetes checks that a track's own secondary can
// take the slot when it outranks the losing primary.
func TestFuse_TrackSecondaryCompetes(t *testing.T) {
	audio := sig(analysis.EmotionJoy, 0.8, analysis.SourceAudio)
	text := &analysis.Signal{
		Primary:    analysis.EmotionJoy,
		Confidence: 0.8,
		Secondary:  &analysis.Secondary{Value: analysis.EmotionSurprise, Confidence: 0.55, Source: analysis.SourceText},
		Source:     analysis.SourceText,
	}

	got := Fuse(audio, text, Emotion)
	if got.Secondary == nil || got.Secondary.Value != analysis.EmotionSurprise {
		t.Fatalf("expected surprise secondary, got %+v", got.Secondary)
	}
	if got.Secondary.Source != analysis.SourceText {
		t.Errorf("secondary must keep its originating track, got %s", got.Secondary.Source)
	}
}

// TestFuse_ConfidenceBounds checks fused confidence stays within [0,1] for
// a grid of inputs.
func TestFuse_ConfidenceBounds(t *testing.T) {
	for a := 0.0; a <= 1.0; a += 0.25 {
		for b := 0.0; b <= 1.0; b += 0.25 {
			got := Fuse(
				sig(analysis.EmotionFear, a, analysis.SourceAudio),
				sig(analysis.EmotionFear, b, analysis.SourceText),
				Emotion,
			)
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("confidence %v out of bounds for inputs (%v, %v)", got.Confidence, a, b)
			}
		}
	}
}

// TestEmotionPoint checks the valence/arousal projection with and without a
// secondary.
func TestEmotionPoint(t *testing.T) {
	plain := analysis.Signal{Primary: analysis.EmotionJoy, Confidence: 0.9}
	if got := EmotionPoint(plain); got != analysis.EmotionCoordinates(analysis.EmotionJoy) {
		t.Errorf("expected joy coordinates, got %+v", got)
	}

	blended := analysis.Signal{
		Primary:    analysis.EmotionStress,
		Confidence: 0.8,
		Secondary:  &analysis.Secondary{Value: analysis.EmotionFear, Confidence: 0.45, Source: analysis.SourceAudio},
	}
	want := analysis.BlendCoordinates(analysis.EmotionStress, analysis.EmotionFear, 0.45)
	if got := EmotionPoint(blended); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
