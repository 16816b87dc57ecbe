package inference

import (
	"testing"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// TestParseEmotion_Plain checks a clean JSON answer.
func TestParseEmotion_Plain(t *testing.T) {
	sig, err := ParseEmotion(`{"emotion":"joy","confidence":0.9}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Primary != analysis.EmotionJoy || sig.Confidence != 0.9 {
		t.Errorf("unexpected signal: %+v", sig)
	}
}

// TestParseEmotion_FencedWithProse checks tolerance for markdown fences and
// leading prose.
func TestParseEmotion_FencedWithProse(t *testing.T) {
	raw := "Here is my answer:\n```json\n{\"emotion\": \"Anger\", \"confidence\": 0.66}\n```"
	sig, err := ParseEmotion(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Primary != analysis.EmotionAnger {
		t.Errorf("expected anger, got %q", sig.Primary)
	}
}

// TestParseEmotion_SecondaryThreshold checks the 0.40 attachment rule.
func TestParseEmotion_SecondaryThreshold(t *testing.T) {
	below, err := ParseEmotion(`{"emotion":"stress","confidence":0.8,"secondary":{"emotion":"fear","confidence":0.39}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if below.Secondary != nil {
		t.Errorf("secondary below threshold should be dropped: %+v", below.Secondary)
	}

	at, err := ParseEmotion(`{"emotion":"stress","confidence":0.8,"secondary":{"emotion":"fear","confidence":0.40}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if at.Secondary == nil || at.Secondary.Value != analysis.EmotionFear {
		t.Errorf("secondary at threshold should be attached: %+v", at.Secondary)
	}
	if at.Secondary != nil && at.Secondary.Source != analysis.SourceText {
		t.Errorf("text-derived secondary must carry text source")
	}
}

// TestParseEmotion_UnknownCategory checks rejection of categories outside
// the closed set.
func TestParseEmotion_UnknownCategory(t *testing.T) {
	if _, err := ParseEmotion(`{"emotion":"wistful","confidence":0.8}`); err == nil {
		t.Error("expected error for unknown category")
	}
}

// TestParseEmotion_ConfidenceClamped checks out-of-range confidences.
func TestParseEmotion_ConfidenceClamped(t *testing.T) {
	sig, err := ParseEmotion(`{"emotion":"joy","confidence":1.7}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Confidence != 1 {
		t.Errorf("expected clamp to 1, got %v", sig.Confidence)
	}

	sig, err = ParseEmotion(`{"emotion":"joy"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Confidence != 0.5 {
		t.Errorf("expected fallback 0.5 for missing confidence, got %v", sig.Confidence)
	}
}

// TestParseTone checks the tone shape.
func TestParseTone(t *testing.T) {
	sig, err := ParseTone(`{"tone":"defensive","confidence":0.71}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Primary != analysis.ToneDefensive || sig.Confidence != 0.71 {
		t.Errorf("unexpected signal: %+v", sig)
	}
}

// TestParseFallacies_WrappedAndBare checks both accepted shapes.
func TestParseFallacies_WrappedAndBare(t *testing.T) {
	wrapped, err := ParseFallacies(`{"fallacies":[{"name":"strawman","quote":"…","explanation":"…"}]}`)
	if err != nil || len(wrapped) != 1 || wrapped[0].Name != "strawman" {
		t.Errorf("wrapped parse failed: %v %+v", err, wrapped)
	}

	bare, err := ParseFallacies(`[{"name":"ad hominem","quote":"…","explanation":"…"}]`)
	if err != nil || len(bare) != 1 || bare[0].Name != "ad hominem" {
		t.Errorf("bare parse failed: %v %+v", err, bare)
	}

	empty, err := ParseFallacies(`{"fallacies":[]}`)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty list parse failed: %v %+v", err, empty)
	}
}

// TestParseGFK checks component extraction.
func TestParseGFK(t *testing.T) {
	g, err := ParseGFK(`{"observation":"the meeting ran long","feeling":"drained","need":"rest","request":""}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Feeling != "drained" || g.Request != "" {
		t.Errorf("unexpected gfk: %+v", g)
	}
}

// TestParseFourSides checks the four-sides shape.
func TestParseFourSides(t *testing.T) {
	f, err := ParseFourSides(`{"factual":"dinner was late","selfRevelation":"I felt unimportant","relationship":"distance","appeal":"be on time"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Appeal != "be on time" {
		t.Errorf("unexpected four sides: %+v", f)
	}
}

// TestParseTopic_Canonical checks an exact topic label.
func TestParseTopic_Canonical(t *testing.T) {
	tp, err := ParseTopic(`{"topic":"work","confidence":0.8}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Label != "work" || tp.Confidence != 0.8 {
		t.Errorf("unexpected topic: %+v", tp)
	}
}

// TestParseTopic_FuzzyCanonicalisation checks that near-miss labels are
// folded onto the known set.
func TestParseTopic_FuzzyCanonicalisation(t *testing.T) {
	tp, err := ParseTopic(`{"topic":"Finance","confidence":0.6}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Label != "finances" {
		t.Errorf("expected finances, got %q", tp.Label)
	}
}

// TestParseTopic_Unmatchable checks rejection of labels far from every
// known topic.
func TestParseTopic_Unmatchable(t *testing.T) {
	if _, err := ParseTopic(`{"topic":"quantum chromodynamics","confidence":0.9}`); err == nil {
		t.Error("expected error for unmatchable topic")
	}
}

// TestExtractJSON_NestedBraces checks bracket matching skips braces inside
// string literals.
func TestExtractJSON_NestedBraces(t *testing.T) {
	doc, err := extractJSON(`noise {"a":"brace } in string","b":{"c":1}} trailing`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != `{"a":"brace } in string","b":{"c":1}}` {
		t.Errorf("unexpected extraction: %q", doc)
	}
}

// TestExtractJSON_NoJSON checks the failure mode.
func TestExtractJSON_NoJSON(t *testing.T) {
	if _, err := extractJSON("no structured content here"); err == nil {
		t.Error("expected error when no JSON present")
	}
}
