package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// extractJSON pulls the first JSON object or array out of raw model output.
// Models wrap answers in markdown fences or lead with prose often enough
// that strict unmarshalling of the whole reply is not an option.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	// Strip a markdown code fence, with or without a language tag.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("inference: no JSON in model output")
	}

	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	// Walk to the matching bracket, skipping string literals.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("inference: unbalanced JSON in model output")
}

// clampConfidence forces a confidence into [0,1]; non-finite or absent
// values collapse to the fallback.
func clampConfidence(c, fallback float64) float64 {
	if c != c { // NaN
		return fallback
	}
	if c <= 0 {
		return fallback
	}
	if c > 1 {
		return 1
	}
	return c
}

// canonicalCategory maps a model-reported category onto the closed set,
// tolerating case and surrounding noise. Returns ok=false when nothing in
// the set matches.
func canonicalCategory(label string, set []string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, c := range set {
		if l == c {
			return c, true
		}
	}
	// Tolerate prefixed or suffixed noise ("emotion: joy", "joy.").
	for _, c := range set {
		if strings.Contains(l, c) {
			return c, true
		}
	}
	return "", false
}

// signalPayload is the JSON shape shared by emotion and tone answers.
type signalPayload struct {
	Emotion    string  `json:"emotion"`
	Tone       string  `json:"tone"`
	Confidence float64 `json:"confidence"`
	Secondary  *struct {
		Emotion    string  `json:"emotion"`
		Tone       string  `json:"tone"`
		Confidence float64 `json:"confidence"`
	} `json:"secondary"`
}

// parseSignal decodes an emotion or tone answer into an analysis.Signal with
// SourceText. The secondary is only attached when it clears the threshold.
func parseSignal(raw string, categories []string, pick func(signalPayload) (string, string)) (analysis.Signal, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return analysis.Signal{}, err
	}
	var p signalPayload
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return analysis.Signal{}, fmt.Errorf("inference: decode signal: %w", err)
	}

	primaryLabel, secondaryLabel := pick(p)
	primary, ok := canonicalCategory(primaryLabel, categories)
	if !ok {
		return analysis.Signal{}, fmt.Errorf("inference: unknown category %q", primaryLabel)
	}

	sig := analysis.Signal{
		Primary:    primary,
		Confidence: clampConfidence(p.Confidence, 0.5),
		Source:     analysis.SourceText,
	}
	if secondaryLabel != "" {
		if sec, ok := canonicalCategory(secondaryLabel, categories); ok && sec != primary {
			conf := clampConfidence(p.Secondary.Confidence, 0)
			if conf >= analysis.SecondaryThreshold {
				sig.Secondary = &analysis.Secondary{
					Value:      sec,
					Confidence: conf,
					Source:     analysis.SourceText,
				}
			}
		}
	}
	return sig, nil
}

// ParseEmotion decodes an emotion answer.
func ParseEmotion(raw string) (analysis.Signal, error) {
	return parseSignal(raw, analysis.Emotions, func(p signalPayload) (string, string) {
		if p.Secondary == nil {
			return p.Emotion, ""
		}
		return p.Emotion, p.Secondary.Emotion
	})
}

// ParseTone decodes a tone answer.
func ParseTone(raw string) (analysis.Signal, error) {
	return parseSignal(raw, analysis.Tones, func(p signalPayload) (string, string) {
		if p.Secondary == nil {
			return p.Tone, ""
		}
		return p.Tone, p.Secondary.Tone
	})
}

// ParseFallacies decodes a fallacy-detection answer. A reply without the
// wrapper object but with a bare array is accepted too.
func ParseFallacies(raw string) ([]analysis.Fallacy, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Fallacies []analysis.Fallacy `json:"fallacies"`
	}
	if err := json.Unmarshal([]byte(doc), &wrapped); err == nil && wrapped.Fallacies != nil {
		return wrapped.Fallacies, nil
	}
	var bare []analysis.Fallacy
	if err := json.Unmarshal([]byte(doc), &bare); err == nil {
		return bare, nil
	}
	// A valid wrapper with no findings.
	if strings.Contains(doc, "fallacies") {
		return []analysis.Fallacy{}, nil
	}
	return nil, fmt.Errorf("inference: decode fallacies")
}

// ParseGFK decodes a nonviolent-communication answer.
func ParseGFK(raw string) (analysis.GFK, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return analysis.GFK{}, err
	}
	var g analysis.GFK
	if err := json.Unmarshal([]byte(doc), &g); err != nil {
		return analysis.GFK{}, fmt.Errorf("inference: decode gfk: %w", err)
	}
	return g, nil
}

// ParseDistortions decodes a cognitive-distortion answer.
func ParseDistortions(raw string) ([]analysis.Distortion, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Distortions []analysis.Distortion `json:"distortions"`
	}
	if err := json.Unmarshal([]byte(doc), &wrapped); err == nil && wrapped.Distortions != nil {
		return wrapped.Distortions, nil
	}
	var bare []analysis.Distortion
	if err := json.Unmarshal([]byte(doc), &bare); err == nil {
		return bare, nil
	}
	if strings.Contains(doc, "distortions") {
		return []analysis.Distortion{}, nil
	}
	return nil, fmt.Errorf("inference: decode distortions")
}

// ParseFourSides decodes a four-sides answer.
func ParseFourSides(raw string) (analysis.FourSides, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return analysis.FourSides{}, err
	}
	var f analysis.FourSides
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return analysis.FourSides{}, fmt.Errorf("inference: decode four sides: %w", err)
	}
	return f, nil
}

// topicMatchThreshold is the minimum Jaro-Winkler similarity between a
// model-reported topic label and a known topic before the label is accepted.
const topicMatchThreshold = 0.85

// ParseTopic decodes a topic answer and canonicalises the label onto the
// known topic set. Models reliably return paraphrases ("job", "my family"),
// so an exact-match lookup is backed by a fuzzy Jaro-Winkler pass.
func ParseTopic(raw string) (analysis.Topic, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return analysis.Topic{}, err
	}
	var p struct {
		Topic      string  `json:"topic"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return analysis.Topic{}, fmt.Errorf("inference: decode topic: %w", err)
	}

	label, ok := canonicalCategory(p.Topic, analysis.Topics)
	if !ok {
		reported := strings.ToLower(strings.TrimSpace(p.Topic))
		best := 0.0
		for _, t := range analysis.Topics {
			if s := matchr.JaroWinkler(reported, t, false); s > best {
				best, label = s, t
			}
		}
		if best < topicMatchThreshold {
			return analysis.Topic{}, fmt.Errorf("inference: unknown topic %q", p.Topic)
		}
	}

	return analysis.Topic{
		Label:      label,
		Confidence: clampConfidence(p.Confidence, 0.5),
	}, nil
}
