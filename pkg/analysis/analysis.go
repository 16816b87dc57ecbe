// Package analysis defines the shared value types produced by Echolot's
// inference analyses: confidence-weighted signals for emotion and tone,
// structured results for fallacy, GFK, cognitive-distortion, four-sides and
// topic analyses, and the fixed category tables (including the 2-D
// valence/arousal coordinates used to render blended emotions).
//
// All types in this package are immutable value types once returned by a
// producer; none of them carry synchronisation.
package analysis

// Source identifies which measurement track produced a Signal.
type Source string

const (
	// SourceAudio marks a signal derived from acoustic features of the
	// recording (pitch, energy, speech rate).
	SourceAudio Source = "audio"

	// SourceText marks a signal derived from the transcript.
	SourceText Source = "text"

	// SourceFused marks a signal combined from both an audio and a text
	// measurement. A signal is never tagged fused unless both tracks
	// contributed.
	SourceFused Source = "fused"
)

// SecondaryThreshold is the minimum confidence a runner-up category must
// reach before it is attached to a Signal as Secondary.
const SecondaryThreshold = 0.40

// Secondary is the runner-up category attached to a Signal when its own
// confidence reaches SecondaryThreshold. Its confidence doubles as the blend
// ratio: consumers render the primary/secondary pair as a two-segment
// proportion of (1 − Confidence) to Confidence.
type Secondary struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`

	// Source is the track that produced the runner-up, audio or text.
	// A Secondary is never tagged fused.
	Source Source `json:"source"`
}

// Signal is a single categorical measurement with a confidence in [0,1].
// It is the common shape for emotion and tone results, whether measured from
// one track or fused from both.
type Signal struct {
	Primary    string     `json:"primary"`
	Confidence float64    `json:"confidence"`
	Secondary  *Secondary `json:"secondary,omitempty"`
	Source     Source     `json:"source"`
}

// BlendRatio returns the interpolation weight of the secondary category, or
// 0 when no secondary is attached.
func (s Signal) BlendRatio() float64 {
	if s.Secondary == nil {
		return 0
	}
	return s.Secondary.Confidence
}

// Fallacy is one detected logical fallacy in an argument.
type Fallacy struct {
	// Name is the canonical fallacy name (e.g., "ad hominem", "strawman").
	Name string `json:"name"`

	// Quote is the transcript passage the detection refers to.
	Quote string `json:"quote"`

	// Explanation is a short model-generated rationale.
	Explanation string `json:"explanation"`
}

// GFK holds the four components of a nonviolent-communication reading
// (Gewaltfreie Kommunikation): what was observed, what is felt, the need
// behind the feeling, and the implied request. Components the model could
// not identify are empty strings.
type GFK struct {
	Observation string `json:"observation"`
	Feeling     string `json:"feeling"`
	Need        string `json:"need"`
	Request     string `json:"request"`
}

// IsEmpty reports whether no GFK component was identified.
func (g GFK) IsEmpty() bool {
	return g.Observation == "" && g.Feeling == "" && g.Need == "" && g.Request == ""
}

// Distortion is one detected cognitive distortion.
type Distortion struct {
	// Name is the canonical distortion name (e.g., "catastrophizing",
	// "all-or-nothing thinking").
	Name string `json:"name"`

	// Quote is the transcript passage the detection refers to.
	Quote string `json:"quote"`

	// Reframe is a suggested alternative phrasing, when the model offers one.
	Reframe string `json:"reframe,omitempty"`
}

// FourSides is a reading of an utterance through the four-sides
// communication model (Schulz von Thun): the factual content, what the
// speaker reveals about themselves, what it says about the relationship, and
// the appeal to the listener.
type FourSides struct {
	Factual        string `json:"factual"`
	SelfRevelation string `json:"selfRevelation"`
	Relationship   string `json:"relationship"`
	Appeal         string `json:"appeal"`
}

// Topic is a journal entry's classified subject.
type Topic struct {
	// Label is one of Topics, canonicalised from the model output.
	Label string `json:"label"`

	Confidence float64 `json:"confidence"`
}

// ChatMessage is one role-tagged message in a reflective-companion chat
// exchange. Role is "system", "user" or "assistant"; how a system message
// travels on the wire is a provider transport concern.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
