package analysis

// Emotion category names. The set is closed: providers canonicalise model
// output onto it, and the valence/arousal table below covers exactly these.
const (
	EmotionNeutral  = "neutral"
	EmotionJoy      = "joy"
	EmotionSadness  = "sadness"
	EmotionAnger    = "anger"
	EmotionFear     = "fear"
	EmotionSurprise = "surprise"
	EmotionDisgust  = "disgust"
	EmotionStress   = "stress"
	EmotionCalm     = "calm"
)

// Emotions lists all recognised emotion categories.
var Emotions = []string{
	EmotionNeutral, EmotionJoy, EmotionSadness, EmotionAnger, EmotionFear,
	EmotionSurprise, EmotionDisgust, EmotionStress, EmotionCalm,
}

// Tone category names.
const (
	ToneNeutral      = "neutral"
	ToneFriendly     = "friendly"
	ToneAggressive   = "aggressive"
	ToneDefensive    = "defensive"
	ToneSarcastic    = "sarcastic"
	ToneAppreciative = "appreciative"
)

// Tones lists all recognised tone categories.
var Tones = []string{
	ToneNeutral, ToneFriendly, ToneAggressive, ToneDefensive,
	ToneSarcastic, ToneAppreciative,
}

// Topics lists the closed set of journal topic labels. Model output is
// canonicalised onto this set by the provider clients.
var Topics = []string{
	"work", "family", "relationships", "health", "finances",
	"personal growth", "leisure", "daily life",
}

// Point is a position in the 2-D valence/arousal emotion space. Valence runs
// from −1 (unpleasant) to +1 (pleasant); arousal from −1 (deactivated) to
// +1 (activated).
type Point struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

// emotionCoords fixes each emotion category's position in valence/arousal
// space. The values are constants of the presentation model; changing them
// changes every historical rendering, so treat them as frozen.
var emotionCoords = map[string]Point{
	EmotionNeutral:  {Valence: 0.0, Arousal: 0.0},
	EmotionJoy:      {Valence: 0.8, Arousal: 0.5},
	EmotionSadness:  {Valence: -0.7, Arousal: -0.4},
	EmotionAnger:    {Valence: -0.6, Arousal: 0.8},
	EmotionFear:     {Valence: -0.7, Arousal: 0.6},
	EmotionSurprise: {Valence: 0.3, Arousal: 0.7},
	EmotionDisgust:  {Valence: -0.6, Arousal: 0.2},
	EmotionStress:   {Valence: -0.5, Arousal: 0.7},
	EmotionCalm:     {Valence: 0.6, Arousal: -0.5},
}

// EmotionCoordinates returns the fixed valence/arousal position of an
// emotion category. Unknown categories map to the neutral origin.
func EmotionCoordinates(emotion string) Point {
	if p, ok := emotionCoords[emotion]; ok {
		return p
	}
	return Point{}
}

// BlendCoordinates linearly interpolates between the fixed coordinates of
// two emotion categories using ratio as the weight of the secondary. It is a
// pure presentation computation: given the same categories and ratio it
// reproduces the same point bit for bit.
func BlendCoordinates(primary, secondary string, ratio float64) Point {
	p := EmotionCoordinates(primary)
	s := EmotionCoordinates(secondary)
	return Point{
		Valence: p.Valence*(1-ratio) + s.Valence*ratio,
		Arousal: p.Arousal*(1-ratio) + s.Arousal*ratio,
	}
}

// NeutralEmotion is the canned default returned whenever an emotion analysis
// cannot run (guarded input, trivial input, provider failure).
func NeutralEmotion() Signal {
	return Signal{Primary: EmotionNeutral, Confidence: 0.5, Source: SourceText}
}

// NeutralTone is the canned default for tone analyses that cannot run.
func NeutralTone() Signal {
	return Signal{Primary: ToneNeutral, Confidence: 0.5, Source: SourceText}
}

// DefaultTopic is the canned default for topic classification.
func DefaultTopic() Topic {
	return Topic{Label: "daily life", Confidence: 0.3}
}
