package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	audiomock "github.com/echolotlabs/echolot/internal/audiosignal/mock"
	journalmock "github.com/echolotlabs/echolot/internal/journal/mock"
	"github.com/echolotlabs/echolot/internal/observe"
	"github.com/echolotlabs/echolot/internal/transcribe"
	"github.com/echolotlabs/echolot/pkg/analysis"
	inferencemock "github.com/echolotlabs/echolot/pkg/inference/mock"
)

// stubTranscriber is a scripted transcribe.Transcriber that records a
// call sequence marker shared with other collaborators.
type stubTranscriber struct {
	result transcribe.Result
	err    error
	seq    *callSequence
}

func (s *stubTranscriber) Transcribe(ctx context.Context, _ []byte) (transcribe.Result, error) {
	if s.seq != nil {
		s.seq.note("transcribe")
	}
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, err
	}
	return s.result, s.err
}

// callSequence records collaborator invocations in order.
type callSequence struct {
	mu    sync.Mutex
	calls []string
}

func (c *callSequence) note(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callSequence) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// seqAnalyzer wraps the audiosignal mock to note its position in the call
// sequence.
type seqAnalyzer struct {
	*audiomock.Analyzer
	seq *callSequence
}

func (a *seqAnalyzer) Emotion(ctx context.Context, wav []byte, speech, total time.Duration) (analysis.Signal, error) {
	a.seq.note("audio_emotion")
	return a.Analyzer.Emotion(ctx, wav, speech, total)
}

func (a *seqAnalyzer) Tone(ctx context.Context, wav []byte, speech, total time.Duration) (analysis.Signal, error) {
	a.seq.note("audio_tone")
	return a.Analyzer.Tone(ctx, wav, speech, total)
}

// testMetrics returns an isolated metrics instance.
func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// TestRun_TextOnly checks a transcript-only run: no transcription or audio
// steps, every analysis completed, entry persisted.
func TestRun_TextOnly(t *testing.T) {
	client := &inferencemock.Client{
		EmotionResult: &analysis.Signal{Primary: analysis.EmotionJoy, Confidence: 0.8, Source: analysis.SourceText},
		TopicResult:   &analysis.Topic{Label: "family", Confidence: 0.7},
	}
	recorder := &journalmock.Recorder{}
	o, err := New(client, recorder, WithMetrics(testMetrics(t)), WithProviderName("ollama"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{
		Transcript: "ich habe heute mit meiner Schwester telefoniert und wir haben viel gelacht",
		Features:   DefaultFeatures(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.StepByID(StepTranscribe) != nil || res.StepByID(StepAudioEmotion) != nil {
		t.Error("text-only run must not contain transcription or audio steps")
	}
	for _, step := range res.Steps {
		if step.Status != StatusCompleted {
			t.Errorf("step %s = %s, want completed", step.ID, step.Status)
		}
	}

	entries := recorder.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Provider != "ollama" {
		t.Errorf("provider = %q", entry.Provider)
	}
	if entry.Emotion == nil || entry.Emotion.Primary != analysis.EmotionJoy {
		t.Errorf("emotion = %+v", entry.Emotion)
	}
	if entry.Emotion.Source != analysis.SourceText {
		t.Errorf("text-only emotion must keep the text source, got %s", entry.Emotion.Source)
	}
	if entry.EmotionPoint == nil {
		t.Error("expected an emotion point")
	}
	if !entry.Status[StepEmotion].Succeeded || !entry.Status[StepTopic].Succeeded {
		t.Errorf("status map: %+v", entry.Status)
	}
}

// TestRun_AudioFusion checks that a run with a recording fuses the acoustic
// and text emotion signals with the agreement boost.
func TestRun_AudioFusion(t *testing.T) {
	client := &inferencemock.Client{
		EmotionResult: &analysis.Signal{Primary: analysis.EmotionStress, Confidence: 0.7, Source: analysis.SourceText},
	}
	recorder := &journalmock.Recorder{}
	audio := &audiomock.Analyzer{
		EmotionResult: analysis.Signal{Primary: analysis.EmotionStress, Confidence: 0.8, Source: analysis.SourceAudio},
		ToneResult:    analysis.Signal{Primary: analysis.ToneNeutral, Confidence: 0.5, Source: analysis.SourceAudio},
	}
	stt := &stubTranscriber{result: transcribe.Result{
		Text:   "der Abgabetermin rückt näher und ich komme nicht hinterher",
		Speech: 8 * time.Second,
		Total:  10 * time.Second,
	}}

	o, err := New(client, recorder,
		WithMetrics(testMetrics(t)),
		WithTranscriber(stt),
		WithAudioAnalyzer(audio),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{WAV: []byte("RIFF..."), Features: DefaultFeatures()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	entry := res.Entry
	if entry.Transcript != stt.result.Text {
		t.Errorf("transcript = %q", entry.Transcript)
	}
	if entry.Speech != 8*time.Second || entry.Total != 10*time.Second {
		t.Errorf("durations = %v/%v", entry.Speech, entry.Total)
	}
	if entry.Emotion == nil || entry.Emotion.Source != analysis.SourceFused {
		t.Fatalf("expected fused emotion, got %+v", entry.Emotion)
	}
	// 0.4·0.8 + 0.6·0.7 + 0.15 agreement boost.
	if want := 0.89; entry.Emotion.Confidence < want-1e-9 || entry.Emotion.Confidence > want+1e-9 {
		t.Errorf("fused confidence = %v, want %v", entry.Emotion.Confidence, want)
	}
	if step := res.StepByID(StepAudioEmotion); step == nil || step.Status != StatusCompleted {
		t.Errorf("audio emotion step: %+v", step)
	}
}

// TestRun_PartialFailurePersists checks that one failing analysis degrades
// the entry instead of failing the run.
func TestRun_PartialFailurePersists(t *testing.T) {
	client := &inferencemock.Client{
		EmotionResult: &analysis.Signal{Primary: analysis.EmotionCalm, Confidence: 0.6, Source: analysis.SourceText},
		ToneErr:       errors.New("inference: provider not reachable"),
	}
	recorder := &journalmock.Recorder{}
	o, err := New(client, recorder, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{
		Transcript: "eigentlich war der Tag ganz in Ordnung, nur das Meeting war zäh",
		Features:   DefaultFeatures(),
	})
	if err != nil {
		t.Fatalf("run must succeed despite a failed analysis, got %v", err)
	}

	if step := res.StepByID(StepTone); step == nil || step.Status != StatusError {
		t.Errorf("tone step: %+v", step)
	}
	if step := res.StepByID(StepEmotion); step == nil || step.Status != StatusCompleted {
		t.Errorf("emotion step: %+v", step)
	}

	entries := recorder.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected persisted entry, got %d", len(entries))
	}
	st := entries[0].Status[StepTone]
	if st.Succeeded || !strings.Contains(st.Reason, "not reachable") {
		t.Errorf("tone status: %+v", st)
	}
	if !entries[0].Status[StepEmotion].Succeeded {
		t.Errorf("emotion status: %+v", entries[0].Status[StepEmotion])
	}
	// The stored tone is the neutral fallback, still renderable.
	if entries[0].Tone == nil || entries[0].Tone.Primary != analysis.ToneNeutral {
		t.Errorf("tone fallback: %+v", entries[0].Tone)
	}
}

// TestRun_TranscriptionFailureAborts checks the prerequisite semantics:
// a failed transcription fails the run and nothing is persisted.
func TestRun_TranscriptionFailureAborts(t *testing.T) {
	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{}
	stt := &stubTranscriber{err: errors.New("whisperserver: server returned HTTP 500")}

	o, err := New(client, recorder, WithMetrics(testMetrics(t)), WithTranscriber(stt))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{WAV: []byte("RIFF..."), Features: DefaultFeatures()})
	if err == nil {
		t.Fatal("expected run failure")
	}
	if step := res.StepByID(StepTranscribe); step == nil || step.Status != StatusError {
		t.Errorf("transcribe step: %+v", step)
	}
	if step := res.StepByID(StepEmotion); step == nil || step.Status != StatusPending {
		t.Errorf("downstream steps must stay pending, emotion: %+v", step)
	}
	if len(recorder.Entries()) != 0 {
		t.Error("failed run must not persist")
	}
	if got := client.CallCount("AnalyzeEmotion"); got != 0 {
		t.Errorf("no analysis may run after a failed prerequisite, got %d calls", got)
	}
}

// TestRun_CancellationNeverPersists checks the cancellation checkpoints.
func TestRun_CancellationNeverPersists(t *testing.T) {
	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{}
	o, err := New(client, recorder, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Run(ctx, Input{Transcript: "dieser Lauf wird nie gespeichert werden", Features: DefaultFeatures()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(recorder.Entries()) != 0 {
		t.Error("cancelled run must not persist")
	}
}

// TestRun_AudioBeforeText checks the phase ordering: the acoustic
// collaborator runs strictly before any text analysis so fusion always sees
// a complete audio side.
func TestRun_AudioBeforeText(t *testing.T) {
	seq := &callSequence{}
	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{}
	audio := &seqAnalyzer{Analyzer: &audiomock.Analyzer{
		EmotionResult: analysis.Signal{Primary: analysis.EmotionJoy, Confidence: 0.7, Source: analysis.SourceAudio},
		ToneResult:    analysis.Signal{Primary: analysis.ToneFriendly, Confidence: 0.6, Source: analysis.SourceAudio},
	}, seq: seq}
	stt := &stubTranscriber{result: transcribe.Result{Text: "ein ganz normaler Tagebucheintrag über den Tag"}, seq: seq}

	o, err := New(client, recorder,
		WithMetrics(testMetrics(t)),
		WithTranscriber(stt),
		WithAudioAnalyzer(audio),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := o.Run(context.Background(), Input{WAV: []byte("RIFF..."), Features: DefaultFeatures()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := seq.all()
	if len(calls) != 3 || calls[0] != "transcribe" || calls[1] != "audio_emotion" || calls[2] != "audio_tone" {
		t.Errorf("unexpected collaborator order: %v", calls)
	}
	if client.CallCount("AnalyzeEmotion") != 1 {
		t.Errorf("text analyses must still run after the audio phase")
	}
}

// TestRun_AudioStepsSkippedWithoutAnalyzer checks the degradation path when
// no acoustic collaborator is configured.
func TestRun_AudioStepsSkippedWithoutAnalyzer(t *testing.T) {
	client := &inferencemock.Client{
		EmotionResult: &analysis.Signal{Primary: analysis.EmotionSadness, Confidence: 0.6, Source: analysis.SourceText},
	}
	recorder := &journalmock.Recorder{}
	stt := &stubTranscriber{result: transcribe.Result{Text: "heute fühlt sich alles ein bisschen schwer an"}}

	o, err := New(client, recorder, WithMetrics(testMetrics(t)), WithTranscriber(stt))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{WAV: []byte("RIFF..."), Features: DefaultFeatures()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if step := res.StepByID(StepAudioEmotion); step == nil || step.Status != StatusSkipped {
		t.Errorf("audio emotion step: %+v", step)
	}
	if res.Entry.Emotion == nil || res.Entry.Emotion.Source != analysis.SourceText {
		t.Errorf("emotion must fall back to the text side: %+v", res.Entry.Emotion)
	}
}

// cancellingAnalyzer cancels the run from inside the first acoustic call.
type cancellingAnalyzer struct {
	cancel    context.CancelFunc
	toneCalls int
}

func (a *cancellingAnalyzer) Emotion(context.Context, []byte, time.Duration, time.Duration) (analysis.Signal, error) {
	a.cancel()
	return analysis.Signal{Primary: analysis.EmotionJoy, Confidence: 0.7, Source: analysis.SourceAudio}, nil
}

func (a *cancellingAnalyzer) Tone(context.Context, []byte, time.Duration, time.Duration) (analysis.Signal, error) {
	a.toneCalls++
	return analysis.Signal{}, nil
}

// TestRun_CancelBetweenAudioCalls checks the checkpoint inside the acoustic
// phase: a run cancelled during the first call never starts the second, the
// remaining steps stay pending, and nothing is persisted.
func TestRun_CancelBetweenAudioCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{}
	audio := &cancellingAnalyzer{cancel: cancel}
	stt := &stubTranscriber{result: transcribe.Result{Text: "dieser Lauf wird mittendrin abgebrochen"}}

	o, err := New(client, recorder,
		WithMetrics(testMetrics(t)),
		WithTranscriber(stt),
		WithAudioAnalyzer(audio),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, runErr := o.Run(ctx, Input{WAV: []byte("RIFF..."), Features: DefaultFeatures()})
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	if step := res.StepByID(StepAudioTone); step == nil || step.Status != StatusPending {
		t.Errorf("audio tone step: %+v, want pending", step)
	}
	if audio.toneCalls != 0 {
		t.Errorf("acoustic tone ran %d times after cancellation", audio.toneCalls)
	}
	if len(recorder.Entries()) != 0 {
		t.Error("cancelled run must not persist")
	}
}

// TestRun_FeatureFlags checks that disabled analyses still appear in the
// step list as skipped, but never reach the client, the entry, or the
// status map.
func TestRun_FeatureFlags(t *testing.T) {
	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{}
	o, err := New(client, recorder, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{
		Transcript: "nur das Thema interessiert mich bei diesem Eintrag",
		Features:   Features{Topic: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Steps) != 8 {
		t.Fatalf("expected every analysis step plus persist, got %+v", res.Steps)
	}
	for _, id := range []string{StepEmotion, StepTone, StepFallacies, StepGFK, StepDistortions, StepFourSides} {
		if step := res.StepByID(id); step == nil || step.Status != StatusSkipped {
			t.Errorf("step %s: %+v, want skipped", id, step)
		}
	}
	if step := res.StepByID(StepTopic); step == nil || step.Status != StatusCompleted {
		t.Errorf("topic step: %+v", step)
	}
	if client.CallCount("AnalyzeEmotion") != 0 || client.CallCount("AnalyzeGFK") != 0 {
		t.Error("disabled features must not reach the client")
	}
	entry := res.Entry
	if entry.Emotion != nil || entry.Tone != nil {
		t.Errorf("disabled features must stay nil on the entry: %+v", entry)
	}
	if _, ok := entry.Status[StepEmotion]; ok {
		t.Error("disabled features must not appear in the status map")
	}
}

// TestRun_SingleDisabledFeature checks that turning one analysis off leaves
// its step skipped while the rest of the run completes normally.
func TestRun_SingleDisabledFeature(t *testing.T) {
	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{}
	o, err := New(client, recorder, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	features := DefaultFeatures()
	features.Fallacies = false
	res, err := o.Run(context.Background(), Input{
		Transcript: "ich mache immer alles falsch, das war schon wieder typisch",
		Features:   features,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if step := res.StepByID(StepFallacies); step == nil || step.Status != StatusSkipped {
		t.Errorf("fallacies step: %+v, want skipped", step)
	}
	if client.CallCount("AnalyzeArgument") != 0 {
		t.Error("disabled fallacy detection must not reach the client")
	}
	if step := res.StepByID(StepDistortions); step == nil || step.Status != StatusCompleted {
		t.Errorf("distortions step: %+v", step)
	}
	if res.Entry.Fallacies != nil {
		t.Errorf("fallacies must stay nil on the entry: %+v", res.Entry.Fallacies)
	}
	if _, ok := res.Entry.Status[StepFallacies]; ok {
		t.Error("skipped feature must not appear in the status map")
	}
}

// TestRun_PersistFailure checks that a recorder failure fails the run with
// the persist step in error state.
func TestRun_PersistFailure(t *testing.T) {
	client := &inferencemock.Client{}
	recorder := &journalmock.Recorder{RecordErr: errors.New("journal store: record: connection refused")}
	o, err := New(client, recorder, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(context.Background(), Input{
		Transcript: "dieser Eintrag erreicht die Datenbank nicht",
		Features:   Features{Topic: true},
	})
	if err == nil {
		t.Fatal("expected run failure")
	}
	if step := res.StepByID(StepPersist); step == nil || step.Status != StatusError {
		t.Errorf("persist step: %+v", step)
	}
}

// TestRun_RejectsEmptyInput checks input validation.
func TestRun_RejectsEmptyInput(t *testing.T) {
	o, err := New(&inferencemock.Client{}, &journalmock.Recorder{}, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := o.Run(context.Background(), Input{Features: DefaultFeatures()}); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := o.Run(context.Background(), Input{Transcript: "   \n ", Features: DefaultFeatures()}); err == nil {
		t.Error("expected error for whitespace transcript")
	}
	// A recording without a configured transcriber cannot run either.
	if _, err := o.Run(context.Background(), Input{WAV: []byte("RIFF..."), Features: DefaultFeatures()}); err == nil {
		t.Error("expected error for recording without transcriber")
	}
}

// TestStepSet_TerminalStatesAreSticky checks that a finished step ignores
// later transitions.
func TestStepSet_TerminalStatesAreSticky(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusError, StatusSkipped} {
		step := Step{ID: "x", Status: StatusPending}
		step.set(StatusActive, nil)
		step.set(terminal, errors.New("boom"))
		step.set(StatusActive, nil)
		if step.Status != terminal {
			t.Errorf("terminal %s was overwritten to %s", terminal, step.Status)
		}
		step.set(StatusCompleted, nil)
		if step.Status != terminal {
			t.Errorf("terminal %s was overwritten to %s", terminal, step.Status)
		}
	}
}

// TestStatusTerminal enumerates the terminal classification.
func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   false,
		StatusActive:    false,
		StatusCompleted: true,
		StatusError:     true,
		StatusSkipped:   true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
