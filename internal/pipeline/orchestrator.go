package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/echolotlabs/echolot/internal/audiosignal"
	"github.com/echolotlabs/echolot/internal/fusion"
	"github.com/echolotlabs/echolot/internal/journal"
	"github.com/echolotlabs/echolot/internal/observe"
	"github.com/echolotlabs/echolot/internal/transcribe"
	"github.com/echolotlabs/echolot/pkg/analysis"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithTranscriber sets the speech-to-text collaborator. Required for runs
// that submit a recording instead of a transcript.
func WithTranscriber(tr transcribe.Transcriber) Option {
	return func(o *Orchestrator) {
		o.stt = tr
	}
}

// WithAudioAnalyzer sets the acoustic analysis collaborator. Without one,
// audio steps are skipped and fusion degrades to text-only signals.
func WithAudioAnalyzer(a audiosignal.Analyzer) Option {
	return func(o *Orchestrator) {
		o.audio = a
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithProviderName sets the provider name recorded on entries and metric
// attributes. Defaults to "unknown".
func WithProviderName(name string) Option {
	return func(o *Orchestrator) {
		o.provider = name
	}
}

// Orchestrator drives analysis runs. It holds no per-run state; one
// instance serves concurrent runs.
type Orchestrator struct {
	client   inference.Client
	recorder journal.Recorder
	stt      transcribe.Transcriber
	audio    audiosignal.Analyzer
	metrics  *observe.Metrics
	provider string
}

// New creates an Orchestrator around the inference client and journal
// recorder. Both are required; the remaining collaborators are optional.
func New(client inference.Client, recorder journal.Recorder, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("pipeline: inference client must not be nil")
	}
	if recorder == nil {
		return nil, errors.New("pipeline: journal recorder must not be nil")
	}
	o := &Orchestrator{
		client:   client,
		recorder: recorder,
		provider: "unknown",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// run bundles the mutable state of one Run invocation. Fusion inputs live
// here rather than on the Orchestrator so concurrent runs can never read
// each other's audio signals.
type run struct {
	steps []Step

	// audio-side fusion inputs, written before the text batch starts and
	// only read afterwards
	audioEmotion *analysis.Signal
	audioTone    *analysis.Signal
}

// step returns the run's step with the given ID, or nil when the step is
// not part of this run.
func (r *run) step(id string) *Step {
	for i := range r.steps {
		if r.steps[i].ID == id {
			return &r.steps[i]
		}
	}
	return nil
}

// add appends a pending step.
func (r *run) add(id string) {
	r.steps = append(r.steps, Step{ID: id, Label: stepLabels[id], Status: StatusPending})
}

// addFeature appends the feature's step. A disabled feature enters skipped
// directly from pending, so the step list always shows the full set and the
// UI can tell "turned off" apart from "never part of this run".
func (r *run) addFeature(id string, enabled bool) {
	r.add(id)
	if !enabled {
		r.step(id).set(StatusSkipped, nil)
	}
}

// outcome is the advisory result of one analysis feature.
type outcome struct {
	ran bool
	err error
}

// status converts the outcome into the persisted per-feature record.
func (oc outcome) status() journal.FeatureStatus {
	st := journal.FeatureStatus{Succeeded: oc.err == nil}
	if oc.err != nil {
		st.Reason = oc.err.Error()
	}
	return st
}

// Run executes one analysis run. It returns the persisted entry and the
// final step states. The error is non-nil when the run as a whole failed:
// invalid input, failed transcription, cancellation, or a persistence
// failure. Individual analysis failures do not fail the run; they are
// recorded in the entry's Status map and the step states.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	transcript := strings.TrimSpace(in.Transcript)
	if len(in.WAV) == 0 && transcript == "" {
		return Result{}, errors.New("pipeline: input needs a transcript or a recording")
	}
	if len(in.WAV) > 0 && o.stt == nil {
		return Result{}, errors.New("pipeline: recording submitted but no transcriber configured")
	}

	start := time.Now()
	o.metrics.ActiveRuns.Add(ctx, 1)
	defer o.metrics.ActiveRuns.Add(context.WithoutCancel(ctx), -1)
	defer func() {
		o.metrics.RunDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
	}()

	r := &run{}
	hasAudio := len(in.WAV) > 0
	if hasAudio {
		r.add(StepTranscribe)
		r.addFeature(StepAudioEmotion, in.Features.Emotion)
		r.addFeature(StepAudioTone, in.Features.Tone)
	}
	for _, f := range []struct {
		id      string
		enabled bool
	}{
		{StepEmotion, in.Features.Emotion},
		{StepTone, in.Features.Tone},
		{StepFallacies, in.Features.Fallacies},
		{StepGFK, in.Features.GFK},
		{StepDistortions, in.Features.Distortions},
		{StepFourSides, in.Features.FourSides},
		{StepTopic, in.Features.Topic},
	} {
		r.addFeature(f.id, f.enabled)
	}
	r.add(StepPersist)

	result := Result{Steps: r.steps}

	// Phase 1: transcription prerequisite.
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("pipeline: run cancelled: %w", err)
	}
	var speech, total time.Duration
	if hasAudio {
		var err error
		transcript, speech, total, err = o.transcribePhase(ctx, r, in.WAV)
		if err != nil {
			result.Steps = r.steps
			return result, err
		}
	}

	// Phase 2: acoustic signals feeding fusion.
	if err := ctx.Err(); err != nil {
		result.Steps = r.steps
		return result, fmt.Errorf("pipeline: run cancelled: %w", err)
	}
	if hasAudio {
		o.audioPhase(ctx, r, in, speech, total)
	}

	// Phase 3: text analyses.
	if err := ctx.Err(); err != nil {
		result.Steps = r.steps
		return result, fmt.Errorf("pipeline: run cancelled: %w", err)
	}
	entry := o.textPhase(ctx, r, in.Features, transcript)
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	entry.Transcript = transcript
	entry.Speech = speech
	entry.Total = total
	entry.Provider = o.provider

	// Phase 4: persistence. Cancelled runs never reach the recorder.
	if err := ctx.Err(); err != nil {
		result.Steps = r.steps
		return result, fmt.Errorf("pipeline: run cancelled: %w", err)
	}
	persist := r.step(StepPersist)
	persist.set(StatusActive, nil)
	if err := o.recorder.Record(ctx, entry); err != nil {
		persist.set(StatusError, err)
		result.Steps = r.steps
		result.Entry = entry
		return result, fmt.Errorf("pipeline: persist entry: %w", err)
	}
	persist.set(StatusCompleted, nil)

	observe.Logger(ctx).Info("pipeline run completed",
		slog.String("entry_id", entry.ID.String()),
		slog.String("provider", o.provider),
		slog.Duration("duration", time.Since(start)),
	)

	result.Steps = r.steps
	result.Entry = entry
	return result, nil
}

// transcribePhase runs the transcription step. Its error fails the run;
// everything downstream needs the transcript.
func (o *Orchestrator) transcribePhase(ctx context.Context, r *run, wav []byte) (string, time.Duration, time.Duration, error) {
	step := r.step(StepTranscribe)
	step.set(StatusActive, nil)

	stageStart := time.Now()
	res, err := o.stt.Transcribe(ctx, wav)
	o.metrics.RecordStage(context.WithoutCancel(ctx), StepTranscribe, time.Since(stageStart).Seconds())
	if err != nil {
		step.set(StatusError, err)
		return "", 0, 0, fmt.Errorf("pipeline: transcribe: %w", err)
	}
	step.set(StatusCompleted, nil)
	return res.Text, res.Speech, res.Total, nil
}

// audioPhase fills the run's fusion inputs from the acoustic collaborator.
// Failures are advisory: the affected signal stays nil and fusion falls
// back to the text side.
func (o *Orchestrator) audioPhase(ctx context.Context, r *run, in Input, speech, total time.Duration) {
	type call struct {
		id   string
		fn   func(context.Context, []byte, time.Duration, time.Duration) (analysis.Signal, error)
		dest **analysis.Signal
	}
	calls := []call{}
	if in.Features.Emotion {
		calls = append(calls, call{StepAudioEmotion, nil, &r.audioEmotion})
	}
	if in.Features.Tone {
		calls = append(calls, call{StepAudioTone, nil, &r.audioTone})
	}
	if o.audio != nil {
		for i := range calls {
			if calls[i].id == StepAudioEmotion {
				calls[i].fn = o.audio.Emotion
			} else {
				calls[i].fn = o.audio.Tone
			}
		}
	}

	for _, c := range calls {
		// Checkpoint between acoustic calls: a cancelled run leaves the
		// remaining steps pending and Run reports it at the next phase.
		if ctx.Err() != nil {
			return
		}
		step := r.step(c.id)
		if c.fn == nil {
			step.set(StatusSkipped, nil)
			continue
		}
		step.set(StatusActive, nil)
		stageStart := time.Now()
		sig, err := c.fn(ctx, in.WAV, speech, total)
		o.metrics.RecordStage(context.WithoutCancel(ctx), c.id, time.Since(stageStart).Seconds())
		if err != nil {
			step.set(StatusError, err)
			observe.Logger(ctx).Warn("acoustic analysis failed",
				slog.String("step", c.id), slog.String("error", err.Error()))
			continue
		}
		sig.Source = analysis.SourceAudio
		*c.dest = &sig
		step.set(StatusCompleted, nil)
	}
}

// textPhase runs every enabled text analysis concurrently and assembles the
// entry's analysis payload. Each goroutine writes only its own step entry
// and its own result variable; the fusion inputs are read-only here.
func (o *Orchestrator) textPhase(ctx context.Context, r *run, features Features, transcript string) journal.Entry {
	var (
		emotionSig  analysis.Signal
		toneSig     analysis.Signal
		fallacies   []analysis.Fallacy
		gfk         analysis.GFK
		distortions []analysis.Distortion
		fourSides   analysis.FourSides
		topic       analysis.Topic

		ocEmotion, ocTone, ocFallacies, ocGFK outcome
		ocDistortions, ocFourSides, ocTopic   outcome
	)

	// Snapshot of the fusion inputs shared by all goroutines.
	audioEmotion, audioTone := r.audioEmotion, r.audioTone

	g, gctx := errgroup.WithContext(ctx)

	// analyze wraps one feature goroutine: step transitions, stage timing,
	// and the analysis counters.
	analyze := func(id string, oc *outcome, fn func(context.Context) error) {
		g.Go(func() error {
			step := r.step(id)
			step.set(StatusActive, nil)
			oc.ran = true

			stageStart := time.Now()
			err := fn(gctx)
			o.metrics.RecordStage(context.WithoutCancel(gctx), id, time.Since(stageStart).Seconds())

			oc.err = err
			if err != nil {
				step.set(StatusError, err)
				o.metrics.RecordAnalysis(context.WithoutCancel(gctx), o.provider, id, "error")
				o.metrics.RecordAnalysisError(context.WithoutCancel(gctx), o.provider, id)
				return nil
			}
			step.set(StatusCompleted, nil)
			o.metrics.RecordAnalysis(context.WithoutCancel(gctx), o.provider, id, "ok")
			return nil
		})
	}

	if features.Emotion {
		analyze(StepEmotion, &ocEmotion, func(ctx context.Context) error {
			sig, err := o.client.AnalyzeEmotion(ctx, transcript)
			if err != nil && audioEmotion != nil {
				// Text side failed; the acoustic signal carries the entry.
				emotionSig = fusion.Fuse(audioEmotion, nil, fusion.Emotion)
				return err
			}
			emotionSig = fusion.Fuse(audioEmotion, &sig, fusion.Emotion)
			return err
		})
	}
	if features.Tone {
		analyze(StepTone, &ocTone, func(ctx context.Context) error {
			sig, err := o.client.AnalyzeTone(ctx, transcript)
			if err != nil && audioTone != nil {
				toneSig = fusion.Fuse(audioTone, nil, fusion.Tone)
				return err
			}
			toneSig = fusion.Fuse(audioTone, &sig, fusion.Tone)
			return err
		})
	}
	if features.Fallacies {
		analyze(StepFallacies, &ocFallacies, func(ctx context.Context) error {
			var err error
			fallacies, err = o.client.AnalyzeArgument(ctx, transcript)
			return err
		})
	}
	if features.GFK {
		analyze(StepGFK, &ocGFK, func(ctx context.Context) error {
			var err error
			gfk, err = o.client.AnalyzeGFK(ctx, transcript)
			return err
		})
	}
	if features.Distortions {
		analyze(StepDistortions, &ocDistortions, func(ctx context.Context) error {
			var err error
			distortions, err = o.client.AnalyzeCognitiveDistortions(ctx, transcript)
			return err
		})
	}
	if features.FourSides {
		analyze(StepFourSides, &ocFourSides, func(ctx context.Context) error {
			var err error
			fourSides, err = o.client.AnalyzeFourSides(ctx, transcript)
			return err
		})
	}
	if features.Topic {
		analyze(StepTopic, &ocTopic, func(ctx context.Context) error {
			var err error
			topic, err = o.client.ClassifyTopic(ctx, transcript)
			return err
		})
	}

	// Goroutines only report advisory errors, so Wait never fails.
	_ = g.Wait()

	entry := journal.Entry{Status: map[string]journal.FeatureStatus{}}
	if ocEmotion.ran {
		entry.Emotion = &emotionSig
		point := fusion.EmotionPoint(emotionSig)
		entry.EmotionPoint = &point
		entry.Status[StepEmotion] = ocEmotion.status()
	}
	if ocTone.ran {
		entry.Tone = &toneSig
		entry.Status[StepTone] = ocTone.status()
	}
	if ocFallacies.ran {
		entry.Fallacies = fallacies
		entry.Status[StepFallacies] = ocFallacies.status()
	}
	if ocGFK.ran {
		entry.GFK = &gfk
		entry.Status[StepGFK] = ocGFK.status()
	}
	if ocDistortions.ran {
		entry.Distortions = distortions
		entry.Status[StepDistortions] = ocDistortions.status()
	}
	if ocFourSides.ran {
		entry.FourSides = &fourSides
		entry.Status[StepFourSides] = ocFourSides.status()
	}
	if ocTopic.ran {
		entry.Topic = &topic
		entry.Status[StepTopic] = ocTopic.status()
	}
	return entry
}
