package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/echolotlabs/echolot/internal/journal"
	"github.com/echolotlabs/echolot/internal/pipeline"
	"github.com/echolotlabs/echolot/pkg/analysis"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// maxBodyBytes caps request bodies. Audio uploads dominate: a quarter hour
// of 16 kHz mono PCM is under 30 MiB even with base64 overhead.
const maxBodyBytes = 32 << 20

// defaultListLimit applies when a list request names no limit.
const defaultListLimit = 20

// maxListLimit caps list requests.
const maxListLimit = 100

// ─── Request / response shapes ───────────────────────────────────────────────

// analyzeRequest submits one journal recording or transcript for analysis.
// Audio is base64-encoded WAV; when present it takes precedence and the
// transcript field is ignored.
type analyzeRequest struct {
	Transcript       string   `json:"transcript"`
	Audio            []byte   `json:"audio"`
	DisabledFeatures []string `json:"disabledFeatures"`
}

type analyzeResponse struct {
	Entry entryPayload  `json:"entry"`
	Steps []stepPayload `json:"steps"`
}

type chatRequest struct {
	Messages []analysis.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type entriesResponse struct {
	Entries []entryPayload `json:"entries"`
}

// stepPayload is the wire form of one pipeline step.
type stepPayload struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// entryPayload is the wire form of a journal entry. Durations travel as
// seconds so clients never parse Go duration strings.
type entryPayload struct {
	ID            string                           `json:"id"`
	CreatedAt     time.Time                        `json:"createdAt"`
	Transcript    string                           `json:"transcript"`
	SpeechSeconds float64                          `json:"speechSeconds"`
	TotalSeconds  float64                          `json:"totalSeconds"`
	Provider      string                           `json:"provider"`
	Emotion       *analysis.Signal                 `json:"emotion,omitempty"`
	EmotionPoint  *analysis.Point                  `json:"emotionPoint,omitempty"`
	Tone          *analysis.Signal                 `json:"tone,omitempty"`
	Fallacies     []analysis.Fallacy               `json:"fallacies,omitempty"`
	GFK           *analysis.GFK                    `json:"gfk,omitempty"`
	Distortions   []analysis.Distortion            `json:"distortions,omitempty"`
	FourSides     *analysis.FourSides              `json:"fourSides,omitempty"`
	Topic         *analysis.Topic                  `json:"topic,omitempty"`
	Status        map[string]journal.FeatureStatus `json:"status,omitempty"`
}

func toEntryPayload(e journal.Entry) entryPayload {
	return entryPayload{
		ID:            e.ID.String(),
		CreatedAt:     e.CreatedAt,
		Transcript:    e.Transcript,
		SpeechSeconds: e.Speech.Seconds(),
		TotalSeconds:  e.Total.Seconds(),
		Provider:      e.Provider,
		Emotion:       e.Emotion,
		EmotionPoint:  e.EmotionPoint,
		Tone:          e.Tone,
		Fallacies:     e.Fallacies,
		GFK:           e.GFK,
		Distortions:   e.Distortions,
		FourSides:     e.FourSides,
		Topic:         e.Topic,
		Status:        e.Status,
	}
}

func toStepPayloads(steps []pipeline.Step) []stepPayload {
	out := make([]stepPayload, len(steps))
	for i, st := range steps {
		out[i] = stepPayload{
			ID:     st.ID,
			Label:  st.Label,
			Status: string(st.Status),
		}
		if st.Err != nil {
			out[i].Error = st.Err.Error()
		}
	}
	return out
}

// ─── Feature resolution ──────────────────────────────────────────────────────

// featureSetters maps the public feature names onto the pipeline flags.
var featureSetters = map[string]func(*pipeline.Features){
	"emotion":     func(f *pipeline.Features) { f.Emotion = false },
	"tone":        func(f *pipeline.Features) { f.Tone = false },
	"fallacies":   func(f *pipeline.Features) { f.Fallacies = false },
	"gfk":         func(f *pipeline.Features) { f.GFK = false },
	"distortions": func(f *pipeline.Features) { f.Distortions = false },
	"four_sides":  func(f *pipeline.Features) { f.FourSides = false },
	"topic":       func(f *pipeline.Features) { f.Topic = false },
}

// resolveFeatures starts from the full set, removes the configured
// exclusions, then the per-request ones. Unknown request names are an error;
// they are usually typos that would silently run an unwanted analysis.
func (s *Server) resolveFeatures(requested []string) (pipeline.Features, error) {
	features := pipeline.DefaultFeatures()
	for _, name := range s.disabled {
		if set, ok := featureSetters[name]; ok {
			set(&features)
		}
	}
	for _, name := range requested {
		set, ok := featureSetters[name]
		if !ok {
			return features, fmt.Errorf("unknown feature %q", name)
		}
		set(&features)
	}
	return features, nil
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Audio) == 0 && req.Transcript == "" {
		writeError(w, http.StatusBadRequest, "request needs a transcript or audio")
		return
	}

	features, err := s.resolveFeatures(req.DisabledFeatures)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.runner.Run(r.Context(), pipeline.Input{
		Transcript: req.Transcript,
		WAV:        req.Audio,
		Features:   features,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; there is nobody left to answer.
			return
		}
		slog.ErrorContext(r.Context(), "analysis run failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"steps": toStepPayloads(result.Steps),
		})
		return
	}

	writeJSON(w, http.StatusCreated, analyzeResponse{
		Entry: toEntryPayload(result.Entry),
		Steps: toStepPayloads(result.Steps),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "request needs at least one message")
		return
	}

	reply, err := s.client.GenerateChat(r.Context(), req.Messages)
	if err != nil {
		writeInferenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleChatSummary(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "request needs at least one message")
		return
	}

	summary, err := s.client.GenerateChatSummary(r.Context(), req.Messages)
	if err != nil {
		writeInferenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	var (
		entries []journal.Entry
		err     error
	)
	if query := r.URL.Query().Get("q"); query != "" {
		entries, err = s.recorder.Search(r.Context(), query, limit)
	} else {
		entries, err = s.recorder.Recent(r.Context(), limit)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "journal list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}

	payload := entriesResponse{Entries: make([]entryPayload, 0, len(entries))}
	for _, e := range entries {
		payload.Entries = append(payload.Entries, toEntryPayload(e))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := s.recorder.Get(r.Context(), id)
	switch {
	case errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	case err != nil:
		slog.ErrorContext(r.Context(), "journal get failed", "err", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
	default:
		writeJSON(w, http.StatusOK, toEntryPayload(entry))
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// decodeJSON decodes the request body into v with strict field checking.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// writeInferenceError maps the inference sentinel classes onto HTTP status
// codes: rejected input is the caller's problem, an unusable backend is a
// temporary service condition, anything else is an upstream failure.
func writeInferenceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inference.ErrInjectionDetected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inference.ErrNoCredential),
		errors.Is(err, inference.ErrModelMissing),
		errors.Is(err, inference.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
