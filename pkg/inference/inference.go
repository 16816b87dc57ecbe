// Package inference defines the Client interface for Echolot's analysis
// providers and the shared machinery every provider variant builds on: the
// guarded-call helper that runs the injection check and short-input
// pre-filter, the prompt templates, tolerant model-output parsing, and the
// Registry that caches one constructed client per configuration fingerprint.
//
// A provider client wraps a local Ollama server, the OpenAI chat-completions
// API, or the Anthropic messages API behind one uniform interface, so the
// pipeline orchestrator never needs provider-specific handling. Analysis
// methods never fail hard: on any guard rejection, transport failure or
// unparseable model output they return the analysis kind's neutral default
// together with an advisory error. Callers may ignore the error and still
// hold a usable result.
//
// Implementors must be safe for concurrent use.
package inference

import (
	"context"
	"errors"
	"time"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// Provider identifies an inference backend.
type Provider string

const (
	// ProviderOllama is a locally running Ollama server. The configured
	// model and base URL select which local model answers.
	ProviderOllama Provider = "ollama"

	// ProviderOpenAI is the OpenAI chat-completions API. The client pins an
	// internal model; a configured model name is ignored.
	ProviderOpenAI Provider = "openai"

	// ProviderAnthropic is the Anthropic messages API. The client pins an
	// internal model; a configured model name is ignored.
	ProviderAnthropic Provider = "anthropic"
)

// IsValid reports whether p is a recognised provider.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic:
		return true
	}
	return false
}

// Config selects and parameterises an inference provider. It is an immutable
// value; cache identity is derived from it per provider rules (see
// [Registry]).
type Config struct {
	Provider Provider
	Model    string
	BaseURL  string
	APIKey   string
}

// DefaultConfig returns the configuration used when a caller supplies none:
// a local Ollama server with its stock model.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderOllama,
		Model:    "llama3.2",
		BaseURL:  "http://localhost:11434",
	}
}

// timeouts maps each provider to the request timeout injected into its
// client at construction time. Local generation on CPU hardware can take
// minutes; the cloud APIs answer within seconds or not at all.
var timeouts = map[Provider]time.Duration{
	ProviderOllama:    120 * time.Second,
	ProviderOpenAI:    30 * time.Second,
	ProviderAnthropic: 30 * time.Second,
}

// Timeout returns the request timeout for provider p.
func Timeout(p Provider) time.Duration {
	return timeouts[p]
}

// Sentinel errors classifying why an analysis fell back to its default or
// why a provider is not usable. Analysis methods attach these to otherwise
// valid default results; IsAvailable returns them bare.
var (
	// ErrInjectionDetected marks input that matched an injection-guard
	// pattern. The input never reached a model.
	ErrInjectionDetected = errors.New("inference: suspicious input rejected")

	// ErrUnavailable marks a transport failure, timeout or non-OK response.
	ErrUnavailable = errors.New("inference: provider unavailable")

	// ErrModelMissing marks a reachable local server that does not have the
	// configured model installed.
	ErrModelMissing = errors.New("inference: configured model not installed")

	// ErrNoCredential marks a cloud provider whose API key is absent from
	// the credential vault.
	ErrNoCredential = errors.New("inference: no API key stored")
)

// Client is the uniform contract implemented by every provider variant.
//
// All analysis methods follow the same discipline: the returned value is
// always usable (the kind's neutral default on any failure) and the error is
// advisory — it explains a fallback but must never abort sibling analyses.
type Client interface {
	// AnalyzeEmotion classifies the dominant emotion of a journal passage.
	AnalyzeEmotion(ctx context.Context, text string) (analysis.Signal, error)

	// AnalyzeArgument detects logical fallacies in the passage.
	AnalyzeArgument(ctx context.Context, text string) ([]analysis.Fallacy, error)

	// AnalyzeTone classifies the communication tone of the passage.
	AnalyzeTone(ctx context.Context, text string) (analysis.Signal, error)

	// AnalyzeGFK extracts the four nonviolent-communication components.
	AnalyzeGFK(ctx context.Context, text string) (analysis.GFK, error)

	// AnalyzeCognitiveDistortions detects cognitive distortions.
	AnalyzeCognitiveDistortions(ctx context.Context, text string) ([]analysis.Distortion, error)

	// AnalyzeFourSides reads the passage through the four-sides model.
	AnalyzeFourSides(ctx context.Context, text string) (analysis.FourSides, error)

	// ClassifyTopic assigns one of the known journal topics.
	ClassifyTopic(ctx context.Context, text string) (analysis.Topic, error)

	// GenerateChat produces the next reflective-companion reply for a
	// role-tagged conversation. How a system-role message travels on the
	// wire is provider-specific: merged into the message array (Ollama,
	// OpenAI) or sent as a distinct top-level field (Anthropic).
	GenerateChat(ctx context.Context, messages []analysis.ChatMessage) (string, error)

	// GenerateChatSummary condenses a conversation into a short summary.
	GenerateChatSummary(ctx context.Context, messages []analysis.ChatMessage) (string, error)

	// IsAvailable probes whether the provider can serve requests right now.
	// It returns nil when usable, ErrNoCredential when a cloud key is absent
	// (checked before any network call), ErrModelMissing when a local server
	// is reachable but lacks the configured model, and ErrUnavailable
	// otherwise.
	IsAvailable(ctx context.Context) error
}
