// Package ollama provides the local inference provider backed by a running
// Ollama server.
//
// Ollama (https://ollama.com) hosts local language models. Analyses go
// through the native /api/generate endpoint with stream:false; chat goes
// through /api/chat, where a system instruction travels as an ordinary
// system-role entry inside the message array. Availability probing uses
// /api/tags and distinguishes a reachable server without the configured
// model (model missing) from an unreachable server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echolotlabs/echolot/internal/guard"
	"github.com/echolotlabs/echolot/pkg/analysis"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// DefaultBaseURL is the default base URL for a locally running Ollama
// instance.
const DefaultBaseURL = "http://localhost:11434"

// Compile-time interface checks.
var (
	_ inference.Client    = (*Client)(nil)
	_ inference.Transport = (*Client)(nil)
)

// Client implements inference.Client against a local Ollama server. It is
// safe for concurrent use.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	guard      *guard.Guard
}

// New constructs a Client for cfg with the injected request timeout. The
// model must be set; an empty base URL falls back to DefaultBaseURL.
func New(cfg inference.Config, timeout time.Duration) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := &http.Client{}
	if timeout > 0 {
		httpClient.Timeout = timeout
	}

	return &Client{
		baseURL:    baseURL,
		model:      cfg.Model,
		httpClient: httpClient,
		guard:      guard.New(),
	}, nil
}

// generateRequest is the JSON body for Ollama's /api/generate endpoint.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

// generateResponse is the JSON body returned by /api/generate.
type generateResponse struct {
	Response string `json:"response"`
}

// Complete implements inference.Transport via /api/generate.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  user,
		System:  system,
		Stream:  false,
		Options: generateOptions{Temperature: 0.1},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	var resp generateResponse
	if err := c.postJSON(ctx, "/api/generate", body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// chatRequest is the JSON body for Ollama's /api/chat endpoint. The system
// instruction is just another message in the array.
type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []analysis.ChatMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
}

// chatResponse is the JSON body returned by /api/chat.
type chatResponse struct {
	Message analysis.ChatMessage `json:"message"`
}

// chat sends a role-tagged conversation through /api/chat. A system
// instruction is merged into the message array when the caller supplied
// none.
func (c *Client) chat(ctx context.Context, system string, messages []analysis.ChatMessage) (string, error) {
	msgs := messages
	if system != "" && (len(msgs) == 0 || msgs[0].Role != "system") {
		msgs = append([]analysis.ChatMessage{{Role: "system", Content: system}}, msgs...)
	}

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: msgs, Stream: false})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal chat request: %w", err)
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/api/chat", body, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// postJSON posts body to path and decodes the JSON answer into out.
func (c *Client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ollama: read response body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ollama: parse JSON response: %w", err)
	}
	return nil
}

// AnalyzeEmotion implements inference.Client.
func (c *Client) AnalyzeEmotion(ctx context.Context, text string) (analysis.Signal, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		analysis.NeutralEmotion(), inference.EmotionPrompt, inference.ParseEmotion)
}

// AnalyzeArgument implements inference.Client.
func (c *Client) AnalyzeArgument(ctx context.Context, text string) ([]analysis.Fallacy, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		[]analysis.Fallacy{}, inference.ArgumentPrompt, inference.ParseFallacies)
}

// AnalyzeTone implements inference.Client.
func (c *Client) AnalyzeTone(ctx context.Context, text string) (analysis.Signal, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		analysis.NeutralTone(), inference.TonePrompt, inference.ParseTone)
}

// AnalyzeGFK implements inference.Client.
func (c *Client) AnalyzeGFK(ctx context.Context, text string) (analysis.GFK, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		analysis.GFK{}, inference.GFKPrompt, inference.ParseGFK)
}

// AnalyzeCognitiveDistortions implements inference.Client.
func (c *Client) AnalyzeCognitiveDistortions(ctx context.Context, text string) ([]analysis.Distortion, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		[]analysis.Distortion{}, inference.DistortionsPrompt, inference.ParseDistortions)
}

// AnalyzeFourSides implements inference.Client.
func (c *Client) AnalyzeFourSides(ctx context.Context, text string) (analysis.FourSides, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		analysis.FourSides{}, inference.FourSidesPrompt, inference.ParseFourSides)
}

// ClassifyTopic implements inference.Client.
func (c *Client) ClassifyTopic(ctx context.Context, text string) (analysis.Topic, error) {
	return inference.Analyze(ctx, c.guard, c, text,
		analysis.DefaultTopic(), inference.TopicPrompt, inference.ParseTopic)
}

// GenerateChat implements inference.Client.
func (c *Client) GenerateChat(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	if err := inference.GuardChat(c.guard, messages); err != nil {
		return inference.DefaultChatReply, err
	}
	reply, err := c.chat(ctx, inference.ChatSystem, messages)
	if err != nil {
		return inference.DefaultChatReply, fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	return reply, nil
}

// GenerateChatSummary implements inference.Client.
func (c *Client) GenerateChatSummary(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	if err := inference.GuardChat(c.guard, messages); err != nil {
		return "", err
	}
	raw, err := c.Complete(ctx, inference.ChatSummarySystem, renderConversation(messages))
	if err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	return strings.TrimSpace(raw), nil
}

// renderConversation flattens a role-tagged conversation for the summary
// prompt.
func renderConversation(messages []analysis.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// tagsResponse is the JSON body returned by /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// IsAvailable implements inference.Client. It probes /api/tags and reports
// ErrModelMissing when the server answers but does not have the configured
// model installed.
func (c *Client) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: server returned HTTP %d", inference.ErrUnavailable, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}

	for _, m := range tags.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", inference.ErrModelMissing, c.model)
}
