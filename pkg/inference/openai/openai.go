// Package openai provides the first cloud inference provider, backed by the
// OpenAI chat-completions API.
//
// The client pins one internal model regardless of the configured model
// string; the Registry's fingerprint rules rely on this. A system
// instruction travels as a system-role entry inside the message array —
// contrast with the Anthropic variant, which sends it as a distinct
// top-level field.
//
// The API key comes from the credential vault on first use; availability
// checks report a missing key before attempting any network call.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/echolotlabs/echolot/internal/guard"
	"github.com/echolotlabs/echolot/internal/vault"
	"github.com/echolotlabs/echolot/pkg/analysis"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// internalModel is the fixed model every analysis runs on. The configured
// model string is deliberately ignored (see inference.Registry).
const internalModel = oai.ChatModelGPT4oMini

// vaultProvider is the credential name used against the vault.
const vaultProvider = "openai"

// Compile-time interface checks.
var (
	_ inference.Client    = (*Client)(nil)
	_ inference.Transport = (*Client)(nil)
)

// Client implements inference.Client against the OpenAI API. It is safe for
// concurrent use.
type Client struct {
	vault   *vault.Client
	timeout time.Duration
	baseURL string
	guard   *guard.Guard

	mu    sync.Mutex
	api   oai.Client
	built bool
}

// Option is a functional option for Client.
type Option func(*Client)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New constructs a Client with the injected request timeout. The API key is
// not read here; it is fetched from the vault lazily so that a key stored
// after construction is picked up without rebuilding the client.
func New(vlt *vault.Client, timeout time.Duration, opts ...Option) (*Client, error) {
	if vlt == nil {
		return nil, fmt.Errorf("openai: vault must not be nil")
	}
	c := &Client{
		vault:   vlt,
		timeout: timeout,
		guard:   guard.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// client returns the SDK client, building it on first use from the vaulted
// API key. Returns inference.ErrNoCredential when no key is stored.
func (c *Client) client(ctx context.Context) (oai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return c.api, nil
	}

	key, err := c.vault.APIKey(ctx, vaultProvider)
	if err != nil {
		return oai.Client{}, fmt.Errorf("openai: read credential: %w", err)
	}
	if key == "" {
		return oai.Client{}, inference.ErrNoCredential
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if c.timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: c.timeout}))
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	c.api = oai.NewClient(opts...)
	c.built = true
	return c.api, nil
}

// Complete implements inference.Transport via a single chat completion with
// the system instruction riding in the message array.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, []analysis.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
}

// complete sends a full role-tagged conversation as one chat completion.
func (c *Client) complete(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	api, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	params := oai.ChatCompletionNewParams{
		Model:    internalModel,
		Messages: make([]oai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, oai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, oai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, oai.UserMessage(m.Content))
		}
	}

	resp, err := api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
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

	msgs := messages
	if len(msgs) == 0 || msgs[0].Role != "system" {
		msgs = append([]analysis.ChatMessage{{Role: "system", Content: inference.ChatSystem}}, msgs...)
	}

	reply, err := c.complete(ctx, msgs)
	if err != nil {
		return inference.DefaultChatReply, fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	return strings.TrimSpace(reply), nil
}

// GenerateChatSummary implements inference.Client.
func (c *Client) GenerateChatSummary(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	if err := inference.GuardChat(c.guard, messages); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	raw, err := c.Complete(ctx, inference.ChatSummarySystem, b.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	return strings.TrimSpace(raw), nil
}

// IsAvailable implements inference.Client. Credential presence is checked
// first — a missing key short-circuits to ErrNoCredential without any
// network traffic — and only then a lightweight models-list probe runs.
func (c *Client) IsAvailable(ctx context.Context) error {
	key, err := c.vault.APIKey(ctx, vaultProvider)
	if err != nil {
		return fmt.Errorf("%w: %v", inference.ErrNoCredential, err)
	}
	if key == "" {
		return inference.ErrNoCredential
	}

	api, err := c.client(ctx)
	if err != nil {
		return err
	}
	if _, err := api.Models.List(ctx); err != nil {
		return fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	return nil
}
