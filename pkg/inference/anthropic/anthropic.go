// Package anthropic provides the second cloud inference provider, backed by
// the Anthropic messages API.
//
// Like the OpenAI variant it pins one internal model and ignores the
// configured model string. Its transport shape differs in one way that
// matters to callers of GenerateChat: a system instruction is sent as the
// top-level System field of the request, never as an entry in the message
// array. The SDK carries the provider-specific headers.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	ant "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/echolotlabs/echolot/internal/guard"
	"github.com/echolotlabs/echolot/internal/vault"
	"github.com/echolotlabs/echolot/pkg/analysis"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// internalModel is the fixed model every analysis runs on.
const internalModel = ant.Model("claude-3-5-haiku-latest")

// maxTokens caps every completion; analyses answer in compact JSON and chat
// replies stay short by instruction.
const maxTokens = 1024

// vaultProvider is the credential name used against the vault.
const vaultProvider = "anthropic"

// Compile-time interface checks.
var (
	_ inference.Client    = (*Client)(nil)
	_ inference.Transport = (*Client)(nil)
)

// Client implements inference.Client against the Anthropic API. It is safe
// for concurrent use.
type Client struct {
	vault   *vault.Client
	timeout time.Duration
	baseURL string
	guard   *guard.Guard

	mu    sync.Mutex
	api   ant.Client
	built bool
}

// Option is a functional option for Client.
type Option func(*Client)

// WithBaseURL overrides the default Anthropic API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New constructs a Client with the injected request timeout. The API key is
// fetched from the vault lazily on first use.
func New(vlt *vault.Client, timeout time.Duration, opts ...Option) (*Client, error) {
	if vlt == nil {
		return nil, fmt.Errorf("anthropic: vault must not be nil")
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
func (c *Client) client(ctx context.Context) (ant.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return c.api, nil
	}

	key, err := c.vault.APIKey(ctx, vaultProvider)
	if err != nil {
		return ant.Client{}, fmt.Errorf("anthropic: read credential: %w", err)
	}
	if key == "" {
		return ant.Client{}, inference.ErrNoCredential
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if c.timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: c.timeout}))
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	c.api = ant.NewClient(opts...)
	c.built = true
	return c.api, nil
}

// complete sends one messages-API request. The system instruction goes into
// the top-level System field; system-role entries in messages are folded
// into it rather than sent in the array, which the API rejects.
func (c *Client) complete(ctx context.Context, system string, messages []analysis.ChatMessage) (string, error) {
	api, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	params := ant.MessageNewParams{
		Model:     internalModel,
		MaxTokens: maxTokens,
	}

	var sys []string
	if system != "" {
		sys = append(sys, system)
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			sys = append(sys, m.Content)
		case "assistant":
			params.Messages = append(params.Messages, ant.NewAssistantMessage(ant.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, ant.NewUserMessage(ant.NewTextBlock(m.Content)))
		}
	}
	if len(sys) > 0 {
		params.System = []ant.TextBlockParam{{Text: strings.Join(sys, "\n\n")}}
	}

	resp, err := api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: no text content in response")
	}
	return b.String(), nil
}

// Complete implements inference.Transport.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, []analysis.ChatMessage{{Role: "user", Content: user}})
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

// GenerateChat implements inference.Client. System-role messages are routed
// to the top-level System field by complete.
func (c *Client) GenerateChat(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	if err := inference.GuardChat(c.guard, messages); err != nil {
		return inference.DefaultChatReply, err
	}

	system := ""
	if len(messages) == 0 || messages[0].Role != "system" {
		system = inference.ChatSystem
	}

	reply, err := c.complete(ctx, system, messages)
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
// before any network call; only with a key present does a minimal one-token
// probe run.
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

	_, err = api.Messages.New(ctx, ant.MessageNewParams{
		Model:     internalModel,
		MaxTokens: 1,
		Messages:  []ant.MessageParam{ant.NewUserMessage(ant.NewTextBlock("ping"))},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", inference.ErrUnavailable, err)
	}
	return nil
}
