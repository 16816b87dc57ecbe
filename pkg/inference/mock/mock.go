// Package mock provides a scripted inference.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/echolotlabs/echolot/pkg/analysis"
	"github.com/echolotlabs/echolot/pkg/inference"
)

// Compile-time interface check.
var _ inference.Client = (*Client)(nil)

// Client is a scripted inference.Client. Zero-value fields yield the
// analysis kind's neutral default with a nil error; set a result or error
// field to script behaviour. Client records every call and is safe for
// concurrent use.
type Client struct {
	mu sync.Mutex

	EmotionResult     *analysis.Signal
	EmotionErr        error
	ToneResult        *analysis.Signal
	ToneErr           error
	Fallacies         []analysis.Fallacy
	FallaciesErr      error
	GFKResult         analysis.GFK
	GFKErr            error
	Distortions       []analysis.Distortion
	DistortionsErr    error
	FourSidesResult   analysis.FourSides
	FourSidesErr      error
	TopicResult       *analysis.Topic
	TopicErr          error
	ChatReply         string
	ChatErr           error
	SummaryReply      string
	SummaryErr        error
	AvailabilityError error

	// Calls lists the method names invoked, in order.
	Calls []string
}

func (c *Client) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, name)
}

// CallCount returns how often the named method was invoked.
func (c *Client) CallCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.Calls {
		if call == name {
			n++
		}
	}
	return n
}

// AnalyzeEmotion implements inference.Client.
func (c *Client) AnalyzeEmotion(context.Context, string) (analysis.Signal, error) {
	c.record("AnalyzeEmotion")
	if c.EmotionResult != nil {
		return *c.EmotionResult, c.EmotionErr
	}
	return analysis.NeutralEmotion(), c.EmotionErr
}

// AnalyzeArgument implements inference.Client.
func (c *Client) AnalyzeArgument(context.Context, string) ([]analysis.Fallacy, error) {
	c.record("AnalyzeArgument")
	return c.Fallacies, c.FallaciesErr
}

// AnalyzeTone implements inference.Client.
func (c *Client) AnalyzeTone(context.Context, string) (analysis.Signal, error) {
	c.record("AnalyzeTone")
	if c.ToneResult != nil {
		return *c.ToneResult, c.ToneErr
	}
	return analysis.NeutralTone(), c.ToneErr
}

// AnalyzeGFK implements inference.Client.
func (c *Client) AnalyzeGFK(context.Context, string) (analysis.GFK, error) {
	c.record("AnalyzeGFK")
	return c.GFKResult, c.GFKErr
}

// AnalyzeCognitiveDistortions implements inference.Client.
func (c *Client) AnalyzeCognitiveDistortions(context.Context, string) ([]analysis.Distortion, error) {
	c.record("AnalyzeCognitiveDistortions")
	return c.Distortions, c.DistortionsErr
}

// AnalyzeFourSides implements inference.Client.
func (c *Client) AnalyzeFourSides(context.Context, string) (analysis.FourSides, error) {
	c.record("AnalyzeFourSides")
	return c.FourSidesResult, c.FourSidesErr
}

// ClassifyTopic implements inference.Client.
func (c *Client) ClassifyTopic(context.Context, string) (analysis.Topic, error) {
	c.record("ClassifyTopic")
	if c.TopicResult != nil {
		return *c.TopicResult, c.TopicErr
	}
	return analysis.DefaultTopic(), c.TopicErr
}

// GenerateChat implements inference.Client.
func (c *Client) GenerateChat(context.Context, []analysis.ChatMessage) (string, error) {
	c.record("GenerateChat")
	return c.ChatReply, c.ChatErr
}

// GenerateChatSummary implements inference.Client.
func (c *Client) GenerateChatSummary(context.Context, []analysis.ChatMessage) (string, error) {
	c.record("GenerateChatSummary")
	return c.SummaryReply, c.SummaryErr
}

// IsAvailable implements inference.Client.
func (c *Client) IsAvailable(context.Context) error {
	c.record("IsAvailable")
	return c.AvailabilityError
}
