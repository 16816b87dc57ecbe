package inference

import (
	"context"
	"sync/atomic"

	"github.com/echolotlabs/echolot/pkg/analysis"
)

// Dynamic is a Client whose backing implementation can be swapped at
// runtime. A config reload resolves the new client through the Registry and
// calls Swap; every consumer holding the Dynamic sees the replacement on its
// next call. Safe for concurrent use.
type Dynamic struct {
	current atomic.Pointer[Client]
}

// Compile-time interface check.
var _ Client = (*Dynamic)(nil)

// NewDynamic wraps the initial client.
func NewDynamic(initial Client) *Dynamic {
	d := &Dynamic{}
	d.current.Store(&initial)
	return d
}

// Swap replaces the backing client. In-flight calls finish against the
// client they started with.
func (d *Dynamic) Swap(next Client) {
	d.current.Store(&next)
}

func (d *Dynamic) client() Client {
	return *d.current.Load()
}

// AnalyzeEmotion implements Client.
func (d *Dynamic) AnalyzeEmotion(ctx context.Context, text string) (analysis.Signal, error) {
	return d.client().AnalyzeEmotion(ctx, text)
}

// AnalyzeArgument implements Client.
func (d *Dynamic) AnalyzeArgument(ctx context.Context, text string) ([]analysis.Fallacy, error) {
	return d.client().AnalyzeArgument(ctx, text)
}

// AnalyzeTone implements Client.
func (d *Dynamic) AnalyzeTone(ctx context.Context, text string) (analysis.Signal, error) {
	return d.client().AnalyzeTone(ctx, text)
}

// AnalyzeGFK implements Client.
func (d *Dynamic) AnalyzeGFK(ctx context.Context, text string) (analysis.GFK, error) {
	return d.client().AnalyzeGFK(ctx, text)
}

// AnalyzeCognitiveDistortions implements Client.
func (d *Dynamic) AnalyzeCognitiveDistortions(ctx context.Context, text string) ([]analysis.Distortion, error) {
	return d.client().AnalyzeCognitiveDistortions(ctx, text)
}

// AnalyzeFourSides implements Client.
func (d *Dynamic) AnalyzeFourSides(ctx context.Context, text string) (analysis.FourSides, error) {
	return d.client().AnalyzeFourSides(ctx, text)
}

// ClassifyTopic implements Client.
func (d *Dynamic) ClassifyTopic(ctx context.Context, text string) (analysis.Topic, error) {
	return d.client().ClassifyTopic(ctx, text)
}

// GenerateChat implements Client.
func (d *Dynamic) GenerateChat(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	return d.client().GenerateChat(ctx, messages)
}

// GenerateChatSummary implements Client.
func (d *Dynamic) GenerateChatSummary(ctx context.Context, messages []analysis.ChatMessage) (string, error) {
	return d.client().GenerateChatSummary(ctx, messages)
}

// IsAvailable implements Client.
func (d *Dynamic) IsAvailable(ctx context.Context) error {
	return d.client().IsAvailable(ctx)
}
