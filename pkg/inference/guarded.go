package inference

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/echolotlabs/echolot/internal/guard"
	"github.com/echolotlabs/echolot/pkg/analysis"
)

// MinInputLength is the minimum journal-text length, in runes, below which
// an analysis returns its neutral default without spending a network round
// trip. A two-word utterance carries no signal worth a model call.
const MinInputLength = 15

// Transport is the single capability a provider variant must supply to the
// shared guarded-call path: send one system instruction plus one user prompt
// and return the raw model output. The injected per-provider timeout applies
// inside the implementation.
type Transport interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analyze is the shared guarded-call helper every provider variant delegates
// to. It runs the fixed discipline shared by every analysis entry point:
//
//  1. injection check — matched input returns def with ErrInjectionDetected,
//     no network call;
//  2. short-input pre-filter — trivially uninformative text returns def with
//     a nil error, no network call;
//  3. escape and interpolate the text into the prompt template;
//  4. invoke the transport;
//  5. parse the output, falling back to def on any failure.
//
// The returned value is always usable; the error only explains a fallback.
func Analyze[T any](
	ctx context.Context,
	g *guard.Guard,
	tr Transport,
	text string,
	def T,
	spec PromptSpec,
	parse func(string) (T, error),
) (T, error) {
	if g.Check(text) {
		return def, ErrInjectionDetected
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinInputLength {
		return def, nil
	}

	prompt := spec.Render(g.Escape(text))
	raw, err := tr.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return def, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out, err := parse(raw)
	if err != nil {
		return def, fmt.Errorf("inference: malformed model output: %w", err)
	}
	return out, nil
}

// GuardChat applies the injection check to the user-authored side of a chat
// exchange. Returns ErrInjectionDetected when any user message matches.
func GuardChat(g *guard.Guard, messages []analysis.ChatMessage) error {
	for _, m := range messages {
		if m.Role == "user" && g.Check(m.Content) {
			return ErrInjectionDetected
		}
	}
	return nil
}
