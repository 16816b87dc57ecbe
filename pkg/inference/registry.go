package inference

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Factory constructs a provider client for cfg with the given request
// timeout. The Registry injects the timeout from the per-provider table; a
// factory must not consult the table itself.
type Factory func(cfg Config, timeout time.Duration) (Client, error)

// Options is the extended argument form of [Registry.GetWithOptions].
type Options struct {
	// Config selects the provider. Nil means [DefaultConfig].
	Config *Config

	// OnError, when non-nil, is invoked with any client-construction error
	// in addition to the error return.
	OnError func(error)
}

// Registry caches at most one live provider client per process and hands it
// out for every configuration with an unchanged fingerprint.
//
// Fingerprint rules differ per provider. For the local provider the
// fingerprint covers provider, model and base URL — local models are swapped
// by name, so a model change must invalidate the cached client. For both
// cloud providers the fingerprint is the provider name alone: those clients
// pin one internal model and ignore the configured value, so returning a
// cached instance across "different" cloud model configs is deliberate (see
// DESIGN.md for the recorded decision).
//
// A fingerprint change replaces the previous entry; the old client holds no
// persistent connection and needs no teardown. Registry is a constructed,
// injectable object — there is no package-level instance — and is safe for
// concurrent use.
type Registry struct {
	factory Factory

	mu     sync.Mutex
	key    string
	client Client
}

// NewRegistry creates a Registry that builds clients with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory}
}

// fingerprint derives the cache key for cfg under the provider-specific
// equality rules.
func fingerprint(cfg Config) string {
	switch cfg.Provider {
	case ProviderOllama:
		return strings.Join([]string{string(cfg.Provider), cfg.Model, cfg.BaseURL}, "\x1f")
	default:
		return string(cfg.Provider)
	}
}

// Get returns the cached client when cfg's fingerprint is unchanged, or
// constructs, caches and returns a new one. On a cache hit the timeout table
// is not re-read; the timeout a client runs with is fixed at its
// construction.
func (r *Registry) Get(cfg Config) (Client, error) {
	if !cfg.Provider.IsValid() {
		return nil, fmt.Errorf("inference: unknown provider %q", cfg.Provider)
	}

	key := fingerprint(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil && r.key == key {
		return r.client, nil
	}

	client, err := r.factory(cfg, Timeout(cfg.Provider))
	if err != nil {
		return nil, fmt.Errorf("inference: construct %s client: %w", cfg.Provider, err)
	}

	r.key = key
	r.client = client
	return client, nil
}

// GetWithOptions is the options form of Get. A nil opts.Config selects
// [DefaultConfig]; opts.OnError observes construction failures.
func (r *Registry) GetWithOptions(opts Options) (Client, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	client, err := r.Get(cfg)
	if err != nil && opts.OnError != nil {
		opts.OnError(err)
	}
	return client, err
}
