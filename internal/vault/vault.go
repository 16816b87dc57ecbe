// Package vault is the narrow contract against the credential store that
// keeps cloud API keys. The store itself is an external collaborator (the
// operating system keychain in the desktop app); this package defines the
// SecretStore interface, an environment-backed implementation for headless
// deployments, and the Client that applies the retry policy every consumer
// relies on:
//
//   - a timeout from the underlying store is retried up to
//     [RetryPolicy.MaxAttempts] total attempts, then the OnTimeout callback
//     fires and no credential is reported;
//   - a locked/access-denied store fires the OnLocked callback immediately
//     and is never retried;
//   - an absent key is not an error — it is reported as an empty credential
//     so availability checks can short-circuit to a distinct "no key" state.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Conditions reported by a SecretStore.
var (
	// ErrNotFound means no credential is stored under the requested name.
	ErrNotFound = errors.New("vault: no credential stored")

	// ErrLocked means the store refused access (locked keychain, denied
	// permission). Never retried.
	ErrLocked = errors.New("vault: store locked")

	// ErrTimeout means the store did not answer in time. Retried per policy.
	ErrTimeout = errors.New("vault: store timed out")

	// ErrReadOnly is returned by stores that cannot persist credentials.
	ErrReadOnly = errors.New("vault: store is read-only")
)

// SecretStore is the low-level credential backend.
type SecretStore interface {
	// Get returns the API key stored for provider, ErrNotFound when absent,
	// ErrLocked or ErrTimeout on the corresponding store conditions.
	Get(ctx context.Context, provider string) (string, error)

	// Store persists an API key for provider.
	Store(ctx context.Context, provider, key string) error

	// Delete removes the API key for provider. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, provider string) error
}

// RetryPolicy bounds how often a timed-out store access is attempted.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
}

// DefaultRetryPolicy retries a timeout exactly once.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2}

// Client wraps a SecretStore with the retry policy and condition callbacks.
// It is safe for concurrent use when the underlying store is.
type Client struct {
	store     SecretStore
	policy    RetryPolicy
	onLocked  func()
	onTimeout func()
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithOnLocked registers a callback invoked when the store reports a locked
// condition.
func WithOnLocked(fn func()) Option {
	return func(c *Client) { c.onLocked = fn }
}

// WithOnTimeout registers a callback invoked when all attempts against a
// timing-out store are exhausted.
func WithOnTimeout(fn func()) Option {
	return func(c *Client) { c.onTimeout = fn }
}

// NewClient wraps store with the default retry policy and the given options.
func NewClient(store SecretStore, opts ...Option) *Client {
	c := &Client{store: store, policy: DefaultRetryPolicy}
	for _, o := range opts {
		o(c)
	}
	if c.policy.MaxAttempts < 1 {
		c.policy.MaxAttempts = 1
	}
	return c
}

// APIKey returns the credential stored for provider, or "" when none is
// available. The error is non-nil only for locked and exhausted-timeout
// conditions; an absent key returns ("", nil).
func (c *Client) APIKey(ctx context.Context, provider string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		key, err := c.store.Get(ctx, provider)
		switch {
		case err == nil:
			return key, nil
		case errors.Is(err, ErrNotFound):
			return "", nil
		case errors.Is(err, ErrLocked):
			if c.onLocked != nil {
				c.onLocked()
			}
			return "", err
		case errors.Is(err, ErrTimeout):
			lastErr = err
			continue
		default:
			return "", fmt.Errorf("vault: read %s credential: %w", provider, err)
		}
	}
	if c.onTimeout != nil {
		c.onTimeout()
	}
	return "", lastErr
}

// StoreAPIKey persists a credential for provider.
func (c *Client) StoreAPIKey(ctx context.Context, provider, key string) error {
	if err := c.store.Store(ctx, provider, key); err != nil {
		return fmt.Errorf("vault: store %s credential: %w", provider, err)
	}
	return nil
}

// DeleteAPIKey removes the credential for provider.
func (c *Client) DeleteAPIKey(ctx context.Context, provider string) error {
	if err := c.store.Delete(ctx, provider); err != nil {
		return fmt.Errorf("vault: delete %s credential: %w", provider, err)
	}
	return nil
}

// EnvStore reads credentials from the process environment under
// ECHOLOT_<PROVIDER>_API_KEY. It cannot persist changes.
type EnvStore struct{}

// Compile-time interface check.
var _ SecretStore = EnvStore{}

// Get implements SecretStore from the environment.
func (EnvStore) Get(_ context.Context, provider string) (string, error) {
	key := os.Getenv("ECHOLOT_" + strings.ToUpper(provider) + "_API_KEY")
	if key == "" {
		return "", ErrNotFound
	}
	return key, nil
}

// Store implements SecretStore; the environment is read-only.
func (EnvStore) Store(context.Context, string, string) error { return ErrReadOnly }

// Delete implements SecretStore; the environment is read-only.
func (EnvStore) Delete(context.Context, string) error { return ErrReadOnly }
