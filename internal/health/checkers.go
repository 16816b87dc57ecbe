package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/echolotlabs/echolot/pkg/inference"
)

// Pinger is the minimal contract a storage backend needs for readiness
// checks. *postgres.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InferenceChecker probes the configured inference backend. The failure
// detail distinguishes the three actionable states a user can fix:
// missing credential, missing local model, and unreachable backend.
func InferenceChecker(name string, client inference.Client) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			err := client.IsAvailable(ctx)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, inference.ErrNoCredential):
				return fmt.Errorf("no-key: %w", err)
			case errors.Is(err, inference.ErrModelMissing):
				return fmt.Errorf("model-missing: %w", err)
			default:
				return fmt.Errorf("offline: %w", err)
			}
		},
	}
}

// JournalChecker probes the persistence backend.
func JournalChecker(store Pinger) Checker {
	return Checker{
		Name:  "journal",
		Check: store.Ping,
	}
}
