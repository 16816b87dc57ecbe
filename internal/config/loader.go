package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/echolotlabs/echolot/pkg/inference"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Inference backend
	if cfg.Inference.Provider != "" && !inference.Provider(cfg.Inference.Provider).IsValid() {
		errs = append(errs, fmt.Errorf("inference.provider %q is invalid; valid values: ollama, openai, anthropic", cfg.Inference.Provider))
	}
	if cfg.Inference.Provider != "" && cfg.Inference.Provider != string(inference.ProviderOllama) {
		if cfg.Inference.Model != "" {
			slog.Warn("inference.model is ignored for cloud providers; the client pins its own model",
				"provider", cfg.Inference.Provider,
				"model", cfg.Inference.Model,
			)
		}
	}

	// Feature toggles
	for _, name := range cfg.Features.Disabled {
		if !slices.Contains(FeatureNames, name) {
			errs = append(errs, fmt.Errorf("features.disabled contains unknown feature %q; valid names: %v", name, FeatureNames))
		}
	}

	// Persistence availability
	if cfg.Journal.PostgresDSN == "" {
		slog.Warn("journal.postgres_dsn is empty; analysed entries will not be persisted")
	}

	// Transcription availability
	if cfg.Transcriber.ServerURL == "" {
		slog.Warn("transcriber.server_url is empty; only transcript input will be accepted")
	}

	return errors.Join(errs...)
}
