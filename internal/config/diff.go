package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	// LogLevelChanged is true when the server log level differs.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InferenceChanged is true when provider, model, or base URL differ.
	// The caller re-resolves its client through the registry; an unchanged
	// cache fingerprint keeps the existing instance.
	InferenceChanged bool

	// FeaturesChanged is true when the disabled-feature set differs.
	FeaturesChanged bool

	// TranscriberChanged is true when the transcription server settings differ.
	TranscriberChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.InferenceChanged || d.FeaturesChanged || d.TranscriberChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Inference != new.Inference {
		d.InferenceChanged = true
	}

	oldDisabled := append([]string(nil), old.Features.Disabled...)
	newDisabled := append([]string(nil), new.Features.Disabled...)
	slices.Sort(oldDisabled)
	slices.Sort(newDisabled)
	if !slices.Equal(oldDisabled, newDisabled) {
		d.FeaturesChanged = true
	}

	if old.Transcriber != new.Transcriber {
		d.TranscriberChanged = true
	}

	return d
}
