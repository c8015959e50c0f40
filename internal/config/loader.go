package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known translation provider names.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{
	"azure", "openai",
	"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	"mock",
}

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

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
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

	// Translation
	t := cfg.Translation
	validateProviderName(t.Provider.Name)
	if t.Provider.Name == "" {
		slog.Warn("translation.provider.name is empty; captions will pass through untranslated unless a provider is wired in code")
	}
	if t.FromLanguage == "" {
		errs = append(errs, errors.New("translation.from_language is required"))
	}
	if t.ToLanguage == "" {
		errs = append(errs, errors.New("translation.to_language is required"))
	}
	if t.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("translation.timeout_seconds %.2f must be positive", t.TimeoutSeconds))
	}
	if t.MaxConcurrentRequests <= 0 {
		errs = append(errs, fmt.Errorf("translation.max_concurrent_requests %d must be positive", t.MaxConcurrentRequests))
	}
	if t.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("translation.max_retries %d must not be negative", t.MaxRetries))
	}
	if t.RetryDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("translation.retry_delay_seconds %.2f must not be negative", t.RetryDelaySeconds))
	}
	if t.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("translation.queue_size %d must be positive", t.QueueSize))
	}
	if t.FallbackMode != "" && !t.FallbackMode.IsValid() {
		errs = append(errs, fmt.Errorf("translation.fallback_mode %q is invalid; valid values: show_original, show_error, show_placeholder", t.FallbackMode))
	}
	for i, entry := range t.FallbackProviders {
		validateProviderName(entry.Name)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("translation.fallback_providers[%d].name is required", i))
		}
	}
	if t.CircuitBreaker.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("translation.circuit_breaker.max_failures %d must be positive", t.CircuitBreaker.MaxFailures))
	}
	if t.CircuitBreaker.ResetTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("translation.circuit_breaker.reset_timeout_seconds %.2f must be positive", t.CircuitBreaker.ResetTimeoutSeconds))
	}

	// Output
	o := cfg.Output
	if o.OBSFile == "" {
		errs = append(errs, errors.New("output.obs_file is required"))
	}
	if o.OBSBufferLines <= 0 {
		errs = append(errs, fmt.Errorf("output.obs_buffer_lines %d must be positive", o.OBSBufferLines))
	}
	if o.OBSAutoClearTimeout <= 0 {
		errs = append(errs, fmt.Errorf("output.obs_auto_clear_timeout %.2f must be positive", o.OBSAutoClearTimeout))
	}
	if o.SweepIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("output.sweep_interval_ms %d must be positive", o.SweepIntervalMS))
	}
	if o.VoiceLogEnabled && o.VoiceLogDirectory == "" {
		errs = append(errs, errors.New("output.voice_log_directory is required when voice_log_enabled is true"))
	}

	// Glossary
	g := cfg.Glossary
	if g.PhoneticThreshold <= 0 || g.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("glossary.phonetic_threshold %.2f is out of range (0, 1]", g.PhoneticThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
