package config_test

import (
	"testing"
	"time"

	"github.com/overcast-online/lingograph/internal/config"
	"github.com/overcast-online/lingograph/internal/dispatch"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestTranslationConfig_DispatcherConfig(t *testing.T) {
	t.Parallel()
	tc := config.TranslationConfig{
		FromLanguage:          "fr",
		ToLanguage:            "en",
		TimeoutSeconds:        2.5,
		MaxConcurrentRequests: 4,
		MaxRetries:            1,
		RetryDelaySeconds:     0.25,
		QueueSize:             16,
		FallbackMode:          dispatch.FallbackShowPlaceholder,
		PlaceholderText:       "...",
	}

	dc := tc.DispatcherConfig()
	if dc.Workers != 4 || dc.QueueSize != 16 || dc.MaxRetries != 1 {
		t.Errorf("unexpected sizing: %+v", dc)
	}
	if dc.Timeout != 2500*time.Millisecond {
		t.Errorf("timeout: got %v, want 2.5s", dc.Timeout)
	}
	if dc.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry delay: got %v, want 250ms", dc.RetryDelay)
	}
	if dc.Fallback != dispatch.FallbackShowPlaceholder || dc.PlaceholderText != "..." {
		t.Errorf("fallback not carried over: %+v", dc)
	}
}

func TestOutputConfig_Durations(t *testing.T) {
	t.Parallel()
	o := config.OutputConfig{OBSAutoClearTimeout: 7.5, SweepIntervalMS: 250}
	if o.TTL() != 7500*time.Millisecond {
		t.Errorf("ttl: got %v", o.TTL())
	}
	if o.SweepInterval() != 250*time.Millisecond {
		t.Errorf("sweep interval: got %v", o.SweepInterval())
	}
}

func TestProviderEntry_StringOption(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"region": "westeurope", "retries": 3}}
	if got := e.StringOption("region"); got != "westeurope" {
		t.Errorf("region: got %q", got)
	}
	if got := e.StringOption("retries"); got != "" {
		t.Errorf("non-string option should yield empty, got %q", got)
	}
	if got := e.StringOption("missing"); got != "" {
		t.Errorf("missing option should yield empty, got %q", got)
	}
	var empty config.ProviderEntry
	if got := empty.StringOption("region"); got != "" {
		t.Errorf("nil options should yield empty, got %q", got)
	}
}

func TestDefault_TimestampFormatMatchesVoiceLogStyle(t *testing.T) {
	t.Parallel()
	got := config.Default().Output.TimestampFormat
	if got != "[15:04:05]" {
		t.Errorf("timestamp_format default: got %q, want the bracketed layout %q", got, "[15:04:05]")
	}
}
