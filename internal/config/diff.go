package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only the log level and the glossary can be applied without a restart;
// everything else lands in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GlossaryChanged is true when the term list or the matching threshold
	// differ. The corrector swaps its glossary in place.
	GlossaryChanged bool
	TermsAdded      []string
	TermsRemoved    []string

	// RestartRequired lists the settings that changed but only take effect
	// after a restart (dispatcher sizing, provider credentials, output paths).
	RestartRequired []string
}

// HotApplicable reports whether the diff carries any change that can be
// applied to a running server.
func (d ConfigDiff) HotApplicable() bool {
	return d.LogLevelChanged || d.GlossaryChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldTerms := termSet(old.Glossary.Terms)
	newTerms := termSet(new.Glossary.Terms)
	for _, t := range new.Glossary.Terms {
		if _, ok := oldTerms[t]; !ok {
			d.TermsAdded = append(d.TermsAdded, t)
		}
	}
	for _, t := range old.Glossary.Terms {
		if _, ok := newTerms[t]; !ok {
			d.TermsRemoved = append(d.TermsRemoved, t)
		}
	}
	if len(d.TermsAdded) > 0 || len(d.TermsRemoved) > 0 ||
		old.Glossary.PhoneticThreshold != new.Glossary.PhoneticThreshold {
		d.GlossaryChanged = true
	}

	d.RestartRequired = append(d.RestartRequired, restartDiffs(old, new)...)
	return d
}

// termSet builds a presence set over glossary terms.
func termSet(terms []string) map[string]struct{} {
	s := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		s[t] = struct{}{}
	}
	return s
}

// restartDiffs returns the dotted paths of changed settings that a running
// server cannot pick up.
func restartDiffs(old, new *Config) []string {
	var changed []string
	add := func(path string, differs bool) {
		if differs {
			changed = append(changed, path)
		}
	}

	add("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)

	ot, nt := old.Translation, new.Translation
	add("translation.provider", fmt.Sprintf("%+v", ot.Provider) != fmt.Sprintf("%+v", nt.Provider))
	add("translation.from_language", ot.FromLanguage != nt.FromLanguage)
	add("translation.to_language", ot.ToLanguage != nt.ToLanguage)
	add("translation.timeout_seconds", ot.TimeoutSeconds != nt.TimeoutSeconds)
	add("translation.max_concurrent_requests", ot.MaxConcurrentRequests != nt.MaxConcurrentRequests)
	add("translation.max_retries", ot.MaxRetries != nt.MaxRetries)
	add("translation.retry_delay_seconds", ot.RetryDelaySeconds != nt.RetryDelaySeconds)
	add("translation.queue_size", ot.QueueSize != nt.QueueSize)
	add("translation.fallback_mode", ot.FallbackMode != nt.FallbackMode)
	add("translation.placeholder_text", ot.PlaceholderText != nt.PlaceholderText)
	add("translation.fallback_providers", fmt.Sprintf("%+v", ot.FallbackProviders) != fmt.Sprintf("%+v", nt.FallbackProviders))
	add("translation.circuit_breaker", ot.CircuitBreaker != nt.CircuitBreaker)

	oo, no := old.Output, new.Output
	add("output", oo != no)

	return changed
}
