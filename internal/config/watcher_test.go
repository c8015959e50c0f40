package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/overcast-online/lingograph/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
translation:
  provider:
    name: mock
glossary:
  terms: ["Lingograph"]
`

const watcherUpdatedYAML = `
server:
  log_level: debug
translation:
  provider:
    name: mock
glossary:
  terms: ["Lingograph", "Twitch"]
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadFailsOnInvalidConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherInvalidYAML)

	if _, err := config.NewWatcher(cfgPath, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var gotDiff *config.ConfigDiff
	onChange := func(old, new *config.Config, diff config.ConfigDiff) {
		mu.Lock()
		defer mu.Unlock()
		gotDiff = &diff
	}

	w, err := config.NewWatcher(cfgPath, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Rewrite with new content and a bumped mtime so the poll picks it up.
	writeFile(t, cfgPath, watcherUpdatedYAML)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(cfgPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		d := gotDiff
		mu.Unlock()
		if d != nil {
			if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
				t.Errorf("expected log level diff, got %+v", d)
			}
			if !d.GlossaryChanged {
				t.Errorf("expected glossary diff, got %+v", d)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for change callback")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() should hold the reloaded config, got log level %q", got)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	called := make(chan struct{}, 1)
	onChange := func(old, new *config.Config, diff config.ConfigDiff) {
		select {
		case called <- struct{}{}:
		default:
		}
	}

	w, err := config.NewWatcher(cfgPath, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	writeFile(t, cfgPath, watcherInvalidYAML)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(cfgPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-called:
		t.Fatal("onChange fired for an invalid config")
	case <-time.After(200 * time.Millisecond):
	}

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("invalid edit should keep the old config, got log level %q", got)
	}
}
