// Command lingograph is the main entry point for the Lingograph live caption
// translation server. It reads utterances (speech-to-text finals) line by
// line from stdin, translates them with the configured provider, and paints
// the results onto the OBS overlay outputs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/overcast-online/lingograph/internal/app"
	"github.com/overcast-online/lingograph/internal/config"
	"github.com/overcast-online/lingograph/internal/observe"
	"github.com/overcast-online/lingograph/internal/resilience"
	"github.com/overcast-online/lingograph/pkg/feed"
	"github.com/overcast-online/lingograph/pkg/provider/translate"
	"github.com/overcast-online/lingograph/pkg/provider/translate/anyllm"
	"github.com/overcast-online/lingograph/pkg/provider/translate/azure"
	"github.com/overcast-online/lingograph/pkg/provider/translate/mock"
	"github.com/overcast-online/lingograph/pkg/provider/translate/openai"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "hot-reload glossary and log level on config changes")
	script := flag.String("script", "", "comma-separated demo utterances fed instead of stdin")
	flag.Parse()

	// .env carries API keys so they stay out of the YAML file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "lingograph: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingograph: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingograph: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("lingograph starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lingograph",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Translation provider ──────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	translator, err := reg.CreateTranslator(cfg.Translation.Provider)
	if err != nil {
		slog.Error("failed to create translation provider",
			"name", cfg.Translation.Provider.Name,
			"err", err,
		)
		return 1
	}

	if len(cfg.Translation.FallbackProviders) > 0 {
		chain := resilience.NewFallbackTranslator(translator, cfg.Translation.FallbackConfig())
		for _, entry := range cfg.Translation.FallbackProviders {
			fb, err := reg.CreateTranslator(entry)
			if err != nil {
				slog.Error("failed to create fallback provider", "name", entry.Name, "err", err)
				return 1
			}
			chain.AddFallback(fb)
		}
		translator = chain
		slog.Info("provider failover enabled", "chain", chain.Name())
	}

	slog.Info("translation provider ready",
		"provider", translator.Name(),
		"from", cfg.Translation.FromLanguage,
		"to", cfg.Translation.ToLanguage,
	)

	// ── Utterance feed ────────────────────────────────────────────────────────
	var source feed.Source
	if *script != "" {
		source = feed.Script(strings.Split(*script, ","), 2*time.Second)
	} else {
		source = feed.Lines(os.Stdin)
	}

	// ── Assemble and run ──────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, translator, source,
		app.WithLogLevelVar(logLevel),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		if err := application.WatchConfig(*configPath); err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
	}

	slog.Info("captioning — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmVendors lists the LLM backends reachable through any-llm-go that can
// act as translators. They share the APIKey + BaseURL configuration pattern.
var anyllmVendors = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in translation backends into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// Azure Translator is the only dedicated machine-translation API; the
	// rest are LLMs prompted to translate.
	reg.RegisterTranslator("azure", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []azure.Option
		if entry.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(entry.BaseURL))
		}
		if region := entry.StringOption("region"); region != "" {
			opts = append(opts, azure.WithRegion(region))
		}
		return azure.New(entry.APIKey, opts...)
	})

	reg.RegisterTranslator("openai", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, vendor := range anyllmVendors {
		reg.RegisterTranslator(vendor, func(entry config.ProviderEntry) (translate.Translator, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTranslator("ollama", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// mock echoes the source text tagged with the target language; handy for
	// overlay layout work without credentials.
	reg.RegisterTranslator("mock", func(entry config.ProviderEntry) (translate.Translator, error) {
		return &mock.Translator{}, nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered translation provider", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║        Lingograph — startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════════╣")
	printRow("Provider", providerLabel(cfg.Translation.Provider))
	printRow("Languages", cfg.Translation.FromLanguage+" → "+cfg.Translation.ToLanguage)
	printRow("Fallback", string(cfg.Translation.FallbackMode))
	printRow("OBS file", cfg.Output.OBSFile)
	printRow("Caption lines", fmt.Sprintf("%d × %.0fs", cfg.Output.OBSBufferLines, cfg.Output.OBSAutoClearTimeout))
	if cfg.Output.VoiceLogEnabled {
		printRow("Voice log", cfg.Output.VoiceLogDirectory)
	} else {
		printRow("Voice log", "(disabled)")
	}
	if cfg.Output.PostgresDSN != "" {
		printRow("Archive", "postgres")
	} else {
		printRow("Archive", "(disabled)")
	}
	printRow("Glossary", fmt.Sprintf("%d terms", len(cfg.Glossary.Terms)))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Printf("║  %-15s : %-23s ║\n", label, truncate(value, 23))
}

// truncate shortens value to at most max runes, ending in an ellipsis.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "…"
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Name == "" {
		return "(not configured)"
	}
	if entry.Model != "" {
		return entry.Name + " / " + entry.Model
	}
	return entry.Name
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
