// Command server is the entry point for the biomedical knowledge graph
// explorer's online query/explanation HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/biokg/explorer/internal/config"
	"github.com/biokg/explorer/internal/entitylookup"
	"github.com/biokg/explorer/internal/evidence"
	"github.com/biokg/explorer/internal/health"
	"github.com/biokg/explorer/internal/httpapi"
	"github.com/biokg/explorer/internal/intent"
	"github.com/biokg/explorer/internal/neighborhood"
	"github.com/biokg/explorer/internal/observe"
	"github.com/biokg/explorer/internal/pathengine"
	"github.com/biokg/explorer/internal/rag"
	"github.com/biokg/explorer/internal/resilience"
	"github.com/biokg/explorer/internal/reviewer"
	"github.com/biokg/explorer/internal/snapshot"
	"github.com/biokg/explorer/internal/stream"
	"github.com/biokg/explorer/pkg/provider/embeddings"
	embeddingsollama "github.com/biokg/explorer/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/biokg/explorer/pkg/provider/embeddings/openai"
	"github.com/biokg/explorer/pkg/provider/llm"
	"github.com/biokg/explorer/pkg/provider/llm/anyllm"
	"github.com/biokg/explorer/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "server: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "server: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("explorer starting", "config", *configPath, "listen_addr", cfg.Server.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "explorer"})
	if err != nil {
		logger.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerLLMFactories(reg)
	registerEmbeddingsFactories(reg)

	llmProvider, err := buildLLM(cfg, reg)
	if err != nil {
		logger.Error("failed to build llm provider", "error", err)
		return 1
	}

	embedder, err := buildEmbeddings(cfg, reg)
	if err != nil {
		logger.Error("failed to build embeddings provider", "error", err)
		return 1
	}

	store, err := postgres.NewStore(ctx, cfg.Store.PostgresDSN, cfg.Store.EmbeddingDimensions)
	if err != nil {
		logger.Error("failed to connect to store", "error", err)
		return 1
	}
	defer store.Close()

	snapshots := snapshot.New()

	resolver, err := intent.New(llmProvider, intent.NewLLMExtractor(llmProvider))
	if err != nil {
		logger.Error("failed to build intent resolver", "error", err)
		return 1
	}

	lookup := entitylookup.New(store)
	neighbors := neighborhood.New(store)
	paths := pathengine.New(store, pathengine.WithLogger(logger))
	fetcher := evidence.New(store)
	retriever := rag.New(store, store, embedder, rag.WithLogger(logger))
	rev := reviewer.New(llmProvider, reviewer.WithLogger(logger))

	streamer := stream.New(llmProvider, cfg.Providers.LLM.Name, stream.WithLogger(logger))
	for _, fb := range buildFallbackModels(cfg) {
		streamer.AddFallback(fb.name, fb.provider)
	}

	httpOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithExternalFetcher(evidence.NewExternalFetcher()),
	}

	api := httpapi.New(resolver, lookup, neighbors, paths, fetcher, retriever, streamer, rev, snapshots, embedder, store, httpOpts...)

	mux := http.NewServeMux()
	api.Routes(mux)

	healthHandler := health.New(health.Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			return store.Ping(ctx)
		},
	})
	mux.HandleFunc("GET /health", healthHandler.Healthz)
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	printStartupSummary(cfg)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping…")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}

	logger.Info("goodbye")
	return 0
}

// registerLLMFactories wires every LLM provider name any-llm-go supports to
// a factory that builds it from a [config.ProviderEntry].
func registerLLMFactories(reg *config.Registry) {
	for _, name := range []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		name := name
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(name, entry.Model, anyllmOptions(entry)...)
		})
	}
}

// registerEmbeddingsFactories wires the two embedding backends kept from the
// teacher's provider/embeddings package.
func registerEmbeddingsFactories(reg *config.Registry) {
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingsopenai.New(entry.APIKey, entry.Model)
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return embeddingsollama.New(baseURL, entry.Model)
	})
}

func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// buildLLM creates the primary model and wraps it in a [resilience.LLMFallback]
// circuit breaker, used for the single-call consumers (intent resolution,
// review scoring) that have no multi-model chain of their own.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	return resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{}), nil
}

func buildEmbeddings(cfg *config.Config, reg *config.Registry) (embeddings.Provider, error) {
	if cfg.Providers.Embeddings.Name == "" {
		return nil, errors.New("providers.embeddings.name is required")
	}
	return reg.CreateEmbeddings(cfg.Providers.Embeddings)
}

type namedLLMProvider struct {
	name     string
	provider llm.Provider
}

// buildFallbackModels constructs the streamer's own model-fallback chain
// (spec §4.8's ordered [primary, fallback_overview, flash, flash_stable]
// list) from the optional "fallback_models" entry in providers.llm.options.
// This is independent of [buildLLM]'s circuit breaker: the streamer peeks a
// candidate's first chunk before committing to it, which a circuit breaker
// cannot express.
func buildFallbackModels(cfg *config.Config) []namedLLMProvider {
	var out []namedLLMProvider
	for _, m := range fallbackModelNames(cfg.Providers.LLM) {
		p, err := anyllm.New(cfg.Providers.LLM.Name, m, anyllmOptions(cfg.Providers.LLM)...)
		if err != nil {
			slog.Warn("skipping unavailable stream fallback model", "model", m, "error", err)
			continue
		}
		out = append(out, namedLLMProvider{name: m, provider: p})
	}
	return out
}

// fallbackModelNames reads providers.llm.options.fallback_models, a list of
// model names tried after entry.Model in order.
func fallbackModelNames(entry config.ProviderEntry) []string {
	raw, ok := entry.Options["fallback_models"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║     explorer — startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
