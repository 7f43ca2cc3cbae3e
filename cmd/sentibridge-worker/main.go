// Command sentibridge-worker is the long-running process entrypoint: load
// configuration, wire the collectors / ensemble analyzer / manipulation
// detector / oracle submitter into an orchestrator, run until SIGINT or
// SIGTERM, then shut down gracefully (spec.md §6 CLI/process surface).
// Grounded on the teacher's cmd/trading-bots/main.go and cmd/web3-service/main.go
// startup/shutdown idiom.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/collectors"
	"github.com/toxzak-svg/sentibridge/internal/config"
	"github.com/toxzak-svg/sentibridge/internal/manipulation"
	"github.com/toxzak-svg/sentibridge/internal/secrets"
	"github.com/toxzak-svg/sentibridge/internal/sentiment"
	"github.com/toxzak-svg/sentibridge/internal/web3"
	"github.com/toxzak-svg/sentibridge/internal/worker"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability)
	ctx := context.Background()

	tracingProvider, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer tracingProvider.Shutdown(context.Background())

	metricsPort, err := strconv.Atoi(cfg.Observability.MetricsPort)
	if err != nil {
		metricsPort = 9090
	}
	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName: cfg.Observability.ServiceName,
		Namespace:   "sentibridge",
		Port:        metricsPort,
		Enabled:     true,
	})
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	defer metrics.Shutdown(context.Background())
	go func() {
		if err := metrics.StartMetricsServer(metricsPort); err != nil {
			logger.Warn(ctx, "metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	secretsProvider, err := secrets.NewProvider(cfg)
	if err != nil {
		log.Fatalf("failed to initialize secrets provider: %v", err)
	}
	creds, err := secretsProvider.GetCredentials(ctx)
	if err != nil {
		log.Fatalf("failed to load credentials: %v", err)
	}

	keyManager, err := buildKeyManager(cfg, creds, logger)
	if err != nil {
		log.Fatalf("failed to initialize key manager: %v", err)
	}

	submitter, err := web3.NewSubmitter(ctx, cfg.Chain, keyManager, logger, metrics)
	if err != nil {
		log.Fatalf("failed to initialize oracle submitter: %v", err)
	}

	cs := buildCollectors(cfg, creds, metrics)
	analyzer := buildEnsemble(cfg)
	detector := manipulation.NewDetector()

	rt := worker.RuntimeContext{Config: cfg, Logger: logger, Metrics: metrics}
	orchestrator := worker.NewOrchestrator(rt, cs, analyzer, detector, submitter)

	if err := orchestrator.Start(ctx); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}
	logger.Info(ctx, "sentibridge worker started", map[string]interface{}{
		"tracked_tokens": cfg.Worker.TrackedTokens,
		"environment":    string(cfg.Environment),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info(ctx, "received shutdown signal", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "graceful shutdown failed", err, nil)
		os.Exit(1)
	}
	logger.Info(shutdownCtx, "sentibridge worker stopped", nil)
}

// buildKeyManager selects the local or remote-KMS signer per
// cfg.Signer.UseKMS (spec.md §4.5). A remote KMS client is a documented
// extension point (internal/web3.KMSClient); none is wired here because no
// retrieved example vendors a concrete AWS/Vault client (see DESIGN.md), so
// USE_AWS_KMS=true fails fast rather than silently falling back to a local
// key.
func buildKeyManager(cfg *config.Config, creds secrets.Credentials, logger *observability.Logger) (web3.KeyManager, error) {
	if cfg.Signer.UseKMS {
		return nil, fmt.Errorf("USE_AWS_KMS is true but no concrete KMSClient is wired; supply one via web3.NewKMSKeyManager")
	}
	return web3.NewLocalKeyManager(creds.OperatorPrivateKey, logger)
}

// buildCollectors constructs the enabled adapters with their required
// credentials (never a zero-arg factory, per spec.md §9).
func buildCollectors(cfg *config.Config, creds secrets.Credentials, metrics *observability.MetricsProvider) []collectors.Collector {
	var cs []collectors.Collector
	if creds.TwitterBearerToken != "" {
		cs = append(cs, collectors.NewTwitterCollector(creds.TwitterBearerToken, metrics))
	}
	if creds.DiscordBotToken != "" {
		cs = append(cs, collectors.NewDiscordCollector(creds.DiscordBotToken, cfg.Collectors.DiscordGuildIDs, metrics))
	}
	if creds.TelegramBotToken != "" {
		cs = append(cs, collectors.NewTelegramCollector(creds.TelegramBotToken, cfg.Collectors.TelegramChatIDs, metrics))
	}
	return cs
}

// buildEnsemble wires the lexicon/transformer/LLM models per
// cfg.Sentiment, matching spec.md §4.3's fusion rules.
func buildEnsemble(cfg *config.Config) *sentiment.Ensemble {
	lexicon := sentiment.NewLexiconModel()
	var transformer sentiment.Model = sentiment.NewTransformerModel("", "")
	var llm sentiment.Model
	if cfg.Sentiment.LLMEnabled {
		llm = sentiment.NewLLMModel("", "", "", lexicon)
	}
	return sentiment.NewEnsemble(lexicon, transformer, llm, cfg.Sentiment.PrimaryWeight, true)
}
