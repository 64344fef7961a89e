// Command lantern-web runs the Lantern graph API server with the enrichment
// pipeline attached: POST /api/sync triggers runs, the websocket feed
// broadcasts stage progress.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternvc/lantern/internal/analytics"
	"github.com/lanternvc/lantern/internal/config"
	"github.com/lanternvc/lantern/internal/crm"
	"github.com/lanternvc/lantern/internal/dedup"
	"github.com/lanternvc/lantern/internal/engine"
	"github.com/lanternvc/lantern/internal/llm"
	"github.com/lanternvc/lantern/internal/server"
	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/internal/storage/postgres"
	"github.com/lanternvc/lantern/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llmCfg := llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.OpenAIAPIKey,
		Model:          cfg.LLM.OpenAIModel,
		EmbeddingModel: cfg.LLM.OpenAIEmbeddingModel,
		BaseURL:        "",
	}
	if cfg.LLM.Provider == "ollama" {
		llmCfg.BaseURL = cfg.LLM.OllamaURL
		llmCfg.Model = cfg.LLM.OllamaModel
		llmCfg.EmbeddingModel = cfg.LLM.OllamaEmbeddingModel
	}
	text, err := llm.NewTextGenerator(llmCfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	embed, err := llm.NewEmbeddingGenerator(llmCfg)
	if err != nil {
		log.Fatalf("Failed to initialize embedding provider: %v", err)
	}

	var provider analytics.Provider
	if cfg.Analytics.Neo4jURI != "" {
		neo, err := analytics.NewNeo4jProvider(ctx, analytics.Neo4jConfig{
			URI:      cfg.Analytics.Neo4jURI,
			Username: cfg.Analytics.Neo4jUsername,
			Password: cfg.Analytics.Neo4jPassword,
		})
		if err != nil {
			// Importance degrades to degree and curated signals.
			log.Printf("Warning: neo4j unavailable, centrality metrics disabled: %v", err)
		} else {
			provider = neo
			defer func() { _ = neo.Close(context.Background()) }()
		}
	}

	policy := dedup.DefaultPolicy()
	if cfg.Pipeline.DedupPolicyPath != "" {
		policy, err = dedup.LoadPolicy(cfg.Pipeline.DedupPolicyPath)
		if err != nil {
			log.Fatalf("Failed to load dedup policy: %v", err)
		}
	}

	dedupEngine := dedup.NewEngine(store, policy)
	metrics := engine.NewMetrics(store, provider)
	pipelineCfg := engine.PipelineConfig{
		BatchSize:        cfg.Pipeline.BatchSize,
		BatchesPerSecond: cfg.Pipeline.BatchesPerSecond,
		RunTimeout:       cfg.Pipeline.RunTimeout,
	}

	// A typed nil client must not reach the pipeline's interface field.
	var pipeline *engine.Pipeline
	if client := crmClient(cfg); client != nil {
		pipeline = engine.NewPipeline(store, client, text, embed, dedupEngine, metrics, pipelineCfg)
	} else {
		pipeline = engine.NewPipeline(store, nil, text, embed, dedupEngine, metrics, pipelineCfg)
	}

	addr, hub, err := server.Start(ctx, cfg, store, pipeline, embed)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	pipeline.OnStage = hub.StageListener()
	log.Printf("Lantern API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // give connections time to close
}

// crmClient returns the CRM client, or nil when no CRM is configured and the
// sync stage should be skipped.
func crmClient(cfg *config.Config) *crm.Client {
	if cfg.CRM.BaseURL == "" {
		return nil
	}
	return crm.NewClient(crm.Config{
		BaseURL:  cfg.CRM.BaseURL,
		Token:    cfg.CRM.Token,
		PageSize: cfg.CRM.PageSize,
	})
}

// openStore builds the configured storage backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDimension)
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, err
	}
	return sqlite.New(cfg.Storage.DataPath+"/lantern.db", cfg.Storage.EmbeddingDimension)
}
