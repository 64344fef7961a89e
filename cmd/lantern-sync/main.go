// Command lantern-sync runs one enrichment pipeline pass from the command
// line and exits. Useful for cron-driven syncs and for dry-running the
// dedup policy against the current graph.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanternvc/lantern/internal/analytics"
	"github.com/lanternvc/lantern/internal/config"
	"github.com/lanternvc/lantern/internal/crm"
	"github.com/lanternvc/lantern/internal/dedup"
	"github.com/lanternvc/lantern/internal/engine"
	"github.com/lanternvc/lantern/internal/llm"
	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/internal/storage/postgres"
	"github.com/lanternvc/lantern/internal/storage/sqlite"
)

func main() {
	dedupOnly := flag.Bool("dedup-only", false, "Run only duplicate detection and merge, skip the full pipeline")
	dryRun := flag.Bool("dry-run", false, "With -dedup-only: report duplicate groups without merging")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// SIGINT aborts the run; the deferred FinishRun marks it failed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := dedup.DefaultPolicy()
	if cfg.Pipeline.DedupPolicyPath != "" {
		policy, err = dedup.LoadPolicy(cfg.Pipeline.DedupPolicyPath)
		if err != nil {
			log.Fatalf("Failed to load dedup policy: %v", err)
		}
	}
	dedupEngine := dedup.NewEngine(store, policy)

	if *dedupOnly {
		if err := runDedup(ctx, store, dedupEngine, *dryRun); err != nil {
			log.Fatalf("Dedup failed: %v", err)
		}
		return
	}

	llmCfg := llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.OpenAIAPIKey,
		Model:          cfg.LLM.OpenAIModel,
		EmbeddingModel: cfg.LLM.OpenAIEmbeddingModel,
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
			log.Printf("Warning: neo4j unavailable, centrality metrics disabled: %v", err)
		} else {
			provider = neo
			defer func() { _ = neo.Close(context.Background()) }()
		}
	}

	metrics := engine.NewMetrics(store, provider)
	pipelineCfg := engine.PipelineConfig{
		BatchSize:        cfg.Pipeline.BatchSize,
		BatchesPerSecond: cfg.Pipeline.BatchesPerSecond,
		RunTimeout:       cfg.Pipeline.RunTimeout,
	}

	var pipeline *engine.Pipeline
	if client := crmClient(cfg); client != nil {
		pipeline = engine.NewPipeline(store, client, text, embed, dedupEngine, metrics, pipelineCfg)
	} else {
		pipeline = engine.NewPipeline(store, nil, text, embed, dedupEngine, metrics, pipelineCfg)
	}

	if err := pipeline.Run(ctx); err != nil {
		log.Fatalf("Pipeline run failed: %v", err)
	}

	state, err := store.GetSyncState(ctx)
	if err == nil {
		fmt.Printf("Sync %s: %s\n", state.Status, state.Message)
	}
}

// runDedup runs duplicate detection and merge on its own, outside the
// pipeline gate.
func runDedup(ctx context.Context, store storage.Store, eng *dedup.Engine, dryRun bool) error {
	entities, err := store.ListEntities(ctx, storage.ListOptions{Limit: 500})
	if err != nil {
		return err
	}
	groups := eng.FindDuplicateGroups(entities)
	if len(groups) == 0 {
		fmt.Println("No duplicate groups found")
		return nil
	}

	report, err := eng.Merge(ctx, groups, dryRun)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("Dry run: %d duplicate groups found\n", len(groups))
		for _, g := range groups {
			fmt.Printf("  %s: %d entities\n", g.Key, len(g.Entities))
		}
		return nil
	}
	fmt.Printf("Merged %d groups, %d failed\n", report.Merged, report.Failed)
	return nil
}

// crmClient returns the CRM client, or nil when no CRM is configured.
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
