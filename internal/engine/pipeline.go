package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lanternvc/lantern/internal/crm"
	"github.com/lanternvc/lantern/internal/dedup"
	"github.com/lanternvc/lantern/internal/llm"
	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// Pipeline stage names, in execution order. crm_sync and embed_summarize run
// concurrently.
const (
	StagePreDedup        = "pre_dedup"
	StageCRMSync         = "crm_sync"
	StageEmbedSummarize  = "embed_summarize"
	StageInferRelations  = "infer_relationships"
	StagePropagateFlags  = "propagate_flags"
	StagePostDedup       = "post_dedup"
	StageRecomputeMetric = "recompute_metrics"
)

// crmSource is the slice of the CRM client the pipeline uses.
type crmSource interface {
	FetchOrganizations(ctx context.Context) ([]crm.Organization, error)
	FetchPeople(ctx context.Context) ([]crm.Person, error)
	FetchNotes(ctx context.Context, since time.Time) ([]crm.Note, error)
}

// PipelineConfig tunes a pipeline run.
type PipelineConfig struct {
	// BatchSize is the number of items processed per rate-limiter token.
	// Default: 20.
	BatchSize int

	// BatchesPerSecond throttles provider-bound batches. Default: 2.
	BatchesPerSecond float64

	// RunTimeout is the wall-clock budget for one full run. Default: 30m.
	RunTimeout time.Duration

	// InferenceGroupLimit caps the entities shown to the model in one
	// inference prompt. Default: 12.
	InferenceGroupLimit int
}

func (c *PipelineConfig) applyDefaults() {
	if c.BatchSize < 1 {
		c.BatchSize = 20
	}
	if c.BatchesPerSecond <= 0 {
		c.BatchesPerSecond = 2
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 30 * time.Minute
	}
	if c.InferenceGroupLimit < 2 {
		c.InferenceGroupLimit = 12
	}
}

// Pipeline runs the enrichment stages over the graph. Exactly one run may be
// in flight: the persisted SyncState row is the mutex, acquired with a
// compare-and-swap in BeginRun.
type Pipeline struct {
	store   storage.Store
	source  crmSource              // nil skips crm_sync
	text    llm.TextGenerator      // nil skips inference and summaries
	embed   llm.EmbeddingGenerator // nil skips embeddings
	dedup   *dedup.Engine
	metrics *Metrics
	limiter *rate.Limiter
	cfg     PipelineConfig

	// OnStage, when set, is invoked on every stage transition. status is
	// "started", "completed" or "failed". Used by the websocket progress hub.
	OnStage func(stage, status string)
}

// NewPipeline creates a pipeline. source, text and embed may be nil; the
// corresponding stages degrade to no-ops with a log line.
func NewPipeline(store storage.Store, source crmSource, text llm.TextGenerator,
	embed llm.EmbeddingGenerator, dedupEngine *dedup.Engine, metrics *Metrics,
	cfg PipelineConfig) *Pipeline {

	cfg.applyDefaults()
	if dedupEngine == nil {
		dedupEngine = dedup.NewEngine(store, nil)
	}
	if metrics == nil {
		metrics = NewMetrics(store, nil)
	}
	return &Pipeline{
		store:   store,
		source:  source,
		text:    text,
		embed:   embed,
		dedup:   dedupEngine,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1),
		cfg:     cfg,
	}
}

// Run executes one full pipeline pass. Returns storage.ErrConflict when a
// run is already in progress. A failed stage stops the run and records the
// stage name and cause in SyncState; there is no rollback — every stage
// writes through idempotent upserts, so the next run repairs the rest.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.store.BeginRun(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	var partials []string

	runErr := p.runStages(ctx, &partials)

	message := fmt.Sprintf("completed in %s", time.Since(start).Round(time.Second))
	if len(partials) > 0 {
		message += "; degraded: " + strings.Join(partials, ", ")
	}
	if runErr != nil {
		message = runErr.Error()
	}
	if finishErr := p.store.FinishRun(context.WithoutCancel(ctx), message, runErr); finishErr != nil {
		log.Printf("pipeline: failed to release run gate: %v", finishErr)
	}
	return runErr
}

func (p *Pipeline) runStages(ctx context.Context, partials *[]string) error {
	if err := p.setStage(ctx, StagePreDedup); err != nil {
		return err
	}
	if err := p.runStage(ctx, StagePreDedup, partials, p.stageDedup); err != nil {
		return err
	}

	// crm_sync and embed_summarize touch disjoint fields; run them
	// concurrently and fail the run if either fails.
	if err := p.setStage(ctx, StageCRMSync+"+"+StageEmbedSummarize); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runStage(gctx, StageCRMSync, partials, p.stageCRMSync) })
	g.Go(func() error { return p.runStage(gctx, StageEmbedSummarize, partials, p.stageEmbedSummarize) })
	if err := g.Wait(); err != nil {
		return err
	}

	for _, s := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageInferRelations, p.stageInferRelationships},
		{StagePropagateFlags, p.stagePropagateFlags},
		{StagePostDedup, p.stageDedup},
		{StageRecomputeMetric, p.stageRecomputeMetrics},
	} {
		if err := p.setStage(ctx, s.name); err != nil {
			return err
		}
		if err := p.runStage(ctx, s.name, partials, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// runStage wraps a stage with deadline handling, partial-failure tolerance
// and progress notification. A PartialBatchError degrades the run message
// but does not stop it; anything else is fatal for the run.
func (p *Pipeline) runStage(ctx context.Context, name string, partials *[]string, fn func(context.Context) error) error {
	p.notify(name, "started")
	err := fn(ctx)

	var partial *PartialBatchError
	switch {
	case err == nil:
		p.notify(name, "completed")
		return nil
	case errors.As(err, &partial):
		log.Printf("pipeline: %v", partial)
		*partials = append(*partials, partial.Error())
		p.notify(name, "completed")
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		p.notify(name, "failed")
		return fmt.Errorf("stage %s: run timeout exceeded: %w", name, err)
	default:
		p.notify(name, "failed")
		return fmt.Errorf("stage %s: %w", name, err)
	}
}

func (p *Pipeline) setStage(ctx context.Context, stage string) error {
	if err := p.store.SetSyncStage(ctx, stage); err != nil {
		return fmt.Errorf("recording stage %s: %w", stage, err)
	}
	return nil
}

func (p *Pipeline) notify(stage, status string) {
	if p.OnStage != nil {
		p.OnStage(stage, status)
	}
	log.Printf("pipeline: stage %s %s", stage, status)
}

// waitBatch blocks until the limiter grants the next provider-bound batch.
func (p *Pipeline) waitBatch(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// stageDedup runs grouping and merge over the whole graph. Used for both
// pre_dedup and post_dedup.
func (p *Pipeline) stageDedup(ctx context.Context) error {
	entities, err := listAllEntities(ctx, p.store)
	if err != nil {
		return err
	}
	groups := p.dedup.FindDuplicateGroups(entities)
	if len(groups) == 0 {
		return nil
	}
	report, err := p.dedup.Merge(ctx, groups, false)
	if err != nil {
		return err
	}
	log.Printf("pipeline: dedup merged %d groups (%d failed)", report.Merged, report.Failed)
	if report.Failed > 0 {
		return &PartialBatchError{Stage: "dedup", Failed: report.Failed, Total: len(groups)}
	}
	return nil
}

// stageCRMSync pulls organizations, people, edges and notes from the CRM
// and upserts them with crm: provenance.
func (p *Pipeline) stageCRMSync(ctx context.Context) error {
	if p.source == nil {
		log.Printf("pipeline: no CRM source configured, skipping %s", StageCRMSync)
		return nil
	}

	observedAt := time.Now().UTC()
	failed, total := 0, 0
	entityIDs := make(map[string]string) // CRM record ID -> entity ID

	orgs, err := p.source.FetchOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("fetching organizations: %w", err)
	}
	for i, o := range orgs {
		if err := p.batchGate(ctx, i); err != nil {
			return err
		}
		total++
		id, err := p.store.UpsertEntity(ctx, crm.OrganizationEntity(o))
		if err != nil {
			log.Printf("pipeline: failed to upsert organization %q: %v", o.Name, err)
			failed++
			continue
		}
		entityIDs[o.ID] = id
	}

	people, err := p.source.FetchPeople(ctx)
	if err != nil {
		return fmt.Errorf("fetching people: %w", err)
	}
	for i, person := range people {
		if err := p.batchGate(ctx, i); err != nil {
			return err
		}
		total++
		id, err := p.store.UpsertEntity(ctx, crm.PersonEntity(person))
		if err != nil {
			log.Printf("pipeline: failed to upsert person %q: %v", person.Name, err)
			failed++
			continue
		}
		entityIDs[person.ID] = id
	}

	// Edges go in a second pass so both endpoints already exist.
	for _, person := range people {
		personID, ok := entityIDs[person.ID]
		if !ok {
			continue
		}
		edges, missing := crm.PersonEdges(person, personID, entityIDs, observedAt)
		if len(missing) > 0 {
			log.Printf("pipeline: person %q references %d unknown CRM records", person.Name, len(missing))
		}
		for _, edge := range edges {
			total++
			if err := p.store.UpsertRelationship(ctx, edge); err != nil {
				log.Printf("pipeline: failed to upsert edge %s->%s: %v", edge.SourceID, edge.TargetID, err)
				failed++
			}
		}
	}

	notes, err := p.source.FetchNotes(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("fetching notes: %w", err)
	}
	for _, n := range notes {
		it := crm.NoteInteraction(n, entityIDs)
		if it == nil {
			continue
		}
		total++
		if err := p.store.UpsertInteraction(ctx, it); err != nil {
			log.Printf("pipeline: failed to upsert interaction %s: %v", it.ID, err)
			failed++
		}
	}

	if failed > 0 {
		return &PartialBatchError{Stage: StageCRMSync, Failed: failed, Total: total}
	}
	return nil
}

// stageEmbedSummarize fills in missing entity embeddings and interaction
// summaries. Per-item provider failures are counted, never batch-fatal.
func (p *Pipeline) stageEmbedSummarize(ctx context.Context) error {
	if p.embed == nil {
		log.Printf("pipeline: no embedding provider configured, skipping %s", StageEmbedSummarize)
		return nil
	}

	failed, total := 0, 0

	entities, err := p.store.ListEntitiesMissingEmbedding(ctx, 1000)
	if err != nil {
		return err
	}
	for i, e := range entities {
		if err := p.batchGate(ctx, i); err != nil {
			return err
		}
		total++
		vec, err := p.embed.Embed(ctx, embeddingText(e))
		if err != nil {
			log.Printf("pipeline: failed to embed entity %s: %v", e.ID, err)
			failed++
			continue
		}
		if err := p.store.UpdateEntityEmbedding(ctx, e.ID, vec, p.embed.GetModel()); err != nil {
			log.Printf("pipeline: failed to store embedding for %s: %v", e.ID, err)
			failed++
		}
	}

	if p.text != nil {
		interactions, err := p.store.ListUnsummarized(ctx, 500)
		if err != nil {
			return err
		}
		for i, it := range interactions {
			if err := p.batchGate(ctx, i); err != nil {
				return err
			}
			total++
			if err := p.summarizeInteraction(ctx, it); err != nil {
				log.Printf("pipeline: failed to summarize interaction %s: %v", it.ID, err)
				failed++
			}
		}
	}

	if failed > 0 {
		return &PartialBatchError{Stage: StageEmbedSummarize, Failed: failed, Total: total}
	}
	return nil
}

func (p *Pipeline) summarizeInteraction(ctx context.Context, it *types.Interaction) error {
	raw, err := p.text.Complete(ctx, llm.SummarizationPrompt(it.Content))
	if err != nil {
		return err
	}
	summary, err := llm.ParseSummaryResponse(raw)
	if err != nil {
		return err
	}
	var vec []float32
	if v, err := p.embed.Embed(ctx, summary.Summary); err == nil {
		vec = v
	} else {
		log.Printf("pipeline: failed to embed summary for %s: %v", it.ID, err)
	}
	return p.store.UpdateInteractionSummary(ctx, it.ID, summary.Summary, summary.Themes, vec)
}

// stageInferRelationships asks the model to infer edges among entities that
// share tags. Responses are schema-validated; invalid entries are
// quarantined by the parser and only counted here.
func (p *Pipeline) stageInferRelationships(ctx context.Context) error {
	if p.text == nil {
		log.Printf("pipeline: no text provider configured, skipping %s", StageInferRelations)
		return nil
	}

	entities, err := listAllEntities(ctx, p.store)
	if err != nil {
		return err
	}
	groups := groupByTag(entities, p.cfg.InferenceGroupLimit)
	if len(groups) == 0 {
		return nil
	}

	// Entity names in model responses resolve through the same
	// normalization the store keys on.
	byName := make(map[string]*types.Entity, len(entities))
	for _, e := range entities {
		byName[types.NormalizeName(e.Name)] = e
	}

	failed, total, quarantinedTotal := 0, 0, 0
	for _, group := range groups {
		if err := p.waitBatch(ctx); err != nil {
			return err
		}
		total++
		contexts := make([]llm.EntityContext, 0, len(group))
		for _, e := range group {
			contexts = append(contexts, llm.EntityContext{
				Name: e.Name, Kind: e.Kind, Description: e.Description, Tags: e.Tags,
			})
		}

		raw, err := p.text.Complete(ctx, llm.RelationshipInferencePrompt(contexts))
		if err != nil {
			log.Printf("pipeline: inference completion failed: %v", err)
			failed++
			continue
		}
		inferred, quarantined, err := llm.ParseRelationshipResponse(raw)
		quarantinedTotal += quarantined
		if err != nil {
			log.Printf("pipeline: inference response rejected: %v", err)
			failed++
			continue
		}

		for _, rel := range inferred {
			source, okS := byName[types.NormalizeName(rel.Source)]
			target, okT := byName[types.NormalizeName(rel.Target)]
			if !okS || !okT || source.ID == target.ID {
				quarantinedTotal++
				continue
			}
			// Inferred edges never claim more confidence than 0.6.
			weight := rel.Weight
			if weight > 0.6 {
				weight = 0.6
			}
			err := p.store.UpsertRelationship(ctx, &types.Relationship{
				SourceID: source.ID,
				TargetID: target.ID,
				Kind:     rel.Kind,
				Weight:   weight,
				Evidence: []types.Evidence{{
					ProvenanceID: fmt.Sprintf("inf:%s:%s:%s", source.ID, target.ID, rel.Kind),
					Source:       "inference",
					ObservedAt:   time.Now().UTC(),
				}},
			})
			if err != nil {
				log.Printf("pipeline: failed to upsert inferred edge: %v", err)
				failed++
			}
		}
	}
	if quarantinedTotal > 0 {
		log.Printf("pipeline: quarantined %d invalid inference entries", quarantinedTotal)
	}
	if failed > 0 {
		return &PartialBatchError{Stage: StageInferRelations, Failed: failed, Total: total}
	}
	return nil
}

func (p *Pipeline) stagePropagateFlags(ctx context.Context) error {
	n, err := p.store.PropagatePortfolioFlags(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("pipeline: propagated portfolio flag to %d entities", n)
	}
	return nil
}

func (p *Pipeline) stageRecomputeMetrics(ctx context.Context) error {
	scores, err := p.metrics.Recompute(ctx)
	if err != nil {
		return err
	}
	log.Printf("pipeline: recomputed importance for %d entities", len(scores))
	return nil
}

// batchGate applies the rate limiter at batch boundaries.
func (p *Pipeline) batchGate(ctx context.Context, index int) error {
	if index%p.cfg.BatchSize == 0 {
		return p.waitBatch(ctx)
	}
	return nil
}

// embeddingText builds the text an entity is embedded from.
func embeddingText(e *types.Entity) string {
	parts := []string{e.Name}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if len(e.Tags) > 0 {
		parts = append(parts, strings.Join(e.Tags, " "))
	}
	return strings.Join(parts, "\n")
}

// groupByTag buckets entities by shared tag, capping each bucket. Buckets
// with fewer than two members carry no inference signal.
func groupByTag(entities []*types.Entity, limit int) [][]*types.Entity {
	byTag := make(map[string][]*types.Entity)
	for _, e := range entities {
		for _, tag := range e.Tags {
			if len(byTag[tag]) < limit {
				byTag[tag] = append(byTag[tag], e)
			}
		}
	}

	// Deterministic order keeps runs reproducible.
	tags := make([]string, 0, len(byTag))
	for tag, members := range byTag {
		if len(members) >= 2 {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	groups := make([][]*types.Entity, 0, len(tags))
	for _, tag := range tags {
		groups = append(groups, byTag[tag])
	}
	return groups
}
