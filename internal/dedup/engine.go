package dedup

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// Group is a transient set of entities sharing one identity key. Groups are
// never persisted.
type Group struct {
	Key      string
	Entities []*types.Entity
}

// GroupResult records the outcome of merging one group.
type GroupResult struct {
	Key        string
	SurvivorID string
	MergedIDs  []string
	Err        error
}

// Report summarizes a merge pass.
type Report struct {
	DryRun  bool
	Merged  int // groups merged successfully
	Skipped int // groups skipped (dry run)
	Failed  int // groups that hit an error; others still proceed
	Results []GroupResult
}

// graphStore is the slice of storage the merge engine needs.
type graphStore interface {
	storage.EntityStore
	storage.RelationshipStore
}

// Engine finds and merges duplicate entities.
type Engine struct {
	store  graphStore
	policy *Policy
}

// NewEngine creates a dedup engine. A nil policy uses DefaultPolicy.
func NewEngine(store graphStore, policy *Policy) *Engine {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Engine{store: store, policy: policy}
}

// identityKey computes the grouping key for an entity: email from the
// enrichment document for people when present, else canonical name+kind.
//
// The canonical name is looser than storage's normalized name: punctuation
// is stripped, so "Acme Corp" and "Acme Corp." land in the same group even
// though the store considers them distinct rows.
func identityKey(e *types.Entity) string {
	if e.Kind == types.KindPerson && e.Enrichment != nil {
		if email := strings.ToLower(strings.TrimSpace(e.Enrichment.Get(types.FieldEmail))); email != "" {
			return "email:" + email
		}
	}
	return "name:" + canonicalName(e.Name) + "|" + e.Kind
}

// canonicalName lowercases, strips punctuation and collapses whitespace.
func canonicalName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FindDuplicateGroups partitions entities by identity key and returns the
// groups containing more than one entity, sorted by key for deterministic
// processing. Entities whose name fails validation are excluded from
// grouping and logged; they are flagged for review, never auto-deleted.
func (e *Engine) FindDuplicateGroups(entities []*types.Entity) []Group {
	byKey := make(map[string][]*types.Entity)
	for _, ent := range entities {
		if v := e.policy.ValidateName(ent.Name); !v.Valid {
			log.Printf("dedup: entity %s has suspect name %q (%s), excluded from grouping",
				ent.ID, ent.Name, v.Reason)
			continue
		}
		key := identityKey(ent)
		byKey[key] = append(byKey[key], ent)
	}

	groups := make([]Group, 0)
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		groups = append(groups, Group{Key: key, Entities: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// Merge collapses each group into its survivor: the earliest-created entity,
// tie-broken by lowest ID. Losers' edges are re-pointed through
// UpsertRelationship (so edges collapsing onto an existing edge combine
// weight and evidence), their enrichment and embedding are carried onto the
// survivor, then the losers are cascade-deleted. Each group is isolated: a
// failure is recorded and the remaining groups still run. With dryRun set,
// the report describes what would happen and nothing is written.
func (e *Engine) Merge(ctx context.Context, groups []Group, dryRun bool) (*Report, error) {
	report := &Report{DryRun: dryRun}

	for _, g := range groups {
		survivor, losers := pickSurvivor(g.Entities)
		result := GroupResult{Key: g.Key, SurvivorID: survivor.ID}
		for _, l := range losers {
			result.MergedIDs = append(result.MergedIDs, l.ID)
		}

		if dryRun {
			report.Skipped++
			report.Results = append(report.Results, result)
			continue
		}

		if err := e.mergeGroup(ctx, survivor, losers); err != nil {
			log.Printf("dedup: failed to merge group %s: %v", g.Key, err)
			result.Err = err
			report.Failed++
			report.Results = append(report.Results, result)
			continue
		}
		report.Merged++
		report.Results = append(report.Results, result)
	}

	return report, nil
}

func pickSurvivor(members []*types.Entity) (*types.Entity, []*types.Entity) {
	survivor := members[0]
	for _, m := range members[1:] {
		switch {
		case m.CreatedAt.Before(survivor.CreatedAt):
			survivor = m
		case m.CreatedAt.Equal(survivor.CreatedAt) && m.ID < survivor.ID:
			survivor = m
		}
	}
	losers := make([]*types.Entity, 0, len(members)-1)
	for _, m := range members {
		if m.ID != survivor.ID {
			losers = append(losers, m)
		}
	}
	return survivor, losers
}

func (e *Engine) mergeGroup(ctx context.Context, survivor *types.Entity, losers []*types.Entity) error {
	for _, loser := range losers {
		// Re-point every edge before the loser (and its edges) are deleted.
		rels, err := e.store.RelationshipsFor(ctx, loser.ID)
		if err != nil {
			return fmt.Errorf("listing edges for %s: %w", loser.ID, err)
		}
		for _, rel := range rels {
			sourceID, targetID := rel.SourceID, rel.TargetID
			if sourceID == loser.ID {
				sourceID = survivor.ID
			}
			if targetID == loser.ID {
				targetID = survivor.ID
			}
			// An edge between the survivor and the loser collapses to nothing.
			if sourceID == targetID {
				continue
			}
			err := e.store.UpsertRelationship(ctx, &types.Relationship{
				SourceID:  sourceID,
				TargetID:  targetID,
				Kind:      rel.Kind,
				Weight:    rel.Weight,
				Evidence:  rel.Evidence,
				FirstSeen: rel.FirstSeen,
			})
			if err != nil {
				return fmt.Errorf("re-pointing edge %s: %w", rel.ID, err)
			}
		}

		// Carry enrichment, tags and flags onto the survivor. The upsert
		// merge rules do the key-by-key work.
		_, err = e.store.UpsertEntity(ctx, &types.Entity{
			Name:              survivor.Name,
			Kind:              survivor.Kind,
			Description:       loser.Description,
			Tags:              loser.Tags,
			Enrichment:        loser.Enrichment,
			IsInternal:        loser.IsInternal,
			IsPortfolio:       loser.IsPortfolio,
			IsPipeline:        loser.IsPipeline,
			CuratedImportance: loser.CuratedImportance,
		})
		if err != nil {
			return fmt.Errorf("carrying fields from %s: %w", loser.ID, err)
		}

		// Carry the embedding when the survivor has none.
		if !survivor.HasEmbedding() && loser.HasEmbedding() {
			err := e.store.UpdateEntityEmbedding(ctx, survivor.ID, loser.Embedding, loser.EmbeddingModel)
			if err != nil {
				return fmt.Errorf("carrying embedding from %s: %w", loser.ID, err)
			}
			survivor.Embedding = loser.Embedding
		}

		if err := e.store.DeleteEntity(ctx, loser.ID); err != nil {
			return fmt.Errorf("deleting %s: %w", loser.ID, err)
		}
		log.Printf("dedup: merged %s into %s", loser.ID, survivor.ID)
	}
	return nil
}
