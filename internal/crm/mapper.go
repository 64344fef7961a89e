package crm

import (
	"fmt"
	"time"

	"github.com/lanternvc/lantern/pkg/types"
)

// Edge weights for facts held directly in the CRM. CRM data is curated, so
// these start high; inferred edges top out lower.
const (
	weightFounderOf = 0.9
	weightWorksAt   = 0.7
	weightDefault   = 0.5
)

// OrganizationEntity maps a CRM organization onto an entity candidate.
func OrganizationEntity(o Organization) *types.Entity {
	doc := types.NewEnrichmentDoc()
	if o.Domain != "" {
		doc.Set(types.FieldDomain, o.Domain)
	}
	if o.DealStage != "" {
		doc.Set(types.FieldDealStage, o.DealStage)
	}
	return &types.Entity{
		Name:        o.Name,
		Kind:        types.KindOrganization,
		Description: o.Description,
		Tags:        o.Tags,
		Enrichment:  doc,
		IsPortfolio: o.IsPortfolio,
		IsPipeline:  o.IsPipeline,
	}
}

// PersonEntity maps a CRM person onto an entity candidate.
func PersonEntity(p Person) *types.Entity {
	doc := types.NewEnrichmentDoc()
	if p.Email != "" {
		doc.Set(types.FieldEmail, p.Email)
	}
	if p.Title != "" {
		doc.Set(types.FieldTitle, p.Title)
	}
	if p.Location != "" {
		doc.Set(types.FieldLocation, p.Location)
	}
	return &types.Entity{
		Name:       p.Name,
		Kind:       types.KindPerson,
		Enrichment: doc,
		IsInternal: p.IsInternal,
	}
}

// PersonEdges maps a person's CRM links onto relationship candidates.
// entityIDs translates CRM record IDs to canonical entity IDs; links whose
// counterpart has not been upserted yet are skipped and returned in missing.
func PersonEdges(p Person, personEntityID string, entityIDs map[string]string, observedAt time.Time) (edges []*types.Relationship, missing []string) {
	if p.OrganizationID != "" {
		if orgEntityID, ok := entityIDs[p.OrganizationID]; !ok {
			missing = append(missing, p.OrganizationID)
		} else {
			kind, weight := types.RelWorksAt, float64(weightWorksAt)
			if p.IsFounder {
				kind, weight = types.RelFounderOf, weightFounderOf
			}
			edges = append(edges, &types.Relationship{
				SourceID: personEntityID,
				TargetID: orgEntityID,
				Kind:     kind,
				Weight:   weight,
				Evidence: []types.Evidence{{
					ProvenanceID: fmt.Sprintf("crm:person:%s:org", p.ID),
					Source:       "crm",
					ObservedAt:   observedAt,
				}},
			})
		}
	}

	for _, conn := range p.Connections {
		otherEntityID, ok := entityIDs[conn.PersonID]
		if !ok {
			missing = append(missing, conn.PersonID)
			continue
		}
		weight := conn.Strength
		if weight <= 0 || weight > 1 {
			weight = weightDefault
		}
		edges = append(edges, &types.Relationship{
			SourceID: personEntityID,
			TargetID: otherEntityID,
			Kind:     types.RelConnection,
			Weight:   weight,
			Evidence: []types.Evidence{{
				ProvenanceID: fmt.Sprintf("crm:conn:%s:%s", p.ID, conn.PersonID),
				Source:       "crm",
				ObservedAt:   observedAt,
			}},
		})
	}
	return edges, missing
}

// NoteInteraction maps a CRM note onto an interaction candidate. Returns nil
// when the owning person is unknown or the kind is invalid.
func NoteInteraction(n Note, entityIDs map[string]string) *types.Interaction {
	entityID, ok := entityIDs[n.PersonID]
	if !ok {
		return nil
	}
	kind := n.Kind
	if !types.IsValidInteractionKind(kind) {
		kind = types.InteractionNote
	}
	return &types.Interaction{
		ID:         "int:crm:" + n.ID,
		EntityID:   entityID,
		Kind:       kind,
		OccurredAt: n.OccurredAt,
		Content:    n.Content,
	}
}
