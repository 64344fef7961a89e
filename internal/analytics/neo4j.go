package analytics

import (
	"context"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/lanternvc/lantern/pkg/types"
)

// graphName is the GDS in-memory projection used for centrality calls.
const graphName = "lantern"

// Neo4jConfig holds connection settings for the Neo4j provider.
type Neo4jConfig struct {
	URI      string // e.g. bolt://localhost:7687
	Username string
	Password string
}

// Neo4jProvider implements Provider using a Neo4j server with the Graph Data
// Science plugin. The knowledge graph is mirrored into Neo4j on each Sync;
// the relational store stays authoritative.
type Neo4jProvider struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jProvider connects to Neo4j and verifies connectivity.
func NewNeo4jProvider(ctx context.Context, cfg Neo4jConfig) (*Neo4jProvider, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("analytics: neo4j unreachable: %w", err)
	}
	return &Neo4jProvider{driver: driver}, nil
}

// Sync replaces the mirrored graph with the given entities and edges and
// rebuilds the GDS projection.
func (p *Neo4jProvider) Sync(ctx context.Context, entities []*types.Entity, edges []*types.Relationship) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil); err != nil {
		return fmt.Errorf("analytics: failed to clear mirrored graph: %w", err)
	}

	entityRows := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		entityRows = append(entityRows, map[string]interface{}{"id": e.ID, "kind": e.Kind})
	}
	_, err := session.Run(ctx, `
		UNWIND $rows AS row
		CREATE (:Entity {id: row.id, kind: row.kind})`,
		map[string]interface{}{"rows": entityRows})
	if err != nil {
		return fmt.Errorf("analytics: failed to mirror entities: %w", err)
	}

	edgeRows := make([]map[string]interface{}, 0, len(edges))
	for _, r := range edges {
		edgeRows = append(edgeRows, map[string]interface{}{
			"source": r.SourceID, "target": r.TargetID, "weight": r.Weight,
		})
	}
	_, err = session.Run(ctx, `
		UNWIND $rows AS row
		MATCH (a:Entity {id: row.source})
		MATCH (b:Entity {id: row.target})
		CREATE (a)-[:RELATED {weight: row.weight}]->(b)`,
		map[string]interface{}{"rows": edgeRows})
	if err != nil {
		return fmt.Errorf("analytics: failed to mirror edges: %w", err)
	}

	// Rebuild the GDS projection. Dropping a missing projection is fine.
	if _, err := session.Run(ctx, `CALL gds.graph.drop($name, false)`,
		map[string]interface{}{"name": graphName}); err != nil {
		log.Printf("analytics: dropping gds projection: %v", err)
	}
	_, err = session.Run(ctx, `
		CALL gds.graph.project($name, 'Entity',
			{RELATED: {orientation: 'UNDIRECTED', properties: 'weight'}})`,
		map[string]interface{}{"name": graphName})
	if err != nil {
		return fmt.Errorf("analytics: failed to project graph: %w", err)
	}
	return nil
}

// PageRank runs GDS pagerank over the projection, normalized to [0,1] by the
// max score.
func (p *Neo4jProvider) PageRank(ctx context.Context) (map[string]float64, error) {
	return p.streamScores(ctx, `
		CALL gds.pageRank.stream($name, {relationshipWeightProperty: 'weight'})
		YIELD nodeId, score
		RETURN gds.util.asNode(nodeId).id AS id, score`)
}

// Betweenness runs GDS betweenness centrality, normalized to [0,1] by the
// max score.
func (p *Neo4jProvider) Betweenness(ctx context.Context) (map[string]float64, error) {
	return p.streamScores(ctx, `
		CALL gds.betweenness.stream($name)
		YIELD nodeId, score
		RETURN gds.util.asNode(nodeId).id AS id, score`)
}

func (p *Neo4jProvider) streamScores(ctx context.Context, query string) (map[string]float64, error) {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, map[string]interface{}{"name": graphName})
	if err != nil {
		return nil, fmt.Errorf("analytics: centrality query failed: %w", err)
	}

	scores := make(map[string]float64)
	maxScore := 0.0
	for result.Next(ctx) {
		record := result.Record()
		id := stringValue(record, "id")
		score := floatValue(record, "score")
		if id == "" {
			continue
		}
		scores[id] = score
		if score > maxScore {
			maxScore = score
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("analytics: centrality stream failed: %w", err)
	}

	if maxScore > 0 {
		for id := range scores {
			scores[id] /= maxScore
		}
	}
	return scores, nil
}

// Close releases the driver.
func (p *Neo4jProvider) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

func stringValue(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	s, _ := val.(string)
	return s
}

func floatValue(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Compile-time assertion.
var _ Provider = (*Neo4jProvider)(nil)
