// Package postgres provides the production PostgreSQL implementation of the
// storage interfaces. Vector similarity uses the pgvector extension when
// available and degrades to in-process ranking when it is not.
package postgres

import "fmt"

// Schema contains the base schema. All statements are idempotent; the
// pgvector column is added separately by MigrationPgvector so the base schema
// applies on servers without the extension.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    name_norm          TEXT NOT NULL,
    kind               TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    tags               JSONB NOT NULL DEFAULT '[]',
    enrichment         JSONB,
    embedding          BYTEA,
    embedding_model    TEXT NOT NULL DEFAULT '',
    is_internal        BOOLEAN NOT NULL DEFAULT FALSE,
    is_portfolio       BOOLEAN NOT NULL DEFAULT FALSE,
    is_pipeline        BOOLEAN NOT NULL DEFAULT FALSE,
    curated_importance DOUBLE PRECISION NOT NULL DEFAULT 0,
    importance         DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    first_seen         TIMESTAMP,
    last_seen          TIMESTAMP,
    UNIQUE(name_norm, kind)
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_importance ON entities(importance DESC);
CREATE INDEX IF NOT EXISTS idx_entities_portfolio ON entities(is_portfolio) WHERE is_portfolio;

CREATE TABLE IF NOT EXISTS relationships (
    id         TEXT PRIMARY KEY,
    source_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    kind       TEXT NOT NULL,
    weight     DOUBLE PRECISION NOT NULL DEFAULT 0,
    evidence   JSONB NOT NULL DEFAULT '[]',
    first_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_id, target_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS interactions (
    id              TEXT PRIMARY KEY,
    entity_id       TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    kind            TEXT NOT NULL,
    occurred_at     TIMESTAMP NOT NULL,
    content         TEXT NOT NULL DEFAULT '',
    summary         TEXT NOT NULL DEFAULT '',
    themes          JSONB NOT NULL DEFAULT '[]',
    embedding       BYTEA,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_interactions_entity ON interactions(entity_id);

CREATE TABLE IF NOT EXISTS sync_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    status     TEXT NOT NULL DEFAULT 'idle',
    stage      TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO sync_state (id, status) VALUES (1, 'idle') ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS sync_history (
    id          SERIAL PRIMARY KEY,
    status      TEXT NOT NULL,
    stage       TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    finished_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// MigrationPgvector adds the vector column used for indexed similarity
// search. Applied only when the pgvector extension is present.
func MigrationPgvector(dimension int) string {
	return fmt.Sprintf(`
ALTER TABLE entities ADD COLUMN IF NOT EXISTS embedding_vec vector(%d);
CREATE INDEX IF NOT EXISTS idx_entities_embedding_vec ON entities
    USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100);
`, dimension)
}
