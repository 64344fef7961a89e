// Package sqlite provides a SQLite implementation of the storage interfaces,
// used for local development and tests. Embeddings are stored as binary
// blobs and ranked with in-process cosine similarity.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lanternvc/lantern/internal/storage"
)

// Schema is the embedded SQLite schema. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	name_norm          TEXT NOT NULL,
	kind               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	tags               TEXT NOT NULL DEFAULT '[]',
	enrichment         TEXT,
	embedding          BLOB,
	embedding_model    TEXT NOT NULL DEFAULT '',
	is_internal        INTEGER NOT NULL DEFAULT 0,
	is_portfolio       INTEGER NOT NULL DEFAULT 0,
	is_pipeline        INTEGER NOT NULL DEFAULT 0,
	curated_importance REAL NOT NULL DEFAULT 0,
	importance         REAL NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	first_seen         TIMESTAMP,
	last_seen          TIMESTAMP,
	UNIQUE(name_norm, kind)
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_importance ON entities(importance DESC);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	kind       TEXT NOT NULL,
	weight     REAL NOT NULL DEFAULT 0,
	evidence   TEXT NOT NULL DEFAULT '[]',
	first_seen TIMESTAMP NOT NULL,
	last_seen  TIMESTAMP NOT NULL,
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
	themes          TEXT NOT NULL DEFAULT '[]',
	embedding       BLOB,
	embedding_model TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_entity ON interactions(entity_id);

CREATE TABLE IF NOT EXISTS sync_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	status     TEXT NOT NULL DEFAULT 'idle',
	stage      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO sync_state (id, status) VALUES (1, 'idle');

CREATE TABLE IF NOT EXISTS sync_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	finished_at TIMESTAMP NOT NULL
);
`

// Store implements storage.Store using SQLite.
type Store struct {
	db        *sql.DB
	dimension int // expected embedding dimension; 0 disables the check
}

// New opens a SQLite store at the given DSN (a file path or ":memory:") and
// applies the schema. dimension is the embedding dimensionality the store is
// indexed with; queries with mismatched query vectors fail with
// storage.ErrDimensionMismatch.
func New(dsn string, dimension int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load;
	// WAL mode keeps readers from blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db, dimension: dimension}, nil
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases any resources held by the store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// serializeEmbedding encodes a float32 vector as little-endian bytes.
// Returns nil for an empty vector so the column stays NULL.
func serializeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian float32 vector.
func deserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

// cosineSimilarity computes the cosine similarity of two equal-length vectors.
// Returns 0 for zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)
