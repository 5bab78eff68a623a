// Package store provides the SQLite entity store for vitae.
//
// The store is the authoritative side of the sync engine: it owns the
// identifier space (identifiers are minted here on first insert and
// never reused) and serializes all writes. Dependent rows, tags and
// outgoing relations, are replaced as a cascade inside one transaction
// per entity, so a reader never observes an entity with old tags but new
// relations and a crash mid-cascade cannot leave orphans.
//
// The database runs embedded with WAL for concurrent readers during
// sync passes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/vitae-dev/vitae/internal/classify"
)

// ErrNotFound is returned when an update references an identifier the
// store does not know. Accepting a foreign identifier would corrupt the
// identifier space, so this is a hard failure for that record.
var ErrNotFound = errors.New("entity not found")

// Store wraps the SQLite connection together with the tag classifier
// used during cascades.
type Store struct {
	conn       *sql.DB
	path       string
	classifier *classify.Classifier
	logger     *log.Logger
}

// Open creates the entity store at path. The parent directory is
// created if needed. The caller must call Close when done.
func Open(path string, classifier *classify.Classifier, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, classifier: classifier, logger: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return s, nil
}

// Close closes the connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("WARNING: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the schema if it does not exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id              TEXT PRIMARY KEY,
		flavor          TEXT NOT NULL,
		category        TEXT,
		title           TEXT NOT NULL,
		description     TEXT,
		url             TEXT,
		source          TEXT,
		source_url      TEXT,
		date            TEXT,
		start_date      TEXT,
		end_date        TEXT,
		is_current      INTEGER NOT NULL DEFAULT 0,
		organization    TEXT,
		parent_id       TEXT REFERENCES entities(id),
		ext             TEXT,  -- JSON payload, flavor-specific
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		llm_enriched    INTEGER NOT NULL DEFAULT 0,
		llm_enriched_at TEXT,
		llm_model       TEXT
	);

	CREATE TABLE IF NOT EXISTS tags (
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		tag       TEXT NOT NULL,
		kind      TEXT NOT NULL DEFAULT 'generic',  -- technology | capability | generic
		UNIQUE(entity_id, tag, kind)
	);

	CREATE TABLE IF NOT EXISTS relations (
		from_id    TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		kind       TEXT NOT NULL,  -- uses-technology | belongs-to | part-of
		to_id      TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, kind, to_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_flavor ON entities(flavor);
	CREATE INDEX IF NOT EXISTS idx_entities_source ON entities(source);
	CREATE INDEX IF NOT EXISTS idx_entities_source_url
	    ON entities(source, url) WHERE url IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entities_title ON entities(title);
	CREATE INDEX IF NOT EXISTS idx_entities_enriched ON entities(llm_enriched);
	CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_id);

	CREATE INDEX IF NOT EXISTS idx_tags_entity ON tags(entity_id);
	CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);
	CREATE INDEX IF NOT EXISTS idx_tags_kind ON tags(kind);

	CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id);
	CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id);
	CREATE INDEX IF NOT EXISTS idx_relations_kind ON relations(kind);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
