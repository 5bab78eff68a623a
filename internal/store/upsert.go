package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vitae-dev/vitae/internal/classify"
	"github.com/vitae-dev/vitae/internal/record"
)

// Upsert inserts or updates one entity together with its full cascade:
// core fields last-write-wins, tag set replaced, outgoing relations
// rebuilt, nested initiatives recursed with a part-of relation to the
// parent. Everything runs in a single transaction, so either the whole
// cascade lands or none of it does.
//
// A record without an ID is always a new entity; a record with an ID the
// store does not know fails with ErrNotFound. Returns the entity id and
// whether a new row was inserted.
func (s *Store) Upsert(ctx context.Context, rec *record.Record) (string, bool, error) {
	if err := rec.Validate(); err != nil {
		return "", false, fmt.Errorf("invalid record: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, inserted, err := s.upsertTx(ctx, tx, rec, "")
	if err != nil {
		return "", false, err
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit cascade: %w", err)
	}
	return id, inserted, nil
}

// upsertTx performs the cascade for one record inside tx. parentID is
// non-empty when the record arrives as a nested initiative; a record
// upserted standalone inherits the parent recorded on its entity row,
// so the relation rebuild cannot drop the ownership edge.
func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, rec *record.Record, parentID string) (string, bool, error) {
	ts := nowISO()

	// Step 1/2: resolve or mint the identifier.
	id := rec.ID
	inserted := false
	if id != "" {
		var storedParent sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT parent_id FROM entities WHERE id = ?", id).Scan(&storedParent)
		if err == sql.ErrNoRows {
			return "", false, fmt.Errorf("entity %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to look up entity %s: %w", id, err)
		}
		if parentID == "" {
			parentID = storedParent.String
		}
	} else {
		id = uuid.NewString()
		inserted = true
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO entities (id, flavor, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			id, rec.Flavor, rec.Title, ts, ts); err != nil {
			return "", false, fmt.Errorf("failed to insert entity: %w", err)
		}
	}

	// Step 3: core scalar fields, last-write-wins. No field-level merge.
	var extJSON sql.NullString
	if len(rec.Ext) > 0 {
		data, err := json.Marshal(rec.Ext)
		if err != nil {
			return "", false, fmt.Errorf("failed to marshal ext payload: %w", err)
		}
		extJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE entities SET
			flavor = ?, category = ?, title = ?, description = ?,
			url = ?, source = ?, source_url = ?,
			date = ?, start_date = ?, end_date = ?, is_current = ?,
			organization = ?, parent_id = ?, ext = ?, updated_at = ?,
			llm_enriched = ?, llm_enriched_at = ?, llm_model = ?
		WHERE id = ?`,
		rec.Flavor, nullString(rec.Category), rec.Title, nullString(rec.Description),
		nullString(rec.URL), nullString(rec.Source), nullString(rec.SourceURL),
		nullString(rec.Date), nullString(rec.StartDate), nullString(rec.EndDate), boolInt(rec.Current),
		nullString(rec.Organization), nullString(parentID), extJSON, ts,
		boolInt(rec.Enriched), nullString(rec.EnrichedAt), nullString(rec.Model),
		id)
	if err != nil {
		return "", false, fmt.Errorf("failed to update entity %s: %w", id, err)
	}

	// Step 4: tag cascade. Full replace: the stored set becomes exactly
	// the classified label set of this record.
	labels := s.classifyLabels(rec)
	if _, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE entity_id = ?", id); err != nil {
		return "", false, fmt.Errorf("failed to clear tags for %s: %w", id, err)
	}
	for _, l := range labels {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO tags (entity_id, tag, kind) VALUES (?, ?, ?)",
			id, l.label, string(l.kind)); err != nil {
			return "", false, fmt.Errorf("failed to insert tag %q for %s: %w", l.label, id, err)
		}
	}

	// Step 5: relation cascade. Only relations originating here are
	// rebuilt; relations targeting this entity from elsewhere stay.
	if _, err := tx.ExecContext(ctx, "DELETE FROM relations WHERE from_id = ?", id); err != nil {
		return "", false, fmt.Errorf("failed to clear relations for %s: %w", id, err)
	}

	for _, l := range labels {
		if l.kind != classify.KindTechnology {
			continue
		}
		techID, err := s.resolveOrCreateTechnology(ctx, tx, l.label, ts)
		if err != nil {
			return "", false, err
		}
		if err := s.insertRelation(ctx, tx, id, record.RelUsesTechnology, techID, ts); err != nil {
			return "", false, err
		}
	}

	if rec.Organization != "" {
		orgID, err := s.resolveByTitle(ctx, tx, rec.Organization)
		if err != nil {
			return "", false, err
		}
		if orgID == "" {
			// Non-fatal: the entity update still succeeds, the relation
			// is simply omitted until the organization exists.
			s.logger.Printf("WARNING: organization %q not found, omitting belongs-to relation for %s", rec.Organization, rec.Title)
		} else if err := s.insertRelation(ctx, tx, id, record.RelBelongsTo, orgID, ts); err != nil {
			return "", false, err
		}
	}

	if parentID != "" {
		if err := s.insertRelation(ctx, tx, id, record.RelPartOf, parentID, ts); err != nil {
			return "", false, err
		}
	}

	// Step 6: nested sub-records.
	for i := range rec.Initiatives {
		childID, _, err := s.upsertTx(ctx, tx, &rec.Initiatives[i], id)
		if err != nil {
			return "", false, fmt.Errorf("initiative %q: %w", rec.Initiatives[i].Title, err)
		}
		rec.Initiatives[i].ID = childID
	}

	rec.ID = id
	return id, inserted, nil
}

type classifiedLabel struct {
	label string
	kind  classify.Kind
}

// classifyLabels normalizes and classifies the union of the record's
// tag, skill and technology lists, deduplicating on the canonical form.
func (s *Store) classifyLabels(rec *record.Record) []classifiedLabel {
	seen := make(map[string]struct{})
	var out []classifiedLabel
	for _, group := range [][]string{rec.Tags, rec.Skills, rec.Technologies} {
		for _, raw := range group {
			label := s.classifier.Normalize(raw)
			if label == "" {
				continue
			}
			if _, dup := seen[label]; dup {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, classifiedLabel{label: label, kind: s.classifier.Classify(label)})
		}
	}
	return out
}

// resolveOrCreateTechnology finds the canonical technology entity for a
// label, creating it on demand. Technology entities carry the dedicated
// technology flavor and a category from the classifier table.
func (s *Store) resolveOrCreateTechnology(ctx context.Context, tx *sql.Tx, label, ts string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE flavor = ? AND title = ?",
		record.FlavorTechnology, label).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to resolve technology %q: %w", label, err)
	}

	id = uuid.NewString()
	category, _ := s.classifier.TechnologyCategory(label)
	ext, _ := json.Marshal(map[string]any{"category": category})
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities (id, flavor, category, title, source, ext, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'derived', ?, ?, ?)`,
		id, record.FlavorTechnology, category, label, string(ext), ts, ts); err != nil {
		return "", fmt.Errorf("failed to create technology entity %q: %w", label, err)
	}
	s.logger.Printf("Created technology entity: %s", label)
	return id, nil
}

// resolveByTitle finds an entity by exact title match. Returns the empty
// string when nothing matches.
func (s *Store) resolveByTitle(ctx context.Context, tx *sql.Tx, title string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE title = ? LIMIT 1", title).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve entity %q: %w", title, err)
	}
	return id, nil
}

func (s *Store) insertRelation(ctx context.Context, tx *sql.Tx, from, kind, to, ts string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO relations (from_id, kind, to_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, kind, to_id) DO NOTHING`,
		from, kind, to, ts)
	if err != nil {
		return fmt.Errorf("failed to insert relation %s --%s--> %s: %w", from, kind, to, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
