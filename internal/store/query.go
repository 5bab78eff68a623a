package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vitae-dev/vitae/internal/classify"
	"github.com/vitae-dev/vitae/internal/record"
)

// Tag is one classified label row.
type Tag struct {
	Label string
	Kind  classify.Kind
}

// Relation is a directed typed edge between two entities.
type Relation struct {
	FromID string
	Kind   string
	ToID   string
}

// Counts summarizes store contents for run reporting.
type Counts struct {
	Entities  int
	Tags      int
	Relations int
}

const recordColumns = `id, flavor, category, title, description, url, source,
	source_url, date, start_date, end_date, is_current, organization, ext,
	llm_enriched, llm_enriched_at, llm_model`

// GetRecord loads one entity with its tags hydrated back into the
// tag/skill/technology lists. Returns ErrNotFound for unknown ids.
func (s *Store) GetRecord(ctx context.Context, id string) (*record.Record, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM entities WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
	}
	if err := s.hydrateTags(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Filter configures ListRecords.
type Filter struct {
	Flavor     string // empty = all
	Source     string // empty = all
	Unenriched bool   // only records still flagged for enrichment
	Limit      int    // 0 = no limit
}

// ListRecords returns entities matching the filter, most recently
// updated first, with tags hydrated.
func (s *Store) ListRecords(ctx context.Context, f Filter) ([]record.Record, error) {
	var conditions []string
	var args []any

	if f.Flavor != "" {
		conditions = append(conditions, "flavor = ?")
		args = append(args, f.Flavor)
	}
	if f.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, f.Source)
	}
	if f.Unenriched {
		conditions = append(conditions, "llm_enriched = 0")
		// Canonical technology entities have nothing to enrich.
		conditions = append(conditions, "flavor != ?")
		args = append(args, record.FlavorTechnology)
	}

	query := "SELECT " + recordColumns + " FROM entities"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var recs []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	for i := range recs {
		if err := s.hydrateTags(ctx, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// TagsFor returns the classified tag rows for one entity.
func (s *Store) TagsFor(ctx context.Context, id string) ([]Tag, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT tag, kind FROM tags WHERE entity_id = ? ORDER BY kind, tag", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		var kind string
		if err := rows.Scan(&t.Label, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		t.Kind = classify.Kind(kind)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// TagCount is one distinct label with the number of entities carrying it.
type TagCount struct {
	Label string
	Kind  classify.Kind
	Count int
}

// ListTags returns every distinct tag across the store with usage
// counts, most used first. A limit of 0 returns all of them.
func (s *Store) ListTags(ctx context.Context, limit int) ([]TagCount, error) {
	query := `SELECT tag, kind, COUNT(*) AS n FROM tags
		GROUP BY tag, kind ORDER BY n DESC, tag`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag counts: %w", err)
	}
	defer rows.Close()

	var tags []TagCount
	for rows.Next() {
		var t TagCount
		var kind string
		if err := rows.Scan(&t.Label, &kind, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		t.Kind = classify.Kind(kind)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// RelationsFrom returns the relations originating at the given entity.
func (s *Store) RelationsFrom(ctx context.Context, id string) ([]Relation, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT from_id, kind, to_id FROM relations WHERE from_id = ? ORDER BY kind, to_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var rels []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.FromID, &r.Kind, &r.ToID); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// FindByTitle resolves an entity id by exact title match outside a
// cascade, for targeted CLI updates. Empty string when absent.
func (s *Store) FindByTitle(ctx context.Context, title string) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE title = ? LIMIT 1", title).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", title, err)
	}
	return id, nil
}

// GetCounts returns totals for run summaries.
func (s *Store) GetCounts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM entities", &c.Entities},
		{"SELECT COUNT(*) FROM tags", &c.Tags},
		{"SELECT COUNT(*) FROM relations", &c.Relations},
	} {
		if err := s.conn.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("failed to count: %w", err)
		}
	}
	return c, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*record.Record, error) {
	var rec record.Record
	var category, description, url, source, sourceURL sql.NullString
	var date, startDate, endDate, organization, ext sql.NullString
	var enrichedAt, model sql.NullString
	var isCurrent, enriched int

	err := row.Scan(
		&rec.ID, &rec.Flavor, &category, &rec.Title, &description,
		&url, &source, &sourceURL, &date, &startDate, &endDate,
		&isCurrent, &organization, &ext,
		&enriched, &enrichedAt, &model,
	)
	if err != nil {
		return nil, err
	}

	rec.Category = category.String
	rec.Description = description.String
	rec.URL = url.String
	rec.Source = source.String
	rec.SourceURL = sourceURL.String
	rec.Date = date.String
	rec.StartDate = startDate.String
	rec.EndDate = endDate.String
	rec.Organization = organization.String
	rec.Current = isCurrent != 0
	rec.Enriched = enriched != 0
	rec.EnrichedAt = enrichedAt.String
	rec.Model = model.String

	if ext.Valid && ext.String != "" {
		if err := json.Unmarshal([]byte(ext.String), &rec.Ext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ext payload: %w", err)
		}
	}
	return &rec, nil
}

// hydrateTags loads the entity's tag rows back into the record's three
// label lists, inverting the classification applied at upsert time.
func (s *Store) hydrateTags(ctx context.Context, rec *record.Record) error {
	tags, err := s.TagsFor(ctx, rec.ID)
	if err != nil {
		return err
	}
	rec.Tags, rec.Skills, rec.Technologies = nil, nil, nil
	for _, t := range tags {
		switch t.Kind {
		case classify.KindTechnology:
			rec.Technologies = append(rec.Technologies, t.Label)
		case classify.KindCapability:
			rec.Skills = append(rec.Skills, t.Label)
		default:
			rec.Tags = append(rec.Tags, t.Label)
		}
	}
	return nil
}
