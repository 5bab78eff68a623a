// Package enrich provides the LLM enrichment collaborator.
//
// Enrichment is expensive and strictly optional: the sync engine calls
// it only for records whose enrichment flag is unset, and a failure
// leaves the record persisted unenriched and flagged for retry on the
// next pass. The collaborator is opaque to the rest of the engine: it
// takes a record and returns refined text plus label suggestions.
package enrich

import (
	"context"

	"github.com/vitae-dev/vitae/internal/record"
)

// Result is the enrichment output for one record.
type Result struct {
	// Description is the refined description; empty means keep the
	// existing one.
	Description string `json:"description"`
	// Suggested labels, merged into the record's existing lists.
	Tags         []string `json:"tags"`
	Skills       []string `json:"skills"`
	Technologies []string `json:"technologies"`
	// Model identifies the model that produced this result.
	Model string `json:"-"`
}

// Enricher produces enrichment for one record. Implementations own
// their timeouts and retries; the caller records a failure per record
// and moves on.
type Enricher interface {
	Enrich(ctx context.Context, rec *record.Record) (*Result, error)
}

// Apply folds an enrichment result into the record: the refined
// description replaces a shorter original, suggestions are merged
// without duplicates, and the enrichment flag and model are stamped.
func Apply(rec *record.Record, res *Result, enrichedAt string) {
	if res.Description != "" {
		rec.Description = res.Description
	}
	rec.Tags = mergeLabels(rec.Tags, res.Tags)
	rec.Skills = mergeLabels(rec.Skills, res.Skills)
	rec.Technologies = mergeLabels(rec.Technologies, res.Technologies)
	rec.Enriched = true
	rec.EnrichedAt = enrichedAt
	rec.Model = res.Model
}

func mergeLabels(existing, suggested []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		seen[l] = struct{}{}
	}
	out := existing
	for _, l := range suggested {
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
