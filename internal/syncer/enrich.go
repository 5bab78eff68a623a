package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitae-dev/vitae/internal/enrich"
	"github.com/vitae-dev/vitae/internal/store"
)

// ErrEnrichmentDisabled is returned by the enrichment entry points when
// no enricher is configured.
var ErrEnrichmentDisabled = errors.New("enrichment is not configured")

// EnrichPending enriches up to limit store records that still lack
// enrichment, outside a full reconciliation pass. Each record is
// re-upserted through the normal cascade and its cache entry refreshed.
func (s *Syncer) EnrichPending(ctx context.Context, limit int) (Result, error) {
	res := Result{Source: "enrich"}
	if s.enricher == nil {
		return res, ErrEnrichmentDisabled
	}

	recs, err := s.store.ListRecords(ctx, store.Filter{Unenriched: true, Limit: limit})
	if err != nil {
		return res, fmt.Errorf("list unenriched: %w", err)
	}

	for i := range recs {
		rec := &recs[i]
		src, ok := s.cfg.Sources[rec.Source]
		if ok && !src.WantsEnrichment() {
			res.Skipped++
			continue
		}
		out, err := s.enricher.Enrich(ctx, rec)
		if err != nil {
			res.addError(rec, fmt.Errorf("enrich: %w", err))
			continue
		}
		enrich.Apply(rec, out, nowISO())
		if err := s.UpdateOne(ctx, rec); err != nil {
			res.addError(rec, err)
			continue
		}
		res.Updated++
	}
	return res, nil
}

// EnrichOne enriches a single store record by identifier. force
// re-enriches a record already flagged as enriched.
func (s *Syncer) EnrichOne(ctx context.Context, id string, force bool) error {
	if s.enricher == nil {
		return ErrEnrichmentDisabled
	}
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Enriched && !force {
		s.logger.Printf("entity %s already enriched, skipping", id)
		return nil
	}
	out, err := s.enricher.Enrich(ctx, rec)
	if err != nil {
		return fmt.Errorf("enrich %s: %w", id, err)
	}
	enrich.Apply(rec, out, nowISO())
	return s.UpdateOne(ctx, rec)
}
