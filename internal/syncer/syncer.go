// Package syncer drives reconciliation between external sources, the
// per-source cache files and the entity store.
//
// One reconciliation pass handles one source: load the cache envelope,
// let the staleness verdict decide whether to trust the cache or
// re-fetch, enrich whatever still lacks enrichment, upsert every
// working record and finally write the envelope back with fresh
// identifiers and a new last-synced timestamp. Sources are independent
// units of work; a failed source never blocks the others.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitae-dev/vitae/internal/cache"
	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/enrich"
	"github.com/vitae-dev/vitae/internal/fetch"
	"github.com/vitae-dev/vitae/internal/record"
	"github.com/vitae-dev/vitae/internal/store"
)

// maxParallelSources bounds concurrent reconciliation passes. SQLite
// serializes writes anyway; this keeps fetches polite.
const maxParallelSources = 4

// Syncer reconciles sources against the store.
type Syncer struct {
	store    *store.Store
	cfg      *config.Config
	enricher enrich.Enricher // nil disables enrichment for the run
	client   *http.Client
	logger   *log.Logger

	// DryRun reports what a pass would do without touching the store
	// or the cache files.
	DryRun bool
}

// New builds a Syncer. enricher may be nil; client and logger fall
// back to defaults when nil.
func New(st *store.Store, cfg *config.Config, enricher enrich.Enricher, client *http.Client, logger *log.Logger) *Syncer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		store:    st,
		cfg:      cfg,
		enricher: enricher,
		client:   client,
		logger:   logger,
	}
}

// ReconcileAll runs one pass over every enabled source. Sources run in
// parallel with no shared mutable state; each source's failure is
// recorded in its own result and never aborts the run.
func (s *Syncer) ReconcileAll(ctx context.Context, force bool) []Result {
	slugs := make([]string, 0, len(s.cfg.Sources))
	for slug := range s.cfg.Sources {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	results := make([]Result, len(slugs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSources)
	for i, slug := range slugs {
		g.Go(func() error {
			res := s.Reconcile(ctx, slug, force)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// Reconcile runs one reconciliation pass for one source. Source-level
// failures (corrupt cache, fetch failure, write failure) are reported
// in Result.Err; record-level failures are collected in Result.Errors
// and never abort the batch.
func (s *Syncer) Reconcile(ctx context.Context, slug string, force bool) Result {
	res := Result{Source: slug}

	src, ok := s.cfg.Sources[slug]
	if !ok {
		res.Err = fmt.Errorf("unknown source %q", slug)
		return res
	}
	if !src.IsEnabled() {
		res.Verdict = cache.Unchanged
		return res
	}

	path := cache.Path(s.cfg.CacheDir, slug)
	env, err := cache.Load(path)
	if err != nil {
		// Corrupt cache aborts this source only. Never guess at a
		// half-readable envelope.
		res.Err = fmt.Errorf("load cache: %w", err)
		return res
	}

	res.Verdict = s.detect(path, src, env, force)
	s.logger.Printf("source %s: verdict %s", slug, res.Verdict)

	if res.Verdict == cache.Unchanged && !env.Empty() {
		res.Skipped = len(env.Records)
		return res
	}

	// Build the working record set.
	switch {
	case res.Verdict == cache.ManualEdit:
		// The human-edited cache is authoritative; no fetch.
	default:
		fresh, err := s.fetchFresh(ctx, src)
		if err != nil {
			res.Err = fmt.Errorf("fetch %s: %w", slug, err)
			return res
		}
		env.Records = s.merge(fresh, env)
	}
	env.Source = slug

	if s.DryRun {
		s.preview(ctx, env.Records, &res)
		return res
	}

	s.enrichBatch(ctx, src, env.Records, &res)
	s.upsertBatch(ctx, env.Records, &res)

	// The envelope is rewritten whenever a pass did work, so the fresh
	// last-synced timestamp clears the staleness signal that triggered
	// it. A pure skip never rewrites the file; touching it would look
	// like a manual edit next run.
	if err := cache.Save(path, env); err != nil {
		res.Err = fmt.Errorf("write cache: %w", err)
	}
	return res
}

// detect assembles the staleness state for one source.
func (s *Syncer) detect(path string, src config.Source, env *record.Envelope, force bool) cache.Verdict {
	st := cache.State{
		LastSynced: env.LastSynced,
		Force:      force,
	}
	if mt, err := cache.ModTime(path); err == nil {
		st.CacheMTime = mt
	}
	if src.Document != "" {
		if fi, err := os.Stat(src.Document); err == nil {
			st.SourceMTime = fi.ModTime()
		}
	}
	return cache.Detect(st)
}

func (s *Syncer) fetchFresh(ctx context.Context, src config.Source) ([]record.Record, error) {
	f, err := fetch.For(src, s.client, s.logger)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, src)
}

// merge matches freshly fetched records against the cached envelope by
// natural key. Fresh content wins for title, description and dates; the
// cache contributes the assigned identifier and, when upstream content
// is unchanged since the last fetch, the prior enrichment. A material
// change clears the enrichment flag so the record is re-enriched.
func (s *Syncer) merge(fresh []record.Record, env *record.Envelope) []record.Record {
	merged := make([]record.Record, 0, len(fresh))
	for _, f := range fresh {
		f.ContentHash = f.Fingerprint()
		cached := env.Find(f.NaturalKey())
		if cached == nil {
			merged = append(merged, f)
			continue
		}
		// The fetch-time fingerprint decides whether upstream changed.
		// Comparing fields directly would always see a diff on enriched
		// records, whose description the model rewrote; the field
		// comparison only serves envelopes written before fingerprints.
		unchanged := f.ContentHash == cached.ContentHash
		if cached.ContentHash == "" {
			unchanged = f.ContentEqual(cached)
		}
		if cached.Enriched && unchanged {
			// Nothing changed upstream; keep the enriched cached copy.
			merged = append(merged, *cached)
			continue
		}
		f.ID = cached.ID
		if cached.Enriched {
			s.logger.Printf("record %q changed upstream, re-enrichment queued", f.Title)
		}
		merged = append(merged, f)
	}
	return merged
}

// enrichBatch enriches every working record still lacking enrichment.
// Each failure is a per-record error; the record persists unenriched
// and stays flagged for retry on the next pass.
func (s *Syncer) enrichBatch(ctx context.Context, src config.Source, recs []record.Record, res *Result) {
	if s.enricher == nil || !src.WantsEnrichment() {
		return
	}
	for i := range recs {
		if recs[i].Enriched {
			continue
		}
		out, err := s.enricher.Enrich(ctx, &recs[i])
		if err != nil {
			res.addError(&recs[i], fmt.Errorf("enrich: %w", err))
			continue
		}
		enrich.Apply(&recs[i], out, nowISO())
	}
}

// upsertBatch persists the working set one record at a time. A bad
// record is recorded and skipped; the rest of the batch proceeds.
func (s *Syncer) upsertBatch(ctx context.Context, recs []record.Record, res *Result) {
	for i := range recs {
		_, created, err := s.store.Upsert(ctx, &recs[i])
		if err != nil {
			res.addError(&recs[i], err)
			continue
		}
		if created {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
}

// preview classifies what a dry run would have done.
func (s *Syncer) preview(ctx context.Context, recs []record.Record, res *Result) {
	for i := range recs {
		if recs[i].ID == "" {
			res.Inserted++
			continue
		}
		if _, err := s.store.GetRecord(ctx, recs[i].ID); errors.Is(err, store.ErrNotFound) {
			res.addError(&recs[i], err)
			continue
		}
		res.Updated++
	}
}

// UpdateOne pushes a single identified record through the same cascade
// path as a full pass, then refreshes its cache entry so the next run
// does not read the change back as a manual edit.
func (s *Syncer) UpdateOne(ctx context.Context, rec *record.Record) error {
	if rec.ID == "" {
		return errors.New("record has no identifier")
	}
	if _, _, err := s.store.Upsert(ctx, rec); err != nil {
		return err
	}
	if rec.Source == "" {
		return nil
	}
	path := cache.Path(s.cfg.CacheDir, rec.Source)
	env, err := cache.Load(path)
	if err != nil || env.Empty() {
		return err
	}
	for i := range env.Records {
		if env.Records[i].ID == rec.ID {
			// Store rows carry neither the fetch-time fingerprint nor
			// the nested initiatives; keep the envelope's so the next
			// fetch still compares against the raw upstream content
			// and the nesting survives the write-back.
			if rec.ContentHash == "" {
				rec.ContentHash = env.Records[i].ContentHash
			}
			if rec.Initiatives == nil {
				rec.Initiatives = env.Records[i].Initiatives
			}
			env.Records[i] = *rec
			return cache.Save(path, env)
		}
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
