package syncer

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitae-dev/vitae/internal/cache"
	"github.com/vitae-dev/vitae/internal/classify"
	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/enrich"
	"github.com/vitae-dev/vitae/internal/record"
	"github.com/vitae-dev/vitae/internal/store"
)

const testDocument = `experience:
  - role: Data Engineer
    company: Acme Corp
    start_date: "2021-03"
    is_current: true
    technologies: [Go, PostgreSQL]
projects:
  - title: Feed Reader
    url: https://x/feed-reader
    description: A small feed reader
    tags: [Open Source]
`

// fakeEnricher implements enrich.Enricher for tests.
type fakeEnricher struct {
	calls int
	fail  bool
}

func (f *fakeEnricher) Enrich(ctx context.Context, rec *record.Record) (*enrich.Result, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("model unavailable")
	}
	return &enrich.Result{
		Description: "Refined: " + rec.Title,
		Skills:      []string{"Consulting"},
		Model:       "fake-model",
	}, nil
}

// testHarness wires a syncer over a temp store, cache dir and one
// manual source backed by a document file.
type testHarness struct {
	syncer *Syncer
	store  *store.Store
	cfg    *config.Config
	doc    string
	cache  string
	logBuf *bytes.Buffer
	enrich *fakeEnricher
}

func newHarness(t *testing.T, enricher *fakeEnricher) *testHarness {
	t.Helper()
	dir := t.TempDir()

	doc := filepath.Join(dir, "resume.yaml")
	if err := os.WriteFile(doc, []byte(testDocument), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		StorePath: filepath.Join(dir, "vitae.db"),
		CacheDir:  filepath.Join(dir, "cache"),
		Sources: map[string]config.Source{
			"resume": {Slug: "resume", Connector: "manual", Document: doc},
		},
	}

	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	st, err := store.Open(cfg.StorePath, classify.New(classify.Tables{}), logger)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	var e enrich.Enricher
	if enricher != nil {
		e = enricher
	}
	return &testHarness{
		syncer: New(st, cfg, e, nil, logger),
		store:  st,
		cfg:    cfg,
		doc:    doc,
		cache:  cache.Path(cfg.CacheDir, "resume"),
		logBuf: &logBuf,
		enrich: enricher,
	}
}

// backdateDocument moves the document mtime behind the cache's
// last-synced stamp so the next pass reads as unchanged.
func (h *testHarness) backdateDocument(t *testing.T) {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(h.doc, past, past); err != nil {
		t.Fatal(err)
	}
}

// editCache rewrites the cache envelope in place, preserving the
// recorded last-synced stamp but bumping the file mtime past it, the
// way a human edit looks on disk.
func (h *testHarness) editCache(t *testing.T, edit func(*record.Envelope)) {
	t.Helper()
	env, err := cache.Load(h.cache)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	edit(env)
	data, err := yaml.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.cache, data, 0644); err != nil {
		t.Fatal(err)
	}
	edited := env.LastSynced.Add(time.Minute)
	if err := os.Chtimes(h.cache, edited, edited); err != nil {
		t.Fatal(err)
	}
}

// TestReconcile_FirstPass tests the cache-absent path: fetch, upsert,
// write the envelope with minted identifiers.
func TestReconcile_FirstPass(t *testing.T) {
	h := newHarness(t, nil)

	res := h.syncer.Reconcile(context.Background(), "resume", false)
	if res.Err != nil {
		t.Fatalf("Reconcile() failed: %v", res.Err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Errorf("inserted/updated = %d/%d, want 2/0", res.Inserted, res.Updated)
	}

	env, err := cache.Load(h.cache)
	if err != nil {
		t.Fatalf("cache Load() failed: %v", err)
	}
	if len(env.Records) != 2 {
		t.Fatalf("cached records = %d, want 2", len(env.Records))
	}
	for _, rec := range env.Records {
		if rec.ID == "" {
			t.Errorf("record %q written back without identifier", rec.Title)
		}
	}
	if env.LastSynced.IsZero() {
		t.Error("envelope written back without last-synced stamp")
	}
}

// TestReconcile_UnchangedSkips tests that a second pass with nothing
// new does no work and does not rewrite the cache file.
func TestReconcile_UnchangedSkips(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("first pass failed: %v", res.Err)
	}
	h.backdateDocument(t)

	before, err := cache.ModTime(h.cache)
	if err != nil {
		t.Fatal(err)
	}

	res := h.syncer.Reconcile(ctx, "resume", false)
	if res.Err != nil {
		t.Fatalf("second pass failed: %v", res.Err)
	}
	if res.Verdict != cache.Unchanged {
		t.Errorf("verdict = %v, want unchanged", res.Verdict)
	}
	if res.Skipped != 2 || res.Inserted != 0 || res.Updated != 0 {
		t.Errorf("result = %+v, want 2 skipped and no writes", res)
	}

	after, _ := cache.ModTime(h.cache)
	if !after.Equal(before) {
		t.Error("unchanged pass rewrote the cache file")
	}
}

// TestReconcile_ManualEditWins tests the sacrosanct-edit rule: an
// edited cache is loaded as-is, the document is not re-parsed even if
// it also changed, and the envelope is re-saved with a fresh stamp.
func TestReconcile_ManualEditWins(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("first pass failed: %v", res.Err)
	}

	var editedID string
	h.editCache(t, func(env *record.Envelope) {
		for i := range env.Records {
			if env.Records[i].Title == "Feed Reader" {
				env.Records[i].Title = "Feed Reader (rewritten)"
				editedID = env.Records[i].ID
			}
		}
	})
	// The document changed too; the manual edit must still win.
	if err := os.WriteFile(h.doc, []byte("projects:\n  - title: Should Not Appear\n    url: https://x/clobber\n"), 0644); err != nil {
		t.Fatal(err)
	}

	res := h.syncer.Reconcile(ctx, "resume", false)
	if res.Err != nil {
		t.Fatalf("Reconcile() failed: %v", res.Err)
	}
	if res.Verdict != cache.ManualEdit {
		t.Fatalf("verdict = %v, want manual-edit", res.Verdict)
	}
	if res.Updated != 2 || res.Inserted != 0 {
		t.Errorf("inserted/updated = %d/%d, want 0/2", res.Inserted, res.Updated)
	}

	got, err := h.store.GetRecord(ctx, editedID)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if got.Title != "Feed Reader (rewritten)" {
		t.Errorf("stored title = %q, want the manual edit", got.Title)
	}
	if id, _ := h.store.FindByTitle(ctx, "Should Not Appear"); id != "" {
		t.Error("document content was fetched despite the manual edit")
	}

	env, _ := cache.Load(h.cache)
	mt, _ := cache.ModTime(h.cache)
	if cache.Detect(cache.State{LastSynced: env.LastSynced, CacheMTime: mt}) != cache.Unchanged {
		t.Error("envelope was not re-stamped after the manual-edit pass")
	}
}

// TestReconcile_ForceRefetchPreservesIDs tests that a forced re-fetch
// matches records by natural key and keeps their identifiers.
func TestReconcile_ForceRefetchPreservesIDs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("first pass failed: %v", res.Err)
	}
	env, _ := cache.Load(h.cache)
	idByKey := make(map[string]string)
	for _, rec := range env.Records {
		idByKey[rec.NaturalKey()] = rec.ID
	}

	res := h.syncer.Reconcile(ctx, "resume", true)
	if res.Err != nil {
		t.Fatalf("forced pass failed: %v", res.Err)
	}
	if res.Verdict != cache.SourceChanged {
		t.Errorf("verdict = %v, want source-changed under force", res.Verdict)
	}
	if res.Updated != 2 || res.Inserted != 0 {
		t.Errorf("inserted/updated = %d/%d, want 0/2 (identifiers preserved)", res.Inserted, res.Updated)
	}

	env2, _ := cache.Load(h.cache)
	for _, rec := range env2.Records {
		if rec.ID != idByKey[rec.NaturalKey()] {
			t.Errorf("record %q changed identifier across a forced re-fetch", rec.Title)
		}
	}
}

// TestReconcile_PartialFailure tests that one bad record does not block
// the rest of the batch.
func TestReconcile_PartialFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("first pass failed: %v", res.Err)
	}

	h.editCache(t, func(env *record.Envelope) {
		env.Records[0].ID = "no-such-id"
		env.Records[1].Description = "still fine"
	})

	res := h.syncer.Reconcile(ctx, "resume", false)
	if res.Err != nil {
		t.Fatalf("Reconcile() failed at source level: %v", res.Err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %+v, want exactly one", res.Errors)
	}
	if !strings.Contains(res.Errors[0].Error(), "not found") {
		t.Errorf("error = %v, want the identifier integrity failure", res.Errors[0])
	}
	if res.Updated != 1 {
		t.Errorf("updated = %d, want the good record persisted", res.Updated)
	}
}

// TestReconcile_CorruptCacheAbortsSource tests that an unreadable
// envelope aborts only that source.
func TestReconcile_CorruptCacheAbortsSource(t *testing.T) {
	h := newHarness(t, nil)

	if err := os.MkdirAll(h.cfg.CacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.cache, []byte("records: [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	res := h.syncer.Reconcile(context.Background(), "resume", false)
	var ce *cache.CorruptError
	if res.Err == nil || !errors.As(res.Err, &ce) {
		t.Errorf("Err = %v, want a CorruptError", res.Err)
	}
}

// TestReconcile_EnrichmentApplied tests that unenriched records go
// through the enricher and carry the model stamp afterwards.
func TestReconcile_EnrichmentApplied(t *testing.T) {
	fake := &fakeEnricher{}
	h := newHarness(t, fake)
	ctx := context.Background()

	res := h.syncer.Reconcile(ctx, "resume", false)
	if res.Err != nil {
		t.Fatalf("Reconcile() failed: %v", res.Err)
	}
	if fake.calls != 2 {
		t.Errorf("enricher calls = %d, want 2", fake.calls)
	}

	env, _ := cache.Load(h.cache)
	for _, rec := range env.Records {
		if !rec.Enriched || rec.Model != "fake-model" {
			t.Errorf("record %q not enriched: flag=%v model=%q", rec.Title, rec.Enriched, rec.Model)
		}
		if !strings.HasPrefix(rec.Description, "Refined: ") {
			t.Errorf("record %q description = %q, want the refinement", rec.Title, rec.Description)
		}
	}

	// A second unchanged pass must not re-enrich.
	h.backdateDocument(t)
	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("second pass failed: %v", res.Err)
	}
	if fake.calls != 2 {
		t.Errorf("enricher re-ran on an unchanged pass: calls = %d", fake.calls)
	}
}

// TestReconcile_EnrichmentFailureIsPerRecord tests that a failing
// enricher leaves records persisted unenriched and flagged for retry.
func TestReconcile_EnrichmentFailureIsPerRecord(t *testing.T) {
	fake := &fakeEnricher{fail: true}
	h := newHarness(t, fake)

	res := h.syncer.Reconcile(context.Background(), "resume", false)
	if res.Err != nil {
		t.Fatalf("Reconcile() failed at source level: %v", res.Err)
	}
	if len(res.Errors) != 2 {
		t.Errorf("errors = %d, want one per record", len(res.Errors))
	}
	if res.Inserted != 2 {
		t.Errorf("inserted = %d, records must persist despite enrichment failure", res.Inserted)
	}

	env, _ := cache.Load(h.cache)
	for _, rec := range env.Records {
		if rec.Enriched {
			t.Errorf("record %q flagged enriched after a failed enrichment", rec.Title)
		}
	}
}

// TestMerge tests natural-key matching between fresh fetches and the
// cached envelope.
func TestMerge(t *testing.T) {
	h := newHarness(t, nil)

	// D was enriched on a prior pass: its description is the model's
	// rewrite, but its fingerprint still names the raw fetched content.
	freshD := record.Record{Flavor: record.FlavorOeuvre, Title: "D", URL: "https://x/d", Description: "raw text"}

	cached := &record.Envelope{Records: []record.Record{
		{
			ID: "id-1", Flavor: record.FlavorOeuvre, Title: "A",
			URL: "https://x/a", Description: "old", Enriched: true, Model: "m",
		},
		{
			ID: "id-2", Flavor: record.FlavorOeuvre, Title: "B",
			URL: "https://x/b", Description: "same", Enriched: true, Model: "m",
		},
		{
			ID: "id-4", Flavor: record.FlavorOeuvre, Title: "D",
			URL: "https://x/d", Description: "Refined: raw text",
			Enriched: true, Model: "m", ContentHash: freshD.Fingerprint(),
		},
	}}

	fresh := []record.Record{
		{Flavor: record.FlavorOeuvre, Title: "A", URL: "https://x/a", Description: "new text"},
		{Flavor: record.FlavorOeuvre, Title: "B", URL: "https://x/b", Description: "same"},
		{Flavor: record.FlavorOeuvre, Title: "C", URL: "https://x/c"},
		freshD,
	}

	merged := h.syncer.merge(fresh, cached)
	if len(merged) != 4 {
		t.Fatalf("merged = %d records, want 4", len(merged))
	}

	// Changed content: identifier kept, enrichment cleared, fresh text.
	if merged[0].ID != "id-1" || merged[0].Enriched || merged[0].Description != "new text" {
		t.Errorf("changed record merged wrong: %+v", merged[0])
	}
	// Unchanged content, pre-fingerprint envelope: field comparison
	// still keeps the enriched cached copy.
	if merged[1].ID != "id-2" || !merged[1].Enriched || merged[1].Model != "m" {
		t.Errorf("unchanged record merged wrong: %+v", merged[1])
	}
	// Never seen: no identifier yet, fingerprint stamped.
	if merged[2].ID != "" {
		t.Errorf("new record got identifier %q before the store assigned one", merged[2].ID)
	}
	if merged[2].ContentHash == "" {
		t.Error("new record was not fingerprinted")
	}
	// Matching fingerprint: the rewritten description does not count as
	// an upstream change, the enriched copy survives.
	if merged[3].ID != "id-4" || !merged[3].Enriched || merged[3].Description != "Refined: raw text" {
		t.Errorf("fingerprint-matched record merged wrong: %+v", merged[3])
	}
}

// TestReconcile_UnknownSource tests the error for a slug not in config.
func TestReconcile_UnknownSource(t *testing.T) {
	h := newHarness(t, nil)
	res := h.syncer.Reconcile(context.Background(), "nope", false)
	if res.Err == nil {
		t.Error("Reconcile() of an unknown source should fail")
	}
}

// TestReconcileAll tests that every enabled source reports a result.
func TestReconcileAll(t *testing.T) {
	h := newHarness(t, nil)

	disabled := false
	h.cfg.Sources["off"] = config.Source{
		Slug: "off", Connector: "manual", Document: h.doc, Enabled: &disabled,
	}

	results := h.syncer.ReconcileAll(context.Background(), false)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Source > results[1].Source {
		t.Error("results not ordered by source slug")
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("source %s failed: %v", res.Source, res.Err)
		}
	}
}

// TestUpdateOne tests the targeted single-record path and its cache
// write-back.
func TestUpdateOne(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("first pass failed: %v", res.Err)
	}
	env, _ := cache.Load(h.cache)
	rec := env.Records[0]
	rec.Description = "targeted edit"

	if err := h.syncer.UpdateOne(ctx, &rec); err != nil {
		t.Fatalf("UpdateOne() failed: %v", err)
	}

	got, err := h.store.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if got.Description != "targeted edit" {
		t.Errorf("stored description = %q", got.Description)
	}

	env2, _ := cache.Load(h.cache)
	var found bool
	for _, r := range env2.Records {
		if r.ID == rec.ID && r.Description == "targeted edit" {
			found = true
		}
	}
	if !found {
		t.Error("cache entry was not refreshed after the targeted update")
	}

	if err := h.syncer.UpdateOne(ctx, &record.Record{Flavor: record.FlavorOeuvre, Title: "x"}); err == nil {
		t.Error("UpdateOne() without identifier should fail")
	}
}

// TestReconcile_DryRun tests that a dry run reports work without
// performing it.
func TestReconcile_DryRun(t *testing.T) {
	h := newHarness(t, nil)
	h.syncer.DryRun = true

	res := h.syncer.Reconcile(context.Background(), "resume", false)
	if res.Err != nil {
		t.Fatalf("dry run failed: %v", res.Err)
	}
	if res.Inserted != 2 {
		t.Errorf("dry run inserted = %d, want 2 reported", res.Inserted)
	}

	if _, err := os.Stat(h.cache); !os.IsNotExist(err) {
		t.Error("dry run wrote the cache file")
	}
	counts, err := h.store.GetCounts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts.Entities != 0 {
		t.Errorf("dry run wrote %d entities to the store", counts.Entities)
	}
}

// TestReconcile_TouchedDocumentDoesNotReenrich tests that re-exporting
// a document with byte-identical content re-syncs the source without
// any new enrichment calls.
func TestReconcile_TouchedDocumentDoesNotReenrich(t *testing.T) {
	fake := &fakeEnricher{}
	h := newHarness(t, fake)
	ctx := context.Background()

	res := h.syncer.Reconcile(ctx, "resume", false)
	if res.Err != nil {
		t.Fatalf("first pass failed: %v", res.Err)
	}
	if fake.calls != 2 {
		t.Fatalf("first pass enricher calls = %d, want 2", fake.calls)
	}

	// Touch the document without changing a byte, the way an exporter
	// rewriting identical output does.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(h.doc, future, future); err != nil {
		t.Fatal(err)
	}

	res = h.syncer.Reconcile(ctx, "resume", false)
	if res.Err != nil {
		t.Fatalf("second pass failed: %v", res.Err)
	}
	if res.Verdict != cache.SourceChanged {
		t.Fatalf("verdict = %s, want source-changed", res.Verdict)
	}
	if fake.calls != 2 {
		t.Errorf("identical re-export made %d extra enricher calls", fake.calls-2)
	}
	if res.Updated != 2 {
		t.Errorf("updated = %d, want 2 re-upserted enriched records", res.Updated)
	}

	env, _ := cache.Load(h.cache)
	for _, rec := range env.Records {
		if !rec.Enriched || !strings.HasPrefix(rec.Description, "Refined: ") {
			t.Errorf("record %q lost its enrichment: %+v", rec.Title, rec)
		}
	}
}

// TestEnrichPending_KeepsInitiativeOwnership tests that the standalone
// enrichment pass re-upserts a nested record without severing its
// part-of relation to the parent.
func TestEnrichPending_KeepsInitiativeOwnership(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	doc := `experience:
  - role: Platform Lead
    company: Acme Corp
    start_date: "2020-01"
    initiatives:
      - title: Billing Rewrite
        technologies: [Go]
`
	if err := os.WriteFile(h.doc, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	if res := h.syncer.Reconcile(ctx, "resume", false); res.Err != nil {
		t.Fatalf("Reconcile() failed: %v", res.Err)
	}

	parentID, err := h.store.FindByTitle(ctx, "Platform Lead")
	if err != nil || parentID == "" {
		t.Fatalf("parent lookup failed: id=%q err=%v", parentID, err)
	}
	childID, err := h.store.FindByTitle(ctx, "Billing Rewrite")
	if err != nil || childID == "" {
		t.Fatalf("child lookup failed: id=%q err=%v", childID, err)
	}

	hasPartOf := func() bool {
		rels, err := h.store.RelationsFrom(ctx, childID)
		if err != nil {
			t.Fatalf("RelationsFrom() failed: %v", err)
		}
		for _, r := range rels {
			if r.Kind == record.RelPartOf && r.ToID == parentID {
				return true
			}
		}
		return false
	}
	if !hasPartOf() {
		t.Fatal("child has no part-of relation after the sync pass")
	}

	fake := &fakeEnricher{}
	h.syncer.enricher = fake
	res, err := h.syncer.EnrichPending(ctx, 0)
	if err != nil {
		t.Fatalf("EnrichPending() failed: %v", err)
	}
	if res.Updated == 0 || fake.calls == 0 {
		t.Fatalf("EnrichPending() did nothing: %+v calls=%d", res, fake.calls)
	}

	if !hasPartOf() {
		t.Error("part-of relation lost after standalone enrichment")
	}
	child, err := h.store.GetRecord(ctx, childID)
	if err != nil {
		t.Fatal(err)
	}
	if !child.Enriched {
		t.Error("child was not enriched")
	}
}
