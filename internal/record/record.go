// Package record defines the entity records exchanged between the cache
// files, the fetch connectors and the entity store.
//
// A Record mirrors one unit of profile content (a repository, an article,
// a job, a degree). Records live in two places: as rows in the SQLite
// entity store, which owns the identifier space, and as list items inside
// a per-source YAML cache envelope, which is the human-editable surface.
// The sync engine reconciles the two.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Entity flavors. The closed set of top-level classifications.
const (
	FlavorIdentity = "identity" // static profile information
	FlavorStages   = "stages"   // career stages: education, jobs
	FlavorOeuvre   = "oeuvre"   // produced work: repos, articles, books
)

// FlavorTechnology marks canonical technology entities minted by the
// store as relation targets. It never appears in cache records, which is
// why ValidFlavor rejects it.
const FlavorTechnology = "technology"

// Relation kinds derived during the cascade. Relations always originate
// from the entity being upserted; incoming relations are never touched.
const (
	RelUsesTechnology = "uses-technology"
	RelBelongsTo      = "belongs-to"
	RelPartOf         = "part-of"
)

// ValidFlavor reports whether f is one of the known entity flavors.
func ValidFlavor(f string) bool {
	switch f {
	case FlavorIdentity, FlavorStages, FlavorOeuvre:
		return true
	}
	return false
}

// Record is one entity as seen by the cache file and the store.
//
// ID is empty until the store assigns one on first insert; after that it
// is immutable and written back into the cache so manual edits keep
// addressing the same row. A record presented with an ID the store does
// not know is an integrity error, never an insert.
type Record struct {
	ID          string `yaml:"entity_id,omitempty" json:"entity_id,omitempty"`
	Flavor      string `yaml:"flavor" json:"flavor"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// URL is the natural key: it matches freshly fetched records against
	// cached ones before a store identifier exists.
	URL       string `yaml:"url,omitempty" json:"url,omitempty"`
	SourceURL string `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	Source    string `yaml:"source,omitempty" json:"source,omitempty"`

	// Date for oeuvre items; StartDate/EndDate for stages. Stored as
	// ISO-8601 strings because partial dates ("2020-01") are allowed.
	Date      string `yaml:"date,omitempty" json:"date,omitempty"`
	StartDate string `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   string `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	Current   bool   `yaml:"is_current,omitempty" json:"is_current,omitempty"`

	// Organization names the employer or institution for stage records.
	// It is resolved against existing entities by exact title match when
	// building the belongs-to relation.
	Organization string `yaml:"organization,omitempty" json:"organization,omitempty"`

	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Skills       []string `yaml:"skills,omitempty" json:"skills,omitempty"`
	Technologies []string `yaml:"technologies,omitempty" json:"technologies,omitempty"`

	// Ext carries flavor-specific fields (stars, forks, role, degree...)
	// that the store persists as an opaque JSON payload.
	Ext map[string]any `yaml:"ext,omitempty" json:"ext,omitempty"`

	// Initiatives are nested sub-records (e.g. projects inside a job).
	// Each is upserted recursively with a part-of relation to the parent.
	Initiatives []Record `yaml:"initiatives,omitempty" json:"initiatives,omitempty"`

	// ContentHash is the fingerprint of the scraped content at fetch
	// time, stamped during merge and carried in the cache envelope.
	// Enrichment rewrites the description, so later merges compare a
	// fresh fetch against this snapshot rather than the current fields.
	ContentHash string `yaml:"content_hash,omitempty" json:"content_hash,omitempty"`

	// Enrichment bookkeeping. Enriched records are not re-enriched
	// unless their content changed materially or the flag is cleared.
	Enriched   bool   `yaml:"llm_enriched,omitempty" json:"llm_enriched,omitempty"`
	EnrichedAt string `yaml:"llm_enriched_at,omitempty" json:"llm_enriched_at,omitempty"`
	Model      string `yaml:"llm_model,omitempty" json:"llm_model,omitempty"`
}

// Validate checks the fields every record must carry before it can be
// persisted. Cache items that fail validation are reported per record
// and skipped, they never abort a whole pass.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.Flavor == "" {
		return fmt.Errorf("flavor is required")
	}
	if !ValidFlavor(r.Flavor) {
		return fmt.Errorf("unknown flavor %q", r.Flavor)
	}
	for i := range r.Initiatives {
		if err := r.Initiatives[i].Validate(); err != nil {
			return fmt.Errorf("initiative %d: %w", i, err)
		}
	}
	return nil
}

// NaturalKey returns the content-derived key used to match this record
// against previously cached ones. URL when present, otherwise
// flavor+title, which is the fallback the store also uses.
func (r *Record) NaturalKey() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Flavor + "\x00" + strings.ToLower(r.Title)
}

// ContentEqual reports whether the scraped content of two records is
// materially the same. Enrichment fields and the identifier are ignored:
// this drives the "do not re-enrich unchanged content" rule, not
// identity.
func (r *Record) ContentEqual(o *Record) bool {
	return r.Title == o.Title &&
		r.Description == o.Description &&
		r.Date == o.Date &&
		r.StartDate == o.StartDate &&
		r.EndDate == o.EndDate &&
		r.URL == o.URL
}

// Fingerprint hashes the content fields ContentEqual compares. Two
// records with the same fingerprint carried the same upstream content,
// whatever enrichment later did to the description.
func (r *Record) Fingerprint() string {
	h := sha256.New()
	for _, f := range []string{r.Title, r.Description, r.Date, r.StartDate, r.EndDate, r.URL} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Envelope pairs a source's sync metadata with its ordered records.
// One envelope is persisted per source as <slug>.cache.
type Envelope struct {
	Source     string    `yaml:"source"`
	LastSynced time.Time `yaml:"last_synced"`
	Records    []Record  `yaml:"records"`
}

// Empty reports whether the envelope has never been synchronized.
func (e *Envelope) Empty() bool {
	return e.LastSynced.IsZero() && len(e.Records) == 0
}

// Find returns the record with the given natural key, or nil.
func (e *Envelope) Find(key string) *Record {
	for i := range e.Records {
		if e.Records[i].NaturalKey() == key {
			return &e.Records[i]
		}
	}
	return nil
}
