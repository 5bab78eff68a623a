package cache

import "time"

// State collects the timestamps the staleness detector compares.
type State struct {
	// LastSynced is the envelope's recorded last-synchronized timestamp.
	LastSynced time.Time
	// CacheMTime is the cache file's on-disk modification time, zero if
	// the file does not exist yet.
	CacheMTime time.Time
	// SourceMTime is the source document's modification time for
	// document-derived sources, zero for remote sources.
	SourceMTime time.Time
	// Force overrides the timestamps and always re-fetches.
	Force bool
}

// Verdict classifies the state of a source's cache relative to its
// envelope metadata and, for document-derived sources, the source
// document itself. It is the single gate deciding whether expensive
// fetch and enrichment work runs at all.
type Verdict int

const (
	// Unchanged: the cache is authoritative and already synchronized.
	// No fetch, no write-back unless forced.
	Unchanged Verdict = iota
	// ManualEdit: the cache file was modified after the last write-back.
	// A human edited it; its content wins unconditionally and no
	// re-fetch happens, even if the source also changed.
	ManualEdit
	// SourceChanged: the originating document is newer than the last
	// sync. Re-fetch and re-parse; the cache only contributes
	// identifiers and prior enrichment for already-seen items.
	SourceChanged
)

func (v Verdict) String() string {
	switch v {
	case ManualEdit:
		return "manual-edit"
	case SourceChanged:
		return "source-changed"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Detect produces the staleness verdict for one source.
//
// lastSynced is the envelope's recorded timestamp, cacheMTime the cache
// file's on-disk mtime, sourceMTime the source document's mtime (zero
// for purely remote sources). force always yields SourceChanged. All
// comparisons are strict; equal timestamps resolve to Unchanged.
//
// Precedence: manual edits are sacrosanct. When both the cache and the
// source changed in the same window, ManualEdit wins and the source
// change waits for an explicit force.
func Detect(st State) Verdict {
	if st.Force {
		return SourceChanged
	}
	if !st.CacheMTime.IsZero() && st.CacheMTime.After(st.LastSynced) {
		return ManualEdit
	}
	if !st.SourceMTime.IsZero() && st.SourceMTime.After(st.LastSynced) {
		return SourceChanged
	}
	return Unchanged
}
