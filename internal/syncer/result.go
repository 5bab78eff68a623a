package syncer

import (
	"fmt"
	"strings"

	"github.com/vitae-dev/vitae/internal/cache"
	"github.com/vitae-dev/vitae/internal/record"
)

// maxReportedErrors bounds the per-record error list in summaries.
const maxReportedErrors = 10

// RecordError ties a per-record failure to the record it hit.
type RecordError struct {
	Title string
	Key   string
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s: %v", e.Title, e.Err)
}

// Result is the outcome of one source's reconciliation pass.
type Result struct {
	Source  string
	Verdict cache.Verdict

	Inserted int
	Updated  int
	Skipped  int

	// Errors holds record-level failures; the pass itself completed.
	Errors []RecordError
	// Err is a source-level failure: the pass aborted and the cache
	// file was left untouched.
	Err error
}

func (r *Result) addError(rec *record.Record, err error) {
	r.Errors = append(r.Errors, RecordError{
		Title: rec.Title,
		Key:   rec.NaturalKey(),
		Err:   err,
	})
}

// OK reports whether the pass completed without a source-level failure.
func (r *Result) OK() bool { return r.Err == nil }

// Summary renders a one-source run summary with a bounded error list.
func (r *Result) Summary() string {
	var b strings.Builder
	if r.Err != nil {
		fmt.Fprintf(&b, "%s: FAILED (%v)", r.Source, r.Err)
		return b.String()
	}
	fmt.Fprintf(&b, "%s [%s]: %d inserted, %d updated, %d skipped",
		r.Source, r.Verdict, r.Inserted, r.Updated, r.Skipped)
	if n := len(r.Errors); n > 0 {
		fmt.Fprintf(&b, ", %d errors", n)
		for i, re := range r.Errors {
			if i == maxReportedErrors {
				fmt.Fprintf(&b, "\n  ... and %d more", n-maxReportedErrors)
				break
			}
			fmt.Fprintf(&b, "\n  %s", re.Error())
		}
	}
	return b.String()
}
