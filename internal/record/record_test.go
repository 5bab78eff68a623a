package record

import (
	"strings"
	"testing"
)

// TestValidate tests the required-field rules, including recursion into
// initiatives.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr string
	}{
		{
			name: "valid oeuvre record",
			rec:  Record{Flavor: FlavorOeuvre, Title: "A Project"},
		},
		{
			name:    "missing title",
			rec:     Record{Flavor: FlavorOeuvre, Title: "   "},
			wantErr: "title",
		},
		{
			name:    "missing flavor",
			rec:     Record{Title: "A Project"},
			wantErr: "flavor",
		},
		{
			name:    "unknown flavor",
			rec:     Record{Flavor: "hobby", Title: "A Project"},
			wantErr: "unknown flavor",
		},
		{
			name:    "technology flavor rejected on input",
			rec:     Record{Flavor: FlavorTechnology, Title: "Python"},
			wantErr: "unknown flavor",
		},
		{
			name: "invalid initiative",
			rec: Record{
				Flavor: FlavorStages, Title: "A Job",
				Initiatives: []Record{{Flavor: FlavorOeuvre}},
			},
			wantErr: "initiative 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestNaturalKey tests URL preference and the flavor+title fallback.
func TestNaturalKey(t *testing.T) {
	withURL := Record{Flavor: FlavorOeuvre, Title: "A", URL: "https://x/a"}
	if got := withURL.NaturalKey(); got != "https://x/a" {
		t.Errorf("NaturalKey() = %q, want the URL", got)
	}

	noURL := Record{Flavor: FlavorStages, Title: "Data Engineer"}
	same := Record{Flavor: FlavorStages, Title: "DATA ENGINEER"}
	if noURL.NaturalKey() != same.NaturalKey() {
		t.Error("NaturalKey() should be case-insensitive on title")
	}

	otherFlavor := Record{Flavor: FlavorOeuvre, Title: "Data Engineer"}
	if noURL.NaturalKey() == otherFlavor.NaturalKey() {
		t.Error("NaturalKey() must distinguish flavors for URL-less records")
	}
}

// TestContentEqual tests that enrichment fields and identifiers do not
// affect content comparison.
func TestContentEqual(t *testing.T) {
	a := Record{Flavor: FlavorOeuvre, Title: "A", Description: "desc", URL: "https://x/a", Date: "2024-01-01"}

	b := a
	b.ID = "some-id"
	b.Enriched = true
	b.Model = "claude-sonnet-4-5"
	if !a.ContentEqual(&b) {
		t.Error("ContentEqual() should ignore identifier and enrichment fields")
	}

	c := a
	c.Description = "rewritten"
	if a.ContentEqual(&c) {
		t.Error("ContentEqual() should detect a description change")
	}

	d := a
	d.Date = "2024-02-01"
	if a.ContentEqual(&d) {
		t.Error("ContentEqual() should detect a date change")
	}
}

// TestEnvelope_Find tests natural-key lookup in an envelope.
func TestEnvelope_Find(t *testing.T) {
	env := Envelope{Records: []Record{
		{Flavor: FlavorOeuvre, Title: "A", URL: "https://x/a"},
		{Flavor: FlavorStages, Title: "Data Engineer"},
	}}

	if got := env.Find("https://x/a"); got == nil || got.Title != "A" {
		t.Errorf("Find(url) = %+v, want record A", got)
	}

	key := (&Record{Flavor: FlavorStages, Title: "data engineer"}).NaturalKey()
	if got := env.Find(key); got == nil || got.Title != "Data Engineer" {
		t.Errorf("Find(fallback key) = %+v, want the stage record", got)
	}

	if got := env.Find("https://x/missing"); got != nil {
		t.Errorf("Find(missing) = %+v, want nil", got)
	}
}

// TestEnvelope_Empty tests the never-synchronized check.
func TestEnvelope_Empty(t *testing.T) {
	var env Envelope
	if !env.Empty() {
		t.Error("zero envelope should be empty")
	}
	env.Records = []Record{{Flavor: FlavorOeuvre, Title: "A"}}
	if env.Empty() {
		t.Error("envelope with records should not be empty")
	}
}
