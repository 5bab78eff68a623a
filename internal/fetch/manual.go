package fetch

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/record"
)

// ManualFetcher parses a hand-authored or exported YAML document into
// records. This is the connector for document-derived sources (career
// history exports, curated project lists): the document's mtime drives
// the staleness detector, and re-parsing happens only when the document
// is newer than the last sync.
//
// Document layout groups items by section; the section determines
// flavor and category:
//
//	experience:     stages / job
//	education:      stages / education
//	certifications: stages / certification
//	projects:       oeuvre / coding
//	articles:       oeuvre / article
type ManualFetcher struct {
	Logger *log.Logger
}

type manualDocument struct {
	Experience     []manualItem `yaml:"experience"`
	Education      []manualItem `yaml:"education"`
	Certifications []manualItem `yaml:"certifications"`
	Projects       []manualItem `yaml:"projects"`
	Articles       []manualItem `yaml:"articles"`
}

// manualItem accepts the loose field vocabulary humans actually write:
// a job names a role and a company, a degree names an institution, a
// project names a title. The first non-empty candidate wins.
type manualItem struct {
	Title        string `yaml:"title"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	Degree       string `yaml:"degree"`
	Organization string `yaml:"organization"`
	Company      string `yaml:"company"`
	Institution  string `yaml:"institution"`
	Issuer       string `yaml:"issuer"`
	Description  string `yaml:"description"`
	URL          string `yaml:"url"`
	Date         string `yaml:"date"`
	StartDate    string `yaml:"start_date"`
	EndDate      string `yaml:"end_date"`
	Current      bool   `yaml:"is_current"`

	Tags         []string `yaml:"tags"`
	Skills       []string `yaml:"skills"`
	Technologies []string `yaml:"technologies"`

	Ext map[string]any `yaml:"ext"`

	// Initiatives nest projects under a job entry.
	Initiatives []manualItem `yaml:"initiatives"`
}

// Fetch implements Fetcher.
func (f *ManualFetcher) Fetch(ctx context.Context, src config.Source) ([]record.Record, error) {
	data, err := os.ReadFile(src.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", src.Document, err)
	}

	var doc manualDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", src.Document, err)
	}

	var out []record.Record
	sections := []struct {
		items    []manualItem
		flavor   string
		category string
	}{
		{doc.Experience, record.FlavorStages, "job"},
		{doc.Education, record.FlavorStages, "education"},
		{doc.Certifications, record.FlavorStages, "certification"},
		{doc.Projects, record.FlavorOeuvre, "coding"},
		{doc.Articles, record.FlavorOeuvre, "article"},
	}
	for _, sec := range sections {
		for _, item := range sec.items {
			rec, err := item.toRecord(src.Slug, sec.flavor, sec.category)
			if err != nil {
				f.Logger.Printf("WARNING: skipping %s item in %s: %v", sec.category, src.Document, err)
				continue
			}
			out = append(out, rec)
		}
	}

	f.Logger.Printf("Parsed %d records from %s", len(out), src.Document)
	if src.Limit > 0 && len(out) > src.Limit {
		out = out[:src.Limit]
	}
	return out, nil
}

func (m *manualItem) toRecord(slug, flavor, category string) (record.Record, error) {
	title := firstNonEmpty(m.Title, m.Role, m.Name, m.Degree)
	if strings.TrimSpace(title) == "" {
		return record.Record{}, fmt.Errorf("no title, role, name or degree")
	}

	rec := record.Record{
		Flavor:       flavor,
		Category:     category,
		Title:        title,
		Description:  m.Description,
		URL:          m.URL,
		Source:       slug,
		SourceURL:    m.URL,
		Date:         m.Date,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		Current:      m.Current,
		Organization: firstNonEmpty(m.Organization, m.Company, m.Institution, m.Issuer),
		Tags:         m.Tags,
		Skills:       m.Skills,
		Technologies: m.Technologies,
		Ext:          m.Ext,
	}

	for _, child := range m.Initiatives {
		childRec, err := child.toRecord(slug, record.FlavorOeuvre, "coding")
		if err != nil {
			return record.Record{}, fmt.Errorf("initiative: %w", err)
		}
		rec.Initiatives = append(rec.Initiatives, childRec)
	}
	return rec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
