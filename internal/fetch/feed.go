package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/record"
)

// FeedFetcher reads article listings from RSS 2.0 or Atom feeds.
// Feed entries map to oeuvre records with the entry link as natural key.
type FeedFetcher struct {
	Client *http.Client
	Logger *log.Logger
}

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Items   []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// Fetch implements Fetcher.
func (f *FeedFetcher) Fetch(ctx context.Context, src config.Source) ([]record.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", "vitae-sync/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %d", src.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	recs, err := parseFeed(data, src)
	if err != nil {
		return nil, err
	}
	f.Logger.Printf("Found %d feed entries for %s", len(recs), src.Slug)
	if src.Limit > 0 && len(recs) > src.Limit {
		recs = recs[:src.Limit]
	}
	return recs, nil
}

// parseFeed tries RSS first, then Atom. Feeds in the wild rarely
// announce which dialect they speak.
func parseFeed(data []byte, src config.Source) ([]record.Record, error) {
	flavor := src.Flavor
	if flavor == "" {
		flavor = record.FlavorOeuvre
	}
	category := src.Category
	if category == "" {
		category = "article"
	}

	var rss rssFeed
	if err := xml.Unmarshal(data, &rss); err == nil && len(rss.Items) > 0 {
		var out []record.Record
		for _, item := range rss.Items {
			out = append(out, record.Record{
				Flavor:      flavor,
				Category:    category,
				Title:       item.Title,
				Description: item.Description,
				URL:         item.Link,
				Source:      src.Slug,
				SourceURL:   item.Link,
				Date:        normalizeFeedDate(item.PubDate),
			})
		}
		return out, nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(data, &atom); err == nil && len(atom.Entries) > 0 {
		var out []record.Record
		for _, entry := range atom.Entries {
			date := entry.Published
			if date == "" {
				date = entry.Updated
			}
			out = append(out, record.Record{
				Flavor:      flavor,
				Category:    category,
				Title:       entry.Title,
				Description: entry.Summary,
				URL:         atomAlternate(entry.Links),
				Source:      src.Slug,
				SourceURL:   atomAlternate(entry.Links),
				Date:        normalizeFeedDate(date),
			})
		}
		return out, nil
	}

	return nil, fmt.Errorf("feed for %s is neither RSS nor Atom", src.Slug)
}

func atomAlternate(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

// normalizeFeedDate converts the common feed date formats to ISO-8601.
// Unparseable values pass through unchanged rather than being dropped.
func normalizeFeedDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range []string{
		time.RFC1123Z, time.RFC1123, time.RFC3339, "2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return raw
}
