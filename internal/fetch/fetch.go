// Package fetch provides the per-source fetch/parse connectors.
//
// A Fetcher turns a source configuration into raw entity records: items
// with a natural key (URL or equivalent), title, description and
// optional dates, but never a store identifier. Identifier assignment
// and enrichment preservation happen later, in the sync orchestrator's
// merge step.
//
// Connectors are selected by name, the way scrapers are instantiated
// per source kind. Adding a connector means adding a case to For.
package fetch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/record"
)

// Fetcher obtains fresh raw records for one source. Implementations own
// their timeouts; the orchestrator treats a failure as fatal for the
// source pass only when no cached fallback exists.
type Fetcher interface {
	Fetch(ctx context.Context, src config.Source) ([]record.Record, error)
}

// For returns the fetcher for the source's connector kind.
//
// If client is nil, a default HTTP client with a 30 second timeout is
// used. If logger is nil, a default stderr logger is used.
func For(src config.Source, client *http.Client, logger *log.Logger) (Fetcher, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[fetch] ", log.LstdFlags)
	}

	switch src.Connector {
	case "github":
		return &GitHubFetcher{Client: client, Logger: logger}, nil
	case "rss":
		return &FeedFetcher{Client: client, Logger: logger}, nil
	case "manual":
		return &ManualFetcher{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown connector %q for source %s", src.Connector, src.Slug)
	}
}
