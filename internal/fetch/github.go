package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/record"
)

// GitHubFetcher lists a user's repositories via the GitHub REST API.
//
// Pagination is followed until the API stops returning full pages, so
// the fetch sees every repository regardless of account size. Forks are
// skipped unless the source opts in. The repository language becomes a
// technology label; stars and forks land in the extension payload.
type GitHubFetcher struct {
	Client *http.Client
	Logger *log.Logger
}

const githubPageSize = 100

type githubRepo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Language    string `json:"language"`
	Fork        bool   `json:"fork"`
	Stargazers  int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	CreatedAt   string `json:"created_at"`
	PushedAt    string `json:"pushed_at"`
}

// Fetch implements Fetcher.
func (f *GitHubFetcher) Fetch(ctx context.Context, src config.Source) ([]record.Record, error) {
	repos, err := f.fetchAllPages(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	f.Logger.Printf("Found %d repositories for %s", len(repos), src.Slug)

	flavor := src.Flavor
	if flavor == "" {
		flavor = record.FlavorOeuvre
	}
	category := src.Category
	if category == "" {
		category = "coding"
	}

	var out []record.Record
	for _, repo := range repos {
		if src.Limit > 0 && len(out) >= src.Limit {
			break
		}
		if repo.Fork && !src.IncludeForks {
			continue
		}

		rec := record.Record{
			Flavor:      flavor,
			Category:    category,
			Title:       repo.Name,
			Description: repo.Description,
			URL:         repo.HTMLURL,
			Source:      src.Slug,
			SourceURL:   repo.HTMLURL,
			Date:        repo.CreatedAt,
			Ext: map[string]any{
				"platform": "github",
				"stars":    repo.Stargazers,
				"forks":    repo.Forks,
			},
		}
		if repo.Language != "" {
			rec.Technologies = []string{repo.Language}
		}
		out = append(out, rec)
	}
	return out, nil
}

// fetchAllPages follows pagination until a short page arrives.
func (f *GitHubFetcher) fetchAllPages(ctx context.Context, base string) ([]githubRepo, error) {
	var all []githubRepo
	for page := 1; ; page++ {
		repos, err := f.fetchPage(ctx, base, page)
		if err != nil {
			return nil, err
		}
		all = append(all, repos...)
		if len(repos) < githubPageSize {
			break
		}
	}
	return all, nil
}

func (f *GitHubFetcher) fetchPage(ctx context.Context, base string, page int) ([]githubRepo, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid github url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(githubPageSize))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "vitae-sync/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github returned %d: %s", resp.StatusCode, body)
	}

	var repos []githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("failed to decode github response: %w", err)
	}
	return repos, nil
}
