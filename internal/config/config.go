// Package config loads the vitae configuration file.
//
// Configuration lives in vitae.yaml (location overridable with --config
// or VITAE_CONFIG). It names the store path, the cache directory, the
// source table, the classifier label tables and the enrichment backend.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/vitae-dev/vitae/internal/classify"
)

// Config is the root configuration.
type Config struct {
	// StorePath is the SQLite database file.
	StorePath string `mapstructure:"store_path"`
	// CacheDir holds the per-source cache files (<slug>.cache).
	CacheDir string `mapstructure:"cache_dir"`
	// Sources maps source slug to its connector configuration.
	Sources map[string]Source `mapstructure:"sources"`
	// Classifier overrides the built-in tag lookup tables.
	Classifier classify.Tables `mapstructure:"classifier"`
	// Enrichment configures the LLM enrichment collaborator.
	Enrichment Enrichment `mapstructure:"enrichment"`
	// LogFile, when set, routes logs to a rotated file instead of stderr.
	LogFile string `mapstructure:"log_file"`
}

// Source configures one external source.
type Source struct {
	// Slug is filled from the map key after unmarshalling.
	Slug string `mapstructure:"-"`
	// Connector selects the fetcher: github | rss | manual.
	Connector string `mapstructure:"connector"`
	// URL is the remote endpoint for remote connectors.
	URL string `mapstructure:"url"`
	// Document is the local source file for document-derived sources;
	// its mtime feeds the staleness detector.
	Document string `mapstructure:"document"`
	// Flavor and Category defaults applied to fetched records.
	Flavor   string `mapstructure:"flavor"`
	Category string `mapstructure:"category"`
	// Limit caps the number of fetched records (0 = all).
	Limit int `mapstructure:"limit"`
	// IncludeForks includes forked repositories (github connector).
	IncludeForks bool `mapstructure:"include_forks"`
	// Enabled defaults to true.
	Enabled *bool `mapstructure:"enabled"`
	// Enrich defaults to true; false skips enrichment for this source.
	Enrich *bool `mapstructure:"enrich"`
}

// IsEnabled reports whether the source participates in sync runs.
func (s *Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// WantsEnrichment reports whether records from this source may be sent
// to the enrichment collaborator.
func (s *Source) WantsEnrichment() bool {
	return s.Enrich == nil || *s.Enrich
}

// Enrichment configures the LLM collaborator.
type Enrichment struct {
	// Enabled turns enrichment on; off, records persist unenriched.
	Enabled bool `mapstructure:"enabled"`
	// Model is the model identifier recorded on enriched entities.
	Model string `mapstructure:"model"`
	// MaxTokens bounds each completion. 0 uses a sensible default.
	MaxTokens int `mapstructure:"max_tokens"`
	// APIKey; falls back to ANTHROPIC_API_KEY from the environment.
	APIKey string `mapstructure:"api_key"`
}

// Key returns the configured API key, falling back to the
// ANTHROPIC_API_KEY environment variable.
func (e *Enrichment) Key() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// Load reads configuration from path, or from vitae.yaml in the working
// directory when path is empty. Environment variables with the VITAE_
// prefix override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vitae")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VITAE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store_path", "vitae.db")
	v.SetDefault("cache_dir", "cache")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for slug, src := range cfg.Sources {
		src.Slug = slug
		cfg.Sources[slug] = src
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for slug, src := range c.Sources {
		switch src.Connector {
		case "github", "rss":
			if src.URL == "" {
				return fmt.Errorf("source %s: connector %q requires url", slug, src.Connector)
			}
		case "manual":
			if src.Document == "" {
				return fmt.Errorf("source %s: manual connector requires document", slug)
			}
		case "":
			return fmt.Errorf("source %s: connector is required", slug)
		default:
			return fmt.Errorf("source %s: unknown connector %q", slug, src.Connector)
		}
	}
	return nil
}
