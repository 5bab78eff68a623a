// Command vitae synchronizes a professional history from external
// sources into a local SQLite entity store, with human-editable YAML
// cache files as the mutable surface between runs.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitae-dev/vitae/internal/classify"
	"github.com/vitae-dev/vitae/internal/config"
	"github.com/vitae-dev/vitae/internal/enrich"
	"github.com/vitae-dev/vitae/internal/store"
	"github.com/vitae-dev/vitae/internal/syncer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vitae",
	Short: "Professional history aggregator and sync engine",
	Long: `vitae aggregates a professional history from external sources
(repository hosts, article feeds, hand-authored documents) into a local
SQLite entity store.

Each source owns a human-editable YAML cache file; edits to it are
detected by timestamp and win over re-scraped content until explicitly
forced. Entities, tags and relations are updated as one atomic cascade
per entity.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default vitae.yaml)")
}

// loadConfig reads the configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger builds the run logger. With log_file configured, output
// goes to a size-rotated file; otherwise stderr.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

// openStore opens the entity store and ensures the schema, or exits.
func openStore(cmd *cobra.Command, cfg *config.Config, logger *log.Logger) *store.Store {
	st, err := store.Open(cfg.StorePath, classify.New(cfg.Classifier), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	if err := st.InitSchema(cmd.Context()); err != nil {
		st.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return st
}

// buildSyncer wires the full sync stack. noEnrich forces enrichment
// off for this run regardless of configuration.
func buildSyncer(st *store.Store, cfg *config.Config, logger *log.Logger, noEnrich bool) *syncer.Syncer {
	var enricher enrich.Enricher
	if cfg.Enrichment.Enabled && !noEnrich {
		key := cfg.Enrichment.Key()
		if key == "" {
			logger.Println("enrichment enabled but no API key configured, skipping")
		} else {
			enricher = enrich.NewAnthropic(key, cfg.Enrichment.Model, cfg.Enrichment.MaxTokens, logger)
		}
	}
	client := &http.Client{Timeout: 30 * time.Second}
	return syncer.New(st, cfg, enricher, client, logger)
}

// printResults writes per-source run summaries and reports whether any
// source failed at the source level.
func printResults(results []syncer.Result) bool {
	failed := false
	for _, res := range results {
		fmt.Println(res.Summary())
		if !res.OK() {
			failed = true
		}
	}
	return failed
}
