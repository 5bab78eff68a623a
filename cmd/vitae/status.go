package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vitae-dev/vitae/internal/cache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and per-source cache status",
	Long: `Display the entity store counts and, per source, the cache file
state and what the next sync pass would do.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := newLogger(cfg, "[status] ")

		st := openStore(cmd, cfg, logger)
		defer st.Close()

		counts, err := st.GetCounts(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading store: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nStore: %s\n", cfg.StorePath)
		fmt.Printf("  Entities:  %d\n", counts.Entities)
		fmt.Printf("  Tags:      %d\n", counts.Tags)
		fmt.Printf("  Relations: %d\n\n", counts.Relations)

		if tags, err := st.ListTags(cmd.Context(), 10); err == nil && len(tags) > 0 {
			fmt.Println("Top tags:")
			for _, t := range tags {
				fmt.Printf("  %-24s %-12s %d\n", t.Label, t.Kind, t.Count)
			}
			fmt.Println()
		}

		slugs := make([]string, 0, len(cfg.Sources))
		for slug := range cfg.Sources {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)

		for _, slug := range slugs {
			src := cfg.Sources[slug]
			path := cache.Path(cfg.CacheDir, slug)

			if !src.IsEnabled() {
				fmt.Printf("%s: disabled\n", slug)
				continue
			}

			env, err := cache.Load(path)
			if err != nil {
				fmt.Printf("%s: CORRUPT cache (%v)\n", slug, err)
				continue
			}
			if env.Empty() {
				fmt.Printf("%s: never synced\n", slug)
				continue
			}

			state := cache.State{LastSynced: env.LastSynced}
			if mt, err := cache.ModTime(path); err == nil {
				state.CacheMTime = mt
			}
			if src.Document != "" {
				if fi, err := os.Stat(src.Document); err == nil {
					state.SourceMTime = fi.ModTime()
				}
			}

			fmt.Printf("%s: %d records, last synced %s, next pass: %s\n",
				slug, len(env.Records),
				env.LastSynced.Format("2006-01-02 15:04:05"),
				cache.Detect(state))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
