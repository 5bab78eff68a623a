package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterConfig = `# vitae configuration
store_path: vitae.db
cache_dir: cache

sources:
  github:
    connector: github
    url: https://api.github.com/users/YOUR_USER/repos
    flavor: oeuvre
    category: coding
    limit: 50

  blog:
    connector: rss
    url: https://example.com/feed.xml
    flavor: oeuvre
    category: article

  resume:
    connector: manual
    document: resume.yaml
    flavor: stages

enrichment:
  enabled: false
  model: claude-sonnet-4-5
  # api_key falls back to ANTHROPIC_API_KEY
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration and initialize the store",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = "vitae.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists\n", path)
			os.Exit(1)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}

		cfg := loadConfig()
		if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating cache directory: %v\n", err)
			os.Exit(1)
		}

		logger := newLogger(cfg, "[init] ")
		st := openStore(cmd, cfg, logger)
		defer st.Close()

		fmt.Printf("Created %s, %s/ and %s\n", path, cfg.CacheDir, cfg.StorePath)
		fmt.Println("Edit the source table, then run 'vitae sync'")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
