package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	enrichID    string
	enrichForce bool
	enrichBatch int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich stored entities with the configured LLM",
	Long: `Run enrichment outside a sync pass.

Without flags this enriches pending entities (those whose enrichment
flag is unset), up to --batch-size at a time. With --id it enriches one
entity; --force re-enriches it even if already flagged.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := newLogger(cfg, "[enrich] ")

		st := openStore(cmd, cfg, logger)
		defer st.Close()

		s := buildSyncer(st, cfg, logger, false)

		if enrichID != "" {
			if err := s.EnrichOne(cmd.Context(), enrichID, enrichForce); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Enriched %s\n", enrichID)
			return
		}

		res, err := s.EnrichPending(cmd.Context(), enrichBatch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(res.Summary())
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichID, "id", "", "enrich a single entity by identifier")
	enrichCmd.Flags().BoolVarP(&enrichForce, "force", "f", false, "re-enrich even if already enriched")
	enrichCmd.Flags().IntVar(&enrichBatch, "batch-size", 20, "maximum entities to enrich in one run")
	rootCmd.AddCommand(enrichCmd)
}
