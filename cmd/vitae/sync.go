package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitae-dev/vitae/internal/syncer"
)

var (
	syncSource   string
	syncForce    bool
	syncNoEnrich bool
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile sources with the entity store",
	Long: `Run one reconciliation pass.

For each enabled source this:
  1. Loads the source's cache file
  2. Decides from timestamps whether it was hand-edited, whether the
     source changed, or whether nothing needs doing
  3. Re-fetches only when needed, preserving identifiers and prior
     enrichment for already-seen items
  4. Upserts every record with its tag and relation cascade
  5. Writes the cache back with identifiers and a fresh sync timestamp

--force re-fetches regardless of timestamps. --dry-run reports what
would happen without writing anything.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := newLogger(cfg, "[sync] ")

		st := openStore(cmd, cfg, logger)
		defer st.Close()

		s := buildSyncer(st, cfg, logger, syncNoEnrich)
		s.DryRun = syncDryRun

		start := time.Now()
		var failed bool
		if syncSource != "" {
			res := s.Reconcile(cmd.Context(), syncSource, syncForce)
			failed = printResults([]syncer.Result{res})
		} else {
			failed = printResults(s.ReconcileAll(cmd.Context(), syncForce))
		}
		fmt.Printf("Done in %v\n", time.Since(start).Round(time.Millisecond))

		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncSource, "source", "s", "", "sync a single source by slug")
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "re-fetch even if timestamps say unchanged")
	syncCmd.Flags().BoolVar(&syncNoEnrich, "no-enrich", false, "skip LLM enrichment for this run")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without writing")
	rootCmd.AddCommand(syncCmd)
}
