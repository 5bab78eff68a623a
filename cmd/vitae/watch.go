package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitae-dev/vitae/internal/daemon"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch cache files and source documents, sync on change",
	Long: `Run the sync engine as a foreground daemon.

After an initial full pass the daemon watches the cache directory for
hand edits to *.cache files and every document-derived source's
document for changes, then reconciles the affected source. Rapid edit
bursts are debounced into one pass.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := newLogger(cfg, "[daemon] ")

		st := openStore(cmd, cfg, logger)
		defer st.Close()

		s := buildSyncer(st, cfg, logger, false)

		opts := daemon.DefaultOptions()
		opts.Logger = logger
		if watchDebounce > 0 {
			opts.DebounceInterval = watchDebounce
		}

		d, err := daemon.New(s, cfg, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %s (Ctrl+C to stop)\n", cfg.CacheDir)
		if err := d.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "debounce window for edit bursts (default 2s)")
	rootCmd.AddCommand(watchCmd)
}
