package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/pppwatch/internal/config"
	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the stored frames for the configured pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg *config.Config, store *storage.Storage) error {
				return printHistory(cmd.OutOrStdout(), store, cfg.Pair.Key())
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored frame for the configured pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete stored frames without --yes")
			}
			return withStore(func(cfg *config.Config, store *storage.Storage) error {
				return clearHistory(cmd.OutOrStdout(), store, cfg.Pair.Key())
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

// withStore loads the configuration and opens storage for the duration of fn.
func withStore(fn func(*config.Config, *storage.Storage) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.Storage.MaxFrames, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close storage: %w", cerr)
		}
	}()
	return fn(cfg, store)
}

func printHistory(w io.Writer, store *storage.Storage, pairKey string) error {
	frames, err := store.FrameHistory(pairKey)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		_, err := fmt.Fprintf(w, "No stored frames for %s\n", pairKey)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "computed_at\tfirst\tlast\trows\tid")
	for _, f := range frames {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
			f.ComputedAt.UTC().Format(time.RFC3339), f.FirstIndex, f.LastIndex, f.Rows, f.ID)
	}
	return tw.Flush()
}

func clearHistory(w io.Writer, store *storage.Storage, pairKey string) error {
	frames, err := store.FrameHistory(pairKey)
	if err != nil {
		return err
	}
	if err := store.ClearFrames(pairKey); err != nil {
		return err
	}
	logger.Info("Cleared %d stored frames for %s", len(frames), pairKey)
	_, err = fmt.Fprintf(w, "Deleted %d frames for %s\n", len(frames), pairKey)
	return err
}
