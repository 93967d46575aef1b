package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/pppwatch/internal/dashboard"
	"github.com/rewired-gh/pppwatch/internal/export"
	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/models"
	"github.com/rewired-gh/pppwatch/internal/report"
	"github.com/rewired-gh/pppwatch/internal/storage"
)

func newEstimateCmd() *cobra.Command {
	var (
		format  string
		out     string
		noStore bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Fetch inputs once and print the estimation table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "xlsx" && out == "" {
				return fmt.Errorf("--format xlsx requires --out")
			}
			write, err := writerFor(format)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var cache dashboard.FrameCache
			if !noStore {
				store, err := storage.New(cfg.Storage.MaxFrames, cfg.Storage.DBPath)
				if err != nil {
					return fmt.Errorf("failed to initialize storage: %w", err)
				}
				defer store.Close()
				cache = storage.NewFrameCache(store, cfg.Pair.Key())
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			frame, err := newService(cfg, cache).Recompute(ctx)
			if err != nil {
				return err
			}

			if out == "" {
				return write(cmd.OutOrStdout(), frame)
			}
			if err := writeFile(out, write, frame); err != nil {
				return err
			}
			logger.Info("Wrote %d rows to %s", frame.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text|csv|xlsx)")
	cmd.Flags().StringVar(&out, "out", "", "Write output to this file instead of stdout")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not save the computed frame to storage")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall fetch timeout")
	return cmd
}

func writerFor(format string) (func(io.Writer, *models.Frame) error, error) {
	switch format {
	case "text":
		return writeText, nil
	case "csv":
		return export.WriteCSV, nil
	case "xlsx":
		return export.WriteXLSX, nil
	}
	return nil, fmt.Errorf("unknown format %q (want text, csv or xlsx)", format)
}

// writeFile writes the frame to path. A failed close is reported since it can
// lose buffered data.
func writeFile(path string, write func(io.Writer, *models.Frame) error, frame *models.Frame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return write(f, frame)
}

var textColumns = []string{
	models.ColIndex,
	models.ColRate,
	models.ColEstimate,
	models.ColEstimateLow,
	models.ColEstimateHigh,
	models.ColRelativeError,
}

// writeText prints an aligned table of the headline columns followed by the
// latest-row summary.
func writeText(w io.Writer, frame *models.Frame) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range textColumns {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)
	for _, r := range frame.Rows() {
		fmt.Fprintf(tw, "%d\t", r.Index)
		for _, c := range textColumns[1:] {
			v, _ := r.Value(c)
			fmt.Fprintf(tw, "%s\t", formatValue(v))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s, err := report.Summarize(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\nLatest %d: rate %s, estimate %s, band [%s, %s], rate is %s\n",
		s.Index, formatValue(float64(s.Rate)), formatValue(float64(s.Estimate)),
		formatValue(float64(s.Low)), formatValue(float64(s.High)), s.Direction())
	return err
}

func formatValue(v float64) string {
	if models.IsMissing(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
