package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/certgrade/internal/pipeline"
	"github.com/ppiankov/certgrade/internal/watch"
)

var (
	initialScan bool
	debounce    time.Duration
	docTimeout  time.Duration
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Validate certificates as they arrive in a directory",
	Long: `Watch monitors directories (recursively) and validates each new or
rewritten certificate once it has stopped changing. Reports are written to
the output directory. Stop with Ctrl-C.

Example:
  certgrade watch inbox/ --initial-scan
  certgrade watch inbox/ --metrics-file /var/lib/node_exporter/certgrade.prom`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addRunFlags(watchCmd)
	watchCmd.Flags().BoolVar(&initialScan, "initial-scan", false, "validate documents already present at startup")
	watchCmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is validated")
	watchCmd.Flags().DurationVar(&docTimeout, "timeout", 5*time.Minute, "timeout per document")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signalContext()
	defer stop()

	p, err := pipeline.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	events, errs, err := watch.Start(ctx, watch.Config{
		Roots:       args,
		InitialScan: initialScan,
		Debounce:    debounce,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "👀 Watching %v (output: %s)\n", args, cfg.Output.Dir)

	for {
		select {
		case path, ok := <-events:
			if !ok {
				fmt.Fprintf(os.Stderr, "\nStopped.\n")
				return nil
			}
			validateWatched(ctx, p, path, cfg.Output.Dir)
			if err := p.WriteMetrics(cfg.Metrics.File); err != nil {
				logger.Warn("metrics.write_failed", "path", cfg.Metrics.File, "error", err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "⚠️  watch error: %v\n", err)
		}
	}
}

func validateWatched(ctx context.Context, p *pipeline.Pipeline, path, dir string) {
	ctx, cancel := context.WithTimeout(ctx, docTimeout)
	defer cancel()

	r, err := p.ValidateFile(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
		return
	}
	if err := p.RenderReport(io.Discard, r, p.PathsFor(dir, path), false); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %s: failed to write reports: %v\n", path, err)
		return
	}

	fmt.Fprintln(os.Stderr, statusLine(path, r))
}
