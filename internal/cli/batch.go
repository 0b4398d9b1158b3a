package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/pipeline"
	"github.com/ppiankov/certgrade/internal/report"
	"github.com/ppiankov/certgrade/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
	workbookPath string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <input>...",
	Short: "Validate many certificates concurrently",
	Long: `Batch validates every certificate named by the inputs.

An input is a file, a directory (searched recursively for PDF, HTML and
text files), a glob with ** support, or @list.txt naming one input per line.

Each document gets its own reports in the output directory. A combined
workbook of all results can be written with --workbook.

Example:
  certgrade batch certs/
  certgrade batch "inbox/**/*.pdf" --concurrency 8
  certgrade batch @todo.txt --workbook summary.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	addRunFlags(batchCmd)
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&workbookPath, "workbook", "", "write a combined XLSX workbook of all reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	workers := cfg.Concurrency.Workers
	if concurrency > 0 {
		workers = concurrency
	}
	if workers < 1 {
		workers = 1
	}
	logger := newLogger()

	paths, err := worker.ExpandInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported documents found")
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  certgrade Batch Validation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Documents:    %d\n", len(paths))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	p, err := pipeline.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	fmt.Fprintf(os.Stderr, "⚙️  Validating with %d workers...\n", workers)
	fmt.Fprintf(os.Stderr, "\n")

	results := worker.NewBatchProcessor(p, workers).ProcessPaths(ctx, paths)

	var passCount, failCount, errorCount int
	var reports []*model.ValidationReport
	for _, result := range results {
		if result.Error != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Error)
			continue
		}

		reports = append(reports, result.Report)
		if err := p.RenderReport(io.Discard, result.Report, p.PathsFor(cfg.Output.Dir, result.Path), false); err != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write reports: %v\n", result.Path, err)
			continue
		}

		if result.Report.OverallPass {
			passCount++
		} else {
			failCount++
		}
		fmt.Fprintf(os.Stderr, "%s (%s)\n", statusLine(result.Path, result.Report), result.Elapsed.Round(time.Millisecond))
	}

	if workbookPath != "" && len(reports) > 0 {
		if err := writeWorkbook(workbookPath, reports); err != nil {
			return err
		}
	}
	if err := p.WriteMetrics(cfg.Metrics.File); err != nil {
		logger.Warn("metrics.write_failed", "path", cfg.Metrics.File, "error", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d documents\n", len(results))
	fmt.Fprintf(os.Stderr, "  Pass:      %d\n", passCount)
	fmt.Fprintf(os.Stderr, "  Fail:      %d\n", failCount)
	fmt.Fprintf(os.Stderr, "  Errors:    %d\n", errorCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", cfg.Output.Dir)
	if workbookPath != "" {
		fmt.Fprintf(os.Stderr, "  Workbook:  %s\n", workbookPath)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if errorCount > 0 {
		return fmt.Errorf("%d of %d documents could not be validated", errorCount, len(results))
	}
	if failCount > 0 {
		return ErrNotPassed
	}
	return nil
}

// statusLine is the one-line outcome printed per document
func statusLine(path string, r *model.ValidationReport) string {
	mark, verdict := "✓", "PASS"
	if !r.OverallPass {
		mark, verdict = "✗", "FAIL"
	}
	return fmt.Sprintf("%s %s: %s %s", mark, path, r.Grade.Name, verdict)
}

func writeWorkbook(path string, reports []*model.ValidationReport) error {
	data, err := report.XLSX(reports...)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create workbook directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
