package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/certgrade/internal/document"
	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/pipeline"
	"github.com/ppiankov/certgrade/internal/report"
	"github.com/ppiankov/certgrade/internal/validate"
)

var (
	outJSON    string
	outMD      string
	outXLSX    string
	inlineText string
	diameter   float64
	printJSON  bool
	timeout    time.Duration
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a single material test certificate",
	Long: `Validate reads one certificate (PDF, HTML or plain text) and:
- Identifies the material grade from the catalog
- Extracts chemical composition and mechanical properties
- Compares every value against the grade's specification limits
- Writes JSON, Markdown and optionally XLSX reports

The command exits non-zero when the certificate does not pass.

Example:
  certgrade validate cert.pdf
  certgrade validate cert.pdf --diameter 20 --json out.json --md out.md
  certgrade validate --text "$(cat cert.txt)" --stdout`,
	Args: cobra.RangeArgs(0, 1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addRunFlags(validateCmd)
	validateCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: <output-dir>/<name>.json)")
	validateCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (default: <output-dir>/<name>.md)")
	validateCmd.Flags().StringVar(&outXLSX, "xlsx-out", "", "output XLSX path")
	validateCmd.Flags().StringVar(&inlineText, "text", "", "certificate text to validate instead of a file")
	validateCmd.Flags().Float64Var(&diameter, "diameter", 0, "product diameter in mm (selects diameter-dependent limits)")
	validateCmd.Flags().BoolVar(&printJSON, "stdout", false, "print the JSON report to stdout instead of writing files")
	validateCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall validation timeout")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && inlineText == "" {
		return errors.New("provide a certificate file or --text")
	}
	if len(args) == 1 && inlineText != "" {
		return errors.New("use either a file or --text, not both")
	}

	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := pipeline.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	opts := pipeline.Options{Category: cfg.Catalog.Category}
	if cmd.Flags().Changed("diameter") {
		d := diameter
		opts.Diameter = &d
	}
	p.SetOptions(opts)

	source := "inline"
	if len(args) == 1 {
		source = args[0]
	}
	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Validating: %s\n", source)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "LLM: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Catalog: %s\n", cfg.Catalog.Driver)
		fmt.Fprintln(os.Stderr)
	}

	var r *model.ValidationReport
	if len(args) == 1 {
		r, err = p.ValidateFile(ctx, source)
	} else {
		r, err = p.ValidateText(ctx, source, document.Clean(inlineText))
	}
	if werr := p.WriteMetrics(cfg.Metrics.File); werr != nil {
		logger.Warn("metrics.write_failed", "path", cfg.Metrics.File, "error", werr)
	}
	if err != nil {
		if errors.Is(err, validate.ErrGradeNotIdentified) {
			fmt.Fprintf(os.Stderr, "✗ %s: grade not identified, route to manual review\n", source)
		}
		return err
	}

	if printJSON {
		data, err := report.JSON(r)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
	} else {
		paths := p.PathsFor(cfg.Output.Dir, source)
		if outJSON != "" {
			paths.JSON = outJSON
		}
		if outMD != "" {
			paths.Markdown = outMD
		}
		if outXLSX != "" {
			paths.XLSX = outXLSX
		}
		if err := p.RenderReport(os.Stdout, r, paths, true); err != nil {
			return err
		}
	}

	if !r.OverallPass {
		return ErrNotPassed
	}
	return nil
}
