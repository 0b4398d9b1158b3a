package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/certgrade/internal/model"
)

// Flags shared by the commands that run validations
var (
	llmProvider   string
	llmModel      string
	resolverName  string
	catalogDriver string
	catalogPath   string
	catalogDSN    string
	category      string
	outputDir     string
	metricsFile   string
	requestsPerS  float64
	noCache       bool
	noFooter      bool
	xlsxReports   bool
)

func addRunFlags(cmd *cobra.Command) {
	// LLM flags
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, openrouter, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	cmd.Flags().Float64Var(&requestsPerS, "rps", 0, "max LLM requests per second (0 = unlimited)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the LLM response cache")

	// Catalog and resolution
	addCatalogFlags(cmd.Flags())
	cmd.Flags().StringVar(&resolverName, "resolver", "", "grade resolver (substring, llm)")
	cmd.Flags().StringVar(&category, "category", "", "restrict grade resolution to a catalog category")

	// Output flags
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory for reports")
	cmd.Flags().BoolVar(&xlsxReports, "xlsx", false, "also write an XLSX workbook per report")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
}

type flagSet interface {
	StringVar(p *string, name string, value string, usage string)
}

func addCatalogFlags(fs flagSet) {
	fs.StringVar(&catalogDriver, "catalog-driver", "", "catalog backend (file, sqlite, pgx)")
	fs.StringVar(&catalogPath, "catalog", "", "catalog YAML file or SQLite database path")
	fs.StringVar(&catalogDSN, "catalog-dsn", "", "catalog database DSN")
}

// runConfig loads the configuration and applies the flags the user set
func runConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	applyCatalogFlags(cmd, &cfg.Catalog)

	flags := cmd.Flags()
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
	}
	if flags.Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	if flags.Changed("rps") {
		cfg.RateLimiting.RequestsPerSecond = requestsPerS
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("resolver") {
		cfg.Resolver.Strategy = resolverName
	}
	if flags.Changed("category") {
		cfg.Catalog.Category = category
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}
	if xlsxReports {
		cfg.Output.XLSX = true
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File = metricsFile
	}

	if err := applyProviderEnv(&cfg.LLM); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyCatalogFlags(cmd *cobra.Command, c *model.CatalogConfig) {
	flags := cmd.Flags()
	if flags.Changed("catalog-driver") {
		c.Driver = catalogDriver
	}
	if flags.Changed("catalog") {
		c.Path = catalogPath
	}
	if flags.Changed("catalog-dsn") {
		c.DSN = catalogDSN
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
