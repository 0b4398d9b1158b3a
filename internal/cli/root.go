package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/certgrade/internal/model"
)

// Version is set at build time (-ldflags "-X .../internal/cli.Version=...")
var Version = "dev"

// ErrNotPassed is returned when validation completed but a certificate did not pass
var ErrNotPassed = errors.New("certificate did not pass")

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "certgrade",
	Short: "certgrade - material test certificate validation",
	Long: `certgrade reads material test certificates (EN 10204 3.1 and similar),
identifies the material grade, extracts chemical and mechanical values
and checks them against the grade's specification limits.

Every expected property gets an explicit verdict. Missing or unreadable
values never pass.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of certgrade.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "certgrade %s\n", Version)
	},
}

// envKeys are the config keys that can be set as CERTGRADE_<SECTION>_<KEY>
var envKeys = []string{
	"llm.provider",
	"llm.model",
	"llm.api_key",
	"llm.base_url",
	"llm.timeout",
	"llm.http_proxy",
	"llm.https_proxy",
	"catalog.driver",
	"catalog.path",
	"catalog.dsn",
	"catalog.category",
	"resolver.strategy",
	"cache.enabled",
	"cache.dir",
	"concurrency.workers",
	"rate_limiting.requests_per_second",
	"output.dir",
	"metrics.file",
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.certgrade/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.certgrade")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CERTGRADE_*
	viper.SetEnvPrefix("CERTGRADE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file and environment over the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
	return cfg, nil
}

// applyProviderEnv fills the API key (or Ollama URL) from the provider's usual variable
func applyProviderEnv(c *model.LLMConfig) error {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	envVar := ""
	switch provider {
	case "openai":
		envVar = "OPENAI_API_KEY"
	case "openrouter":
		envVar = "OPENROUTER_API_KEY"
	case "anthropic", "claude":
		envVar = "ANTHROPIC_API_KEY"
	case "ollama":
		// Ollama doesn't need an API key
		if c.BaseURL == "" {
			c.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
		return nil
	default:
		return nil
	}

	if c.APIKey == "" {
		c.APIKey = os.Getenv(envVar)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%s environment variable not set", envVar)
	}
	return nil
}

// newLogger logs to stderr: debug with --verbose, warnings otherwise
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
