package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/certgrade/internal/catalog"
)

var gradesCategory string

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the grade specification catalog",
	Long: `Manage the catalog of grades and their property limits.

The catalog is a YAML file (driver "file") or a SQL database (driver
"sqlite" or "pgx"). A YAML catalog can be imported into a database.`,
}

var catalogMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog tables in a SQL database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openSQLCatalog(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		if err := c.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Catalog schema is up to date")
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Import a YAML catalog into a SQL database",
	Long: `Import creates the schema if needed and upserts every grade in the YAML
file. A grade's property limits are replaced by the ones in the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}

		c, err := openSQLCatalog(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx := cmd.Context()
		if err := c.Migrate(ctx); err != nil {
			return err
		}
		n, err := c.ImportFile(ctx, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d grades from %s\n", n, args[0])
		return nil
	},
}

var catalogGradesCmd = &cobra.Command{
	Use:   "grades",
	Short: "List the grade names in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyCatalogFlags(cmd, &cfg.Catalog)

		ctx := cmd.Context()
		store, err := catalog.Open(ctx, cfg.Catalog, newLogger())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		names, err := store.ListGradeNames(ctx, gradesCategory)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "%d grades\n", len(names))
		}
		return nil
	},
}

func openSQLCatalog(cmd *cobra.Command) (*catalog.SQLCatalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyCatalogFlags(cmd, &cfg.Catalog)
	return catalog.OpenSQLConfig(cmd.Context(), cfg.Catalog, newLogger())
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	addCatalogFlags(catalogCmd.PersistentFlags())
	catalogGradesCmd.Flags().StringVar(&gradesCategory, "category", "", "only list grades in this category")

	catalogCmd.AddCommand(catalogMigrateCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogGradesCmd)
}
