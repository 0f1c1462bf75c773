// Command manage resets the database and imports catalog data from CSV files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bookshelf/internal/app"
	"bookshelf/internal/config"
	"bookshelf/internal/importer"
	"bookshelf/internal/storage"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: the configured store and a logger
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     storage.Storage
}

func setup(ctx context.Context) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) close() {
	e.db.Close()
	_ = e.logger.Sync()
}

// run wraps a subcommand body with setup and teardown
func run(fn func(ctx context.Context, e *env) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, e)
	}
}

func rootCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:          "manage",
		Short:        "Bookshelf database management",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory with books.csv, users.csv and bookrentals.csv (default $DATA_DIR or ./data)")

	resolveDir := func(e *env) string {
		if dataDir != "" {
			return dataDir
		}
		return e.cfg.DataDir
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Drop all tables and recreate the schema",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, e *env) error {
			if err := e.db.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("Database reset")
			return nil
		}),
	})

	cmd.AddCommand(importCmd(resolveDir))

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Reset the database and import books, users and rentals",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, e *env) error {
			if err := e.db.Reset(ctx); err != nil {
				return err
			}
			sum, err := importer.New(e.db, e.logger).ImportDir(ctx, resolveDir(e))
			if err != nil {
				return err
			}
			fmt.Printf("Books: %s\nUsers: %s\nRentals: %s\n", sum.Books, sum.Users, sum.Rentals)
			return nil
		}),
	})

	return cmd
}

func importCmd(resolveDir func(*env) string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one CSV table",
	}

	type runner func(context.Context, io.Reader) (importer.Result, error)
	tables := []struct {
		name string
		file string
		run  func(im *importer.Importer) runner
	}{
		{"books", importer.BooksFile, func(im *importer.Importer) runner { return im.ImportBooks }},
		{"users", importer.UsersFile, func(im *importer.Importer) runner { return im.ImportUsers }},
		{"rentals", importer.RentalsFile, func(im *importer.Importer) runner { return im.ImportRentals }},
	}

	for _, table := range tables {
		cmd.AddCommand(&cobra.Command{
			Use:   table.name + " [file]",
			Short: fmt.Sprintf("Import %s (default <data-dir>/%s)", table.name, table.file),
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(ctx context.Context, e *env) error {
					path := filepath.Join(resolveDir(e), table.file)
					if len(args) == 1 {
						path = args[0]
					}

					im := importer.New(e.db, e.logger)
					res, err := im.ImportFile(ctx, path, table.run(im))
					if err != nil {
						return err
					}
					fmt.Printf("%s: %s\n", table.name, res)
					return nil
				})(cmd, args)
			},
		})
	}
	return cmd
}
