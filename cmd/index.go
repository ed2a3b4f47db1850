package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database/postgres"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the roster HNSW index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the roster HNSW index and persist it to disk",
	Long: `Rebuild the in-memory similarity index from the face samples in the
database and write it to HNSW_INDEX_PATH. The serve command loads the file
on startup instead of rebuilding from scratch.`,
	RunE: runIndexBuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Database.HNSWIndexPath == "" {
		return errors.New("HNSW_INDEX_PATH environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	samples := postgres.NewFaceSampleRepository(pool)

	fmt.Println("Building roster HNSW index...")
	if err := samples.EnableHNSW(ctx, cfg.Database.HNSWIndexPath); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	fmt.Printf("Index with %d samples ready at %s\n", samples.IndexCount(), cfg.Database.HNSWIndexPath)
	return nil
}
