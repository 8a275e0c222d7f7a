package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatfiles/docpipe/internal/config"
	"github.com/chatfiles/docpipe/internal/database/postgres"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store counts",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer pool.Close()

	counts, err := postgres.NewStore(pool).Counts(context.Background())
	if err != nil {
		return fmt.Errorf("counting: %w", err)
	}

	fmt.Printf("Documents: %d\n", counts.Documents)
	fmt.Printf("Images:    %d\n", counts.Images)
	fmt.Printf("Clusters:  %d\n", counts.Clusters)
	fmt.Printf("Faces:     %d\n", counts.Faces)
	return nil
}
