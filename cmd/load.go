package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatfiles/docpipe/internal/config"
	"github.com/chatfiles/docpipe/internal/database/postgres"
	"github.com/chatfiles/docpipe/internal/reconcile"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load pipeline artifacts into the database",
	Long: `Load reconciles the filename-keyed artifacts of the upstream
pipeline stages into PostgreSQL: documents, extracted images, face
clusters and faces, in dependency order. Stages that fail are reported
and the run continues with the next stage.`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().String("input", "", "Processed documents directory (default from config)")
	loadCmd.Flags().String("faces", "", "Face detection output directory (default from config)")
	loadCmd.Flags().Bool("dry-run", false, "Parse and resolve everything without writing")
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	inputDir := mustGetString(cmd, "input")
	if inputDir == "" {
		inputDir = cfg.Pipeline.InputDir
	}
	facesDir := mustGetString(cmd, "faces")
	if facesDir == "" {
		facesDir = cfg.Pipeline.FacesDir
	}
	dryRun := mustGetBool(cmd, "dry-run")

	if cfg.Database.URL == "" && !dryRun {
		return errors.New("DATABASE_URL environment variable is required")
	}

	ctx := context.Background()

	var loader *reconcile.Loader
	if dryRun {
		fmt.Println("Dry run: nothing will be written.")
		loader = reconcile.NewLoader(nil)
		loader.DryRun = true
	} else {
		fmt.Println("Connecting to PostgreSQL database...")
		pool, err := postgres.Initialize(&cfg.Database)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		defer pool.Close()
		loader = reconcile.NewLoader(postgres.NewStore(pool))
	}

	summary, err := loader.Run(ctx, inputDir, facesDir)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s complete:\n", summary.RunID)
	fmt.Printf("  Documents: %d loaded, %d errored\n", summary.DocumentsLoaded, summary.DocumentsErrored)
	fmt.Printf("  Images:    %d loaded, %d skipped, %d errored\n", summary.ImagesLoaded, summary.ImagesSkipped, summary.ImagesErrored)
	fmt.Printf("  Clusters:  %d loaded\n", summary.ClustersLoaded)
	fmt.Printf("  Faces:     %d loaded, %d skipped, %d errored\n", summary.FacesLoaded, summary.FacesSkipped, summary.FacesErrored)
	fmt.Printf("  Images flagged with faces: %d\n", summary.ImagesFlagged)

	if summary.Failed() {
		return fmt.Errorf("%d stage(s) failed", len(summary.StageErrors))
	}
	return nil
}
