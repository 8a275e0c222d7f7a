package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatfiles/docpipe/internal/config"
	"github.com/chatfiles/docpipe/internal/database/postgres"
	"github.com/chatfiles/docpipe/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API server",
	Long: `Serve starts the HTTP API over the reconciled store: clusters,
documents, extracted images and face similarity search.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer pool.Close()

	addr := fmt.Sprintf("%s:%d", mustGetString(cmd, "host"), mustGetInt(cmd, "port"))
	server := web.NewServer(postgres.NewStore(pool), addr)

	fmt.Println("Building in-memory face similarity index...")
	if err := server.BuildIndex(context.Background()); err != nil {
		fmt.Printf("Warning: failed to build face index: %v\n", err)
		fmt.Println("Similarity search will use PostgreSQL queries (slower)")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting docpipe API on http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
