package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Identity clustering and reconciliation for scanned document archives",
	Long: `Docpipe joins the artifacts of the document processing pipeline:
it clusters detected faces into identities, labels them against a set
of known persons, and reconciles documents, extracted images, clusters
and faces into a PostgreSQL store queryable over HTTP.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
