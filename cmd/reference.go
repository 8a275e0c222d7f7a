package cmd

import (
	"fmt"

	"github.com/chatfiles/docpipe/internal/config"
	"github.com/chatfiles/docpipe/internal/identity"
	"github.com/spf13/cobra"
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "List the loadable reference identities",
	Long: `Reference inspects the reference identity tree and reports which
known persons would be usable for cluster labeling: one subdirectory
per identity, each holding detector embedding sidecars for that
person's reference photos.`,
	RunE: runReference,
}

func init() {
	rootCmd.AddCommand(referenceCmd)

	referenceCmd.Flags().String("dir", "", "Reference identities directory (default from config)")
}

func runReference(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dir := mustGetString(cmd, "dir")
	if dir == "" {
		dir = cfg.Pipeline.ReferenceDir
	}

	refs, err := identity.LoadDirectory(dir, 0)
	if err != nil {
		return fmt.Errorf("loading references: %w", err)
	}

	if refs.Len() == 0 {
		fmt.Printf("No usable reference identities under %s\n", dir)
		return nil
	}

	fmt.Printf("%d reference identities (%d-d embeddings):\n", refs.Len(), refs.Dim())
	for _, ref := range refs.References() {
		fmt.Printf("  %-30s %d reference photos\n", ref.Name, ref.Photos)
	}
	return nil
}
