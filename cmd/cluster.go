package cmd

import (
	"errors"
	"fmt"

	"github.com/chatfiles/docpipe/internal/cluster"
	"github.com/chatfiles/docpipe/internal/config"
	"github.com/chatfiles/docpipe/internal/faces"
	"github.com/chatfiles/docpipe/internal/identity"
	"github.com/chatfiles/docpipe/internal/stagefile"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster detected faces into identities",
	Long: `Cluster reads the face detection artifacts (faces.json plus the
embedding array), groups the faces into identity clusters, labels the
clusters against the reference identities, and writes clusters.json
back into the faces directory.`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().String("faces", "", "Face detection output directory (default from config)")
	clusterCmd.Flags().String("reference", "", "Reference identities directory (default from config)")
	clusterCmd.Flags().Float64("similarity", 0, "Similarity threshold override")
	clusterCmd.Flags().Float64("known-threshold", 0, "Known person threshold override")
	clusterCmd.Flags().Int("min-cluster-size", 0, "Minimum dense cluster size override")
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	facesDir := mustGetString(cmd, "faces")
	if facesDir == "" {
		facesDir = cfg.Pipeline.FacesDir
	}
	refDir := mustGetString(cmd, "reference")
	if refDir == "" {
		refDir = cfg.Pipeline.ReferenceDir
	}

	opts := cluster.Options{
		SimilarityThreshold:  cfg.Clustering.SimilarityThreshold,
		KnownPersonThreshold: cfg.Clustering.KnownPersonThreshold,
		MinClusterSize:       cfg.Clustering.MinClusterSize,
	}
	if v := mustGetFloat64(cmd, "similarity"); v > 0 {
		opts.SimilarityThreshold = v
	}
	if v := mustGetFloat64(cmd, "known-threshold"); v > 0 {
		opts.KnownPersonThreshold = v
	}
	if v := mustGetInt(cmd, "min-cluster-size"); v > 0 {
		opts.MinClusterSize = v
	}

	facesFile, err := stagefile.ReadFacesFile(facesDir)
	if err != nil {
		return fmt.Errorf("reading faces: %w", err)
	}
	embeddings, err := stagefile.ReadEmbeddings(facesDir)
	if err != nil {
		return fmt.Errorf("reading embeddings: %w", err)
	}
	if len(facesFile.Faces) > 0 && embeddings == nil {
		return errors.New("no embedding artifact found next to faces.json")
	}

	batch, err := faces.FromParallel(facesFile.Faces, embeddings)
	if err != nil {
		return fmt.Errorf("assembling face batch: %w", err)
	}
	fmt.Printf("Loaded %d faces (%d-d embeddings)\n", batch.Len(), batch.Dim())

	var refs *identity.Set
	if refDir != "" {
		refs, err = identity.LoadDirectory(refDir, batch.Dim())
		if err != nil {
			return fmt.Errorf("loading references: %w", err)
		}
		fmt.Printf("Loaded %d reference identities\n", refs.Len())
	}

	result, err := cluster.Run(batch, refs, opts)
	if err != nil {
		return fmt.Errorf("clustering: %w", err)
	}

	if err := stagefile.WriteClustersFile(facesDir, result); err != nil {
		return err
	}

	fmt.Printf("\nClustering complete:\n")
	fmt.Printf("  Total faces:      %d\n", result.TotalFaces)
	fmt.Printf("  Total clusters:   %d\n", result.TotalClusters)
	fmt.Printf("  Known persons:    %d\n", result.KnownPersons)
	fmt.Printf("  Unknown clusters: %d\n", result.UnknownClusters)
	for _, c := range result.Clusters {
		if c.IsKnownPerson && c.Label != nil {
			fmt.Printf("  %s: %d faces (confidence %.3f)\n", *c.Label, c.FaceCount, *c.MatchConfidence)
		}
	}
	return nil
}
