// Package reconcile joins the filename-keyed artifacts of the upstream
// pipeline stages into the relational store. Each entity kind loads in
// its own stage with its own transaction scope; a failed stage is
// reported and the run continues with the next one, so partial
// artifacts still load what they can.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chatfiles/docpipe/internal/database"
	"github.com/chatfiles/docpipe/internal/imagemeta"
	"github.com/chatfiles/docpipe/internal/stagefile"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Loader runs the reconciliation stages against a store.
type Loader struct {
	store database.Store

	// DryRun parses and resolves everything but skips all writes.
	DryRun bool

	// Out receives operator feedback. Defaults to stdout.
	Out io.Writer
}

// NewLoader creates a loader over the given store.
func NewLoader(store database.Store) *Loader {
	return &Loader{store: store, Out: os.Stdout}
}

// Summary reports what one run loaded, skipped, and failed.
type Summary struct {
	RunID string

	DocumentsLoaded  int
	DocumentsErrored int

	ImagesLoaded  int
	ImagesSkipped int
	ImagesErrored int

	ClustersLoaded int

	FacesLoaded  int
	FacesSkipped int
	FacesErrored int

	ImagesFlagged int64

	// StageErrors holds one error per failed stage. A stage failure
	// does not abort the run.
	StageErrors []error
}

// Failed reports whether any stage failed outright.
func (s *Summary) Failed() bool {
	return len(s.StageErrors) > 0
}

// Run loads the artifacts under inputDir (OCR and image-extraction
// output) and facesDir (detection and clustering output) into the
// store. Stages run in dependency order: documents, images, clusters,
// faces, then the has-faces flag update.
func (l *Loader) Run(ctx context.Context, inputDir, facesDir string) (*Summary, error) {
	summary := &Summary{RunID: uuid.New().String()}
	state := &runState{}

	stages := []struct {
		name string
		fn   func(context.Context, string, string, *Summary, *runState) error
	}{
		{"documents", l.loadDocuments},
		{"images", l.loadImages},
		{"clusters", l.loadClusters},
		{"faces", l.loadFaces},
		{"flags", l.flagImages},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := stage.fn(ctx, inputDir, facesDir, summary, state); err != nil {
			fmt.Fprintf(l.Out, "stage %s failed: %v\n", stage.name, err)
			summary.StageErrors = append(summary.StageErrors,
				fmt.Errorf("stage %s: %w", stage.name, err))
		}
	}
	return summary, nil
}

// runState carries the cross-stage resolution maps.
type runState struct {
	docIDs     map[string]int64 // document filename -> id
	imageIDs   map[string]int64 // image path basename -> id
	clusterIDs map[string]int64 // face ID -> cluster row id
}

func (l *Loader) loadDocuments(ctx context.Context, inputDir, _ string, summary *Summary, state *runState) error {
	docs, err := stagefile.ReadDocuments(inputDir, func(path string, err error) {
		fmt.Fprintf(l.Out, "  skipping %s: %v\n", path, err)
		summary.DocumentsErrored++
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(l.Out, "Loading %d documents...\n", len(docs))

	rows := make([]database.DocumentRow, len(docs))
	for i, doc := range docs {
		rows[i] = database.DocumentRow{
			DatasetNumber: doc.DatasetNumber,
			Filename:      doc.Filename,
			FilePathR2:    doc.OutputPDF,
			TextContent:   doc.TextContent,
			OCRConfidence: doc.OCRConfidence,
			PageCount:     doc.PageCount,
			FileSizeBytes: doc.FileSizeBytes,
			DocumentType:  doc.DocumentType,
		}
	}

	if !l.DryRun {
		n, err := l.store.UpsertDocuments(ctx, rows)
		if err != nil {
			return err
		}
		summary.DocumentsLoaded = n

		// Read back the full table, not just this batch: later stages
		// resolve against documents loaded by earlier runs too.
		state.docIDs, err = l.store.DocumentIDsByFilename(ctx)
		if err != nil {
			return err
		}
	} else {
		summary.DocumentsLoaded = len(rows)
		state.docIDs = make(map[string]int64)
		for i, row := range rows {
			state.docIDs[row.Filename] = int64(i + 1)
		}
	}
	return nil
}

func (l *Loader) loadImages(ctx context.Context, inputDir, _ string, summary *Summary, state *runState) error {
	manifests, err := stagefile.ReadImageManifests(inputDir, func(path string, err error) {
		fmt.Fprintf(l.Out, "  skipping %s: %v\n", path, err)
		summary.ImagesErrored++
	})
	if err != nil {
		return err
	}

	filter := imagemeta.DefaultFilter()
	var rows []database.ImageRow
	for _, m := range manifests {
		docID := resolveDocument(state.docIDs, m.Filename, m.Stem)
		for _, img := range m.Images {
			row := database.ImageRow{
				DocumentID: docID,
				PageNumber: img.PageNumber,
				ImagePath:  img.Path,
				Width:      img.Width,
				Height:     img.Height,
			}
			// Manifests from older extraction runs lack dimensions;
			// probe the file when it is locally present.
			if info, err := imagemeta.Probe(img.Path); err == nil {
				if row.Width == 0 {
					row.Width = info.Width
				}
				if row.Height == 0 {
					row.Height = info.Height
				}
				if !filter.Keep(info) {
					summary.ImagesSkipped++
					continue
				}
			}
			rows = append(rows, row)
		}
	}
	fmt.Fprintf(l.Out, "Loading %d images from %d manifests...\n", len(rows), len(manifests))

	if !l.DryRun {
		n, err := l.store.InsertImages(ctx, rows)
		if err != nil {
			return err
		}
		summary.ImagesLoaded = n
		summary.ImagesSkipped += len(rows) - n

		state.imageIDs, err = l.store.ImageIDsByFilename(ctx)
		if err != nil {
			return err
		}
	} else {
		summary.ImagesLoaded = len(rows)
		state.imageIDs = make(map[string]int64)
		for i, row := range rows {
			if row.ImagePath != "" {
				state.imageIDs[filepath.Base(row.ImagePath)] = int64(i + 1)
			}
		}
	}
	return nil
}

func (l *Loader) loadClusters(ctx context.Context, _, facesDir string, summary *Summary, state *runState) error {
	result, err := stagefile.ReadClustersFile(facesDir)
	if err != nil {
		return err
	}
	state.clusterIDs = make(map[string]int64)
	if result == nil {
		fmt.Fprintln(l.Out, "No clustering output found, skipping clusters.")
		return nil
	}

	rows := make([]database.ClusterRow, len(result.Clusters))
	for i, c := range result.Clusters {
		rows[i] = database.ClusterRow{
			Label:           c.Label,
			SampleImagePath: c.SampleFacePath,
			FaceCount:       c.FaceCount,
			IsKnownPerson:   c.IsKnownPerson,
			MatchConfidence: c.MatchConfidence,
			OriginalKey:     c.ClusterID,
		}
	}
	fmt.Fprintf(l.Out, "Loading %d clusters (run %s)...\n", len(rows), summary.RunID)

	var ids []int64
	if !l.DryRun {
		ids, err = l.store.InsertClusters(ctx, summary.RunID, rows)
		if err != nil {
			return err
		}
	} else {
		ids = make([]int64, len(rows))
		for i := range ids {
			ids[i] = int64(i + 1)
		}
	}
	summary.ClustersLoaded = len(ids)

	// Remap cluster memberships from the engine's keys onto the
	// inserted row ids so faces can reference them.
	for i, c := range result.Clusters {
		for _, faceID := range c.FaceIDs {
			state.clusterIDs[faceID] = ids[i]
		}
	}
	return nil
}

func (l *Loader) loadFaces(ctx context.Context, _, facesDir string, summary *Summary, state *runState) error {
	facesFile, err := stagefile.ReadFacesFile(facesDir)
	if err != nil {
		return err
	}
	embeddings, err := stagefile.ReadEmbeddings(facesDir)
	if err != nil {
		return err
	}

	// Sorted once; substring resolution iterates deterministically.
	docFilenames := sortedKeys(state.docIDs)

	fmt.Fprintf(l.Out, "Loading %d faces...\n", len(facesFile.Faces))
	bar := progressbar.Default(int64(len(facesFile.Faces)), "faces")

	for _, obs := range facesFile.Faces {
		_ = bar.Add(1)

		row := database.FaceRow{
			BBox:       obs.BBox,
			Confidence: obs.Confidence,
			CropPath:   obs.CropPath,
		}
		if obs.EmbeddingIndex >= 0 && obs.EmbeddingIndex < len(embeddings) {
			row.Embedding = embeddings[obs.EmbeddingIndex]
		}

		if id, ok := state.imageIDs[filepath.Base(obs.SourceImagePath)]; ok {
			row.ImageID = &id
		}
		if id, ok := resolveFaceDocument(state.docIDs, docFilenames, obs.SourceImagePath); ok {
			row.DocumentID = &id
		}
		if id, ok := state.clusterIDs[obs.FaceID]; ok {
			row.ClusterID = &id
		}

		if l.DryRun {
			summary.FacesLoaded++
			continue
		}
		inserted, err := l.store.InsertFace(ctx, row)
		if err != nil {
			fmt.Fprintf(l.Out, "  face %s: %v\n", obs.FaceID, err)
			summary.FacesErrored++
			continue
		}
		if inserted {
			summary.FacesLoaded++
		} else {
			summary.FacesSkipped++
		}
	}
	return nil
}

func (l *Loader) flagImages(ctx context.Context, _, _ string, summary *Summary, _ *runState) error {
	if l.DryRun {
		return nil
	}
	n, err := l.store.MarkImagesWithFaces(ctx)
	if err != nil {
		return err
	}
	summary.ImagesFlagged = n
	fmt.Fprintf(l.Out, "Flagged %d images as containing faces.\n", n)
	return nil
}

// resolveDocument maps a manifest's document reference to a document
// id: exact filename match first, then the manifest stem as a
// substring of any stored filename. Substring candidates are checked
// in sorted order so a multi-hit resolves the same way every run.
func resolveDocument(docIDs map[string]int64, filename, stem string) *int64 {
	if id, ok := docIDs[filename]; ok {
		return &id
	}
	if stem == "" {
		return nil
	}
	for _, name := range sortedKeys(docIDs) {
		if strings.Contains(name, stem) {
			id := docIDs[name]
			return &id
		}
	}
	return nil
}

// resolveFaceDocument maps a face's source image path to a document by
// finding a stored document filename that appears verbatim in the
// path. Extracted-image paths usually name only the document stem, so
// most faces keep a null document reference and reach their document
// through the image row instead.
func resolveFaceDocument(docIDs map[string]int64, sorted []string, sourcePath string) (int64, bool) {
	if sourcePath == "" {
		return 0, false
	}
	for _, name := range sorted {
		if strings.Contains(sourcePath, name) {
			return docIDs[name], true
		}
	}
	return 0, false
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
