package web

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/chatfiles/docpipe/internal/database"
	"github.com/chatfiles/docpipe/internal/faces"
	"github.com/chatfiles/docpipe/internal/identity"
	"github.com/chatfiles/docpipe/internal/imagemeta"
	"github.com/go-chi/chi/v5"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

type clusterResponse struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	Label           *string   `json:"label"`
	SampleImagePath string    `json:"sample_image_path"`
	FaceCount       int       `json:"face_count"`
	IsKnownPerson   bool      `json:"is_known_person"`
	MatchConfidence *float64  `json:"match_confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

type faceResponse struct {
	ID           int64             `json:"id"`
	ImageID      *int64            `json:"image_id"`
	DocumentID   *int64            `json:"document_id"`
	ClusterID    *int64            `json:"cluster_id"`
	ClusterLabel *string           `json:"cluster_label"`
	BBox         faces.BoundingBox `json:"bbox"`
	Confidence   float64           `json:"confidence"`
	CropPath     string            `json:"crop_path"`
	CreatedAt    time.Time         `json:"created_at"`
}

type imageResponse struct {
	ID         int64     `json:"id"`
	DocumentID *int64    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	ImagePath  string    `json:"image_path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	HasFaces   bool      `json:"has_faces"`
	CreatedAt  time.Time `json:"created_at"`
}

type documentResponse struct {
	ID            int64     `json:"id"`
	DatasetNumber int       `json:"dataset_number"`
	Filename      string    `json:"filename"`
	FilePath      string    `json:"file_path"`
	TextContent   string    `json:"text_content"`
	OCRConfidence float64   `json:"ocr_confidence"`
	PageCount     int       `json:"page_count"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	DocumentType  string    `json:"document_type"`
	CreatedAt     time.Time `json:"created_at"`
}

func toClusterResponse(c database.ClusterRow) clusterResponse {
	return clusterResponse{
		ID:              c.ID,
		RunID:           c.RunID,
		Label:           c.Label,
		SampleImagePath: c.SampleImagePath,
		FaceCount:       c.FaceCount,
		IsKnownPerson:   c.IsKnownPerson,
		MatchConfidence: c.MatchConfidence,
		CreatedAt:       c.CreatedAt,
	}
}

func toFaceResponse(f database.StoredFaceInfo) faceResponse {
	return faceResponse{
		ID:           f.ID,
		ImageID:      f.ImageID,
		DocumentID:   f.DocumentID,
		ClusterID:    f.ClusterID,
		ClusterLabel: f.ClusterLabel,
		BBox:         f.BBox,
		Confidence:   f.Confidence,
		CropPath:     f.CropPath,
		CreatedAt:    f.CreatedAt,
	}
}

func toFaceResponses(infos []database.StoredFaceInfo) []faceResponse {
	out := make([]faceResponse, len(infos))
	for i, f := range infos {
		out[i] = toFaceResponse(f)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.reader.Counts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"documents":     counts.Documents,
		"images":        counts.Images,
		"clusters":      counts.Clusters,
		"faces":         counts.Faces,
		"indexed_faces": s.index.Count(),
	})
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	knownOnly := r.URL.Query().Get("known") == "true"

	clusters, err := s.reader.GetClusters(r.Context(), knownOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load clusters")
		return
	}

	// Label matching is diacritic- and case-insensitive: "jiri-novak"
	// finds a cluster labeled "Jiří Novák".
	if label := r.URL.Query().Get("label"); label != "" {
		want := identity.Normalize(label)
		var matched []database.ClusterRow
		for _, c := range clusters {
			if c.Label != nil && identity.Normalize(*c.Label) == want {
				matched = append(matched, c)
			}
		}
		clusters = matched
	}

	out := make([]clusterResponse, len(clusters))
	for i, c := range clusters {
		out[i] = toClusterResponse(c)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"clusters": out,
		"count":    len(out),
	})
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cluster id")
		return
	}

	cluster, err := s.reader.GetCluster(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load cluster")
		return
	}
	if cluster == nil {
		respondError(w, http.StatusNotFound, "cluster not found")
		return
	}

	clusterFaces, err := s.reader.GetClusterFaces(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load cluster faces")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cluster": toClusterResponse(*cluster),
		"faces":   toFaceResponses(clusterFaces),
	})
}

func (s *Server) handleGetFace(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	face, err := s.reader.GetFace(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load face")
		return
	}
	if face == nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	respondJSON(w, http.StatusOK, toFaceResponse(*face))
}

// handleSimilarFaces finds the nearest neighbors of a stored face.
// Uses the in-memory index when built, otherwise falls back to a
// pgvector scan.
func (s *Server) handleSimilarFaces(w http.ResponseWriter, r *http.Request) {
	faceID, err := strconv.ParseInt(r.URL.Query().Get("face_id"), 10, 64)
	if err != nil || faceID <= 0 {
		respondError(w, http.StatusBadRequest, "face_id query parameter is required")
		return
	}
	limit := 10
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	face, err := s.reader.GetFace(r.Context(), faceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load face")
		return
	}
	if face == nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	if len(face.Embedding) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "face has no embedding")
		return
	}

	type match struct {
		Face     faceResponse `json:"face"`
		Distance float64      `json:"distance"`
	}
	var matches []match

	if s.index.Count() > 0 {
		// Ask for one extra: the query face is its own nearest neighbor.
		ids, distances, err := s.index.Search(face.Embedding, limit+1)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "similarity search failed")
			return
		}
		for i, id := range ids {
			if id == faceID || len(matches) >= limit {
				continue
			}
			if f := s.index.Face(id); f != nil {
				matches = append(matches, match{Face: toFaceResponse(*f), Distance: distances[i]})
			}
		}
	} else {
		infos, distances, err := s.reader.FindSimilarFaces(r.Context(), face.Embedding, limit+1)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "similarity search failed")
			return
		}
		for i, f := range infos {
			if f.ID == faceID || len(matches) >= limit {
				continue
			}
			matches = append(matches, match{Face: toFaceResponse(f), Distance: distances[i]})
		}
	}

	if matches == nil {
		matches = []match{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"face_id": faceID,
		"matches": matches,
	})
}

// handleFaceCrop serves the stored face crop as a JPEG thumbnail.
func (s *Server) handleFaceCrop(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	face, err := s.reader.GetFace(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load face")
		return
	}
	if face == nil || face.CropPath == "" {
		respondError(w, http.StatusNotFound, "face crop not found")
		return
	}

	data, err := os.ReadFile(face.CropPath)
	if err != nil {
		respondError(w, http.StatusNotFound, "face crop not found")
		return
	}

	size := 256
	if sz, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && sz >= 16 && sz <= 1024 {
		size = sz
	}
	thumb, err := imagemeta.Thumbnail(data, size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render crop")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(thumb)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := s.reader.GetDocument(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}

	respondJSON(w, http.StatusOK, documentResponse{
		ID:            doc.ID,
		DatasetNumber: doc.DatasetNumber,
		Filename:      doc.Filename,
		FilePath:      doc.FilePathR2,
		TextContent:   doc.TextContent,
		OCRConfidence: doc.OCRConfidence,
		PageCount:     doc.PageCount,
		FileSizeBytes: doc.FileSizeBytes,
		DocumentType:  doc.DocumentType,
		CreatedAt:     doc.CreatedAt,
	})
}

func (s *Server) handleDocumentImages(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	imgs, err := s.reader.GetDocumentImages(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load images")
		return
	}

	out := make([]imageResponse, len(imgs))
	for i, img := range imgs {
		out[i] = imageResponse{
			ID:         img.ID,
			DocumentID: img.DocumentID,
			PageNumber: img.PageNumber,
			ImagePath:  img.ImagePath,
			Width:      img.Width,
			Height:     img.Height,
			HasFaces:   img.HasFaces,
			CreatedAt:  img.CreatedAt,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"images":      out,
		"count":       len(out),
	})
}
