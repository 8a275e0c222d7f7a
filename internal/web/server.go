// Package web serves the read-only HTTP API over the reconciled
// store: clusters, documents, images, and face similarity search.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/chatfiles/docpipe/internal/database"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Reader is the store surface the API reads from. Implemented by the
// postgres store; tests substitute a stub.
type Reader interface {
	GetClusters(ctx context.Context, knownOnly bool) ([]database.ClusterRow, error)
	GetCluster(ctx context.Context, id int64) (*database.ClusterRow, error)
	GetClusterFaces(ctx context.Context, clusterID int64) ([]database.StoredFaceInfo, error)
	GetDocument(ctx context.Context, id int64) (*database.DocumentRow, error)
	GetDocumentImages(ctx context.Context, documentID int64) ([]database.ImageRow, error)
	GetFace(ctx context.Context, id int64) (*database.StoredFaceInfo, error)
	GetAllFaces(ctx context.Context) ([]database.StoredFaceInfo, error)
	FindSimilarFaces(ctx context.Context, embedding []float32, limit int) ([]database.StoredFaceInfo, []float64, error)
	Counts(ctx context.Context) (database.Counts, error)
}

// Server is the read API server.
type Server struct {
	reader     Reader
	index      *database.HNSWIndex
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates the server and wires the routes.
func NewServer(reader Reader, addr string) *Server {
	r := chi.NewRouter()

	s := &Server{
		reader: reader,
		index:  database.NewHNSWIndex(),
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// BuildIndex loads every stored face into the in-memory similarity
// index. Called once before Start; the similar-faces endpoint falls
// back to a database scan until the index is built.
func (s *Server) BuildIndex(ctx context.Context) error {
	faces, err := s.reader.GetAllFaces(ctx)
	if err != nil {
		return fmt.Errorf("loading faces for index: %w", err)
	}
	if err := s.index.Build(faces); err != nil {
		return fmt.Errorf("building face index: %w", err)
	}
	log.Printf("Face index built with %d faces", s.index.Count())
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Get("/faces/clusters", s.handleListClusters)
		r.Get("/faces/clusters/{id}", s.handleGetCluster)
		r.Get("/faces/similar", s.handleSimilarFaces)
		r.Get("/faces/{id}", s.handleGetFace)
		r.Get("/faces/{id}/crop", s.handleFaceCrop)

		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/images", s.handleDocumentImages)
	})
}
