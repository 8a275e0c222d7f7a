// Package config assembles runtime configuration from environment
// variables plus embedded defaults for the clustering thresholds.
package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Pipeline   PipelineConfig
	Clustering ClusteringConfig
	Server     ServerConfig
	Database   DatabaseConfig
}

// PipelineConfig points at the artifact directories the upstream
// stages write into.
type PipelineConfig struct {
	InputDir     string // processed documents tree (OCR + image extraction output)
	FacesDir     string // face detection and clustering output
	ReferenceDir string // known-person reference embeddings
}

// ClusteringConfig carries the similarity thresholds. Defaults come
// from the embedded thresholds.yaml; env vars override per run.
type ClusteringConfig struct {
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	KnownPersonThreshold float64 `yaml:"known_person_threshold"`
	MinClusterSize       int     `yaml:"min_cluster_size"`
}

type ServerConfig struct {
	Addr string // listen address (default :8080)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in (0, 1).
// Returns the default value if unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f < 1 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var clustering ClusteringConfig
	if err := yaml.Unmarshal(thresholdsYAML, &clustering); err != nil {
		// Embedded file, should never happen in practice.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	clustering.SimilarityThreshold = envFloat("SIMILARITY_THRESHOLD", clustering.SimilarityThreshold)
	clustering.KnownPersonThreshold = envFloat("KNOWN_PERSON_THRESHOLD", clustering.KnownPersonThreshold)
	clustering.MinClusterSize = envInt("MIN_CLUSTER_SIZE", clustering.MinClusterSize)

	return &Config{
		Pipeline: PipelineConfig{
			InputDir:     envString("PIPELINE_INPUT_DIR", "processed"),
			FacesDir:     envString("PIPELINE_FACES_DIR", "faces_output"),
			ReferenceDir: envString("PIPELINE_REFERENCE_DIR", "references"),
		},
		Clustering: clustering,
		Server: ServerConfig{
			Addr: envString("SERVER_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}
