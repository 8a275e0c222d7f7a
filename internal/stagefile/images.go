package stagefile

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ImageMeta is one image extracted from a document page.
type ImageMeta struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	Path       string `json:"path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// ImageManifest is the extraction stage's per-document record: the
// source document filename and the images pulled from it.
type ImageManifest struct {
	Filename string      `json:"filename"`
	Images   []ImageMeta `json:"images"`

	// Stem of the manifest file itself without the _images suffix,
	// used for the fallback document lookup. Not part of the JSON.
	Stem string `json:"-"`
}

// ReadImageManifests loads every *_images.json under the processed
// tree. Unreadable manifests are reported through onError and
// skipped.
func ReadImageManifests(inputDir string, onError func(path string, err error)) ([]ImageManifest, error) {
	var manifests []ImageManifest

	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, "_images.json") {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			if onError != nil {
				onError(path, readErr)
			}
			return nil
		}
		var m ImageManifest
		if parseErr := json.Unmarshal(data, &m); parseErr != nil {
			if onError != nil {
				onError(path, parseErr)
			}
			return nil
		}
		m.Stem = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".json"), "_images")
		manifests = append(manifests, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", inputDir, err)
	}
	return manifests, nil
}
