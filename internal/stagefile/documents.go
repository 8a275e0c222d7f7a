// Package stagefile reads the artifacts the upstream pipeline stages
// (OCR, image extraction, face detection) leave on disk. The stages
// run independently and key their records by filename strings; this
// package only parses the shapes, the reconcile package joins them.
package stagefile

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DocumentMeta is one OCR-stage metadata record plus its text body.
type DocumentMeta struct {
	Filename      string  `json:"filename"`
	InputPath     string  `json:"input_path"`
	OutputPDF     string  `json:"output_pdf"`
	OCRConfidence float64 `json:"ocr_confidence"`
	PageCount     int     `json:"page_count"`
	FileSizeBytes int64   `json:"file_size"`

	// Derived fields, not present in the JSON.
	DatasetNumber int    `json:"-"`
	TextContent   string `json:"-"`
	DocumentType  string `json:"-"`
}

// ReadDocuments walks the processed tree and loads every document
// metadata record. Metadata lives under directories named "metadata";
// image manifests (*_images.json) and manifest files are skipped.
// Text bodies are read from the sibling text/<stem>.txt when present.
// A single unreadable record is reported through onError and skipped;
// it does not abort the walk.
func ReadDocuments(inputDir string, onError func(path string, err error)) ([]DocumentMeta, error) {
	var docs []DocumentMeta

	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isDocumentMeta(path) {
			return nil
		}

		doc, readErr := readDocument(path)
		if readErr != nil {
			if onError != nil {
				onError(path, readErr)
			}
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", inputDir, err)
	}
	return docs, nil
}

// isDocumentMeta reports whether a path is an OCR document metadata
// file: a .json under a metadata directory that is neither an image
// manifest nor a run manifest.
func isDocumentMeta(path string) bool {
	if !strings.HasSuffix(path, ".json") {
		return false
	}
	base := filepath.Base(path)
	if strings.Contains(base, "_images") || strings.Contains(base, "manifest") {
		return false
	}
	return strings.Contains(path, "metadata")
}

func readDocument(path string) (DocumentMeta, error) {
	var doc DocumentMeta

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("reading metadata: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing metadata: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	if doc.Filename == "" {
		doc.Filename = stem
	}
	doc.DatasetNumber = ExtractDatasetNumber(path)

	// Text bodies live next to the metadata dir: <parent>/text/<stem>.txt.
	textPath := filepath.Join(filepath.Dir(filepath.Dir(path)), "text", stem+".txt")
	if text, err := os.ReadFile(textPath); err == nil {
		doc.TextContent = string(text)
	}

	doc.DocumentType = ClassifyDocumentType(doc.Filename, doc.TextContent)
	return doc, nil
}

var datasetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Dd]ata[Ss]et[_\s]?(\d+)`),
	regexp.MustCompile(`DS(\d+)`),
}

// ExtractDatasetNumber pulls the dataset number out of a path
// ("DataSet_10", "DataSet 10", "DS10"). Returns 0 when no pattern
// matches; dataset 0 is the catch-all bucket.
func ExtractDatasetNumber(path string) int {
	for _, p := range datasetPatterns {
		if m := p.FindStringSubmatch(path); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// classifyLimit caps how much text the classifier inspects.
const classifyLimit = 5000

// ClassifyDocumentType assigns a coarse document type from the
// filename and the leading text content.
func ClassifyDocumentType(filename, text string) string {
	filenameLower := strings.ToLower(filename)
	if len(text) > classifyLimit {
		text = text[:classifyLimit]
	}
	textLower := strings.ToLower(text)

	switch {
	case strings.Contains(filename, "302"),
		strings.Contains(filenameLower, "fbi"),
		strings.Contains(textLower, "federal bureau"):
		return "fbi_report"
	case strings.Contains(filenameLower, "deposition"),
		strings.Contains(textLower, "deposition"):
		return "transcript"
	case strings.Contains(filenameLower, "email"),
		strings.Contains(textLower, "from:") && strings.Contains(textLower, "to:"):
		return "email"
	case strings.Contains(filenameLower, "court"),
		strings.Contains(textLower, "plaintiff"),
		strings.Contains(textLower, "defendant"):
		return "court_doc"
	case hasAnySuffixPart(filenameLower, ".jpg", ".png", ".gif", ".bmp"):
		return "photo"
	case hasAnySuffixPart(filenameLower, ".mp4", ".avi", ".mov", ".wmv"):
		return "video"
	default:
		return "other"
	}
}

func hasAnySuffixPart(s string, parts ...string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
