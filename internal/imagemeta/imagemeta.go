// Package imagemeta probes extracted image files for dimensions and
// applies the size filters that keep decorative page furniture
// (rules, bullets, letterheads) out of the store.
package imagemeta

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Info holds what the prober learns about one image file.
type Info struct {
	Width     int
	Height    int
	SizeBytes int64
	Format    string
}

// Probe reads just enough of the file to learn its dimensions.
func Probe(path string) (Info, error) {
	var info Info

	st, err := os.Stat(path)
	if err != nil {
		return info, fmt.Errorf("stat image: %w", err)
	}
	info.SizeBytes = st.Size()

	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return info, fmt.Errorf("decode image header: %w", err)
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	info.Format = format
	return info, nil
}

// Filter rejects images too small to carry a face.
type Filter struct {
	MinWidth  int
	MinHeight int
	MinBytes  int64
}

// DefaultFilter matches the extraction stage's calibration: anything
// under 50px a side or 5 KiB is page furniture, not a photograph.
func DefaultFilter() Filter {
	return Filter{MinWidth: 50, MinHeight: 50, MinBytes: 5 * 1024}
}

// Keep reports whether an image passes the filter.
func (f Filter) Keep(info Info) bool {
	if info.Width < f.MinWidth || info.Height < f.MinHeight {
		return false
	}
	if info.SizeBytes < f.MinBytes {
		return false
	}
	return true
}

// Thumbnail decodes an image and re-encodes it as JPEG scaled to fit
// within maxSize on the longer side. Images already small enough are
// returned unchanged.
func Thumbnail(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxSize && height <= maxSize {
		return data, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = height * maxSize / width
	} else {
		newHeight = maxSize
		newWidth = width * maxSize / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
