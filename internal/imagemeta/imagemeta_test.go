package imagemeta

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, dir string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, "img.png")
	if err := os.WriteFile(path, encodePNG(t, width, height), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbe(t *testing.T) {
	path := writePNG(t, t.TempDir(), 120, 80)

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Width != 120 || info.Height != 80 {
		t.Errorf("expected 120x80, got %dx%d", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("expected format png, got %q", info.Format)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("expected positive size, got %d", info.SizeBytes)
	}
}

func TestProbe_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Probe(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}

	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Probe(garbage); err == nil {
		t.Error("expected error for undecodable file")
	}
}

func TestFilter_Keep(t *testing.T) {
	f := DefaultFilter()

	cases := []struct {
		name string
		info Info
		keep bool
	}{
		{"photo", Info{Width: 640, Height: 480, SizeBytes: 100_000}, true},
		{"too narrow", Info{Width: 40, Height: 480, SizeBytes: 100_000}, false},
		{"too short", Info{Width: 640, Height: 30, SizeBytes: 100_000}, false},
		{"too small on disk", Info{Width: 640, Height: 480, SizeBytes: 1024}, false},
		{"exactly at minimum", Info{Width: 50, Height: 50, SizeBytes: 5 * 1024}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Keep(tc.info); got != tc.keep {
				t.Errorf("Keep(%+v) = %v, expected %v", tc.info, got, tc.keep)
			}
		})
	}
}

func TestThumbnail_Downscales(t *testing.T) {
	data := encodePNG(t, 800, 400)

	thumb, err := Thumbnail(data, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg thumbnail, got %q", format)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("expected 200x100 with aspect kept, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestThumbnail_SmallImageUnchanged(t *testing.T) {
	data := encodePNG(t, 64, 64)

	thumb, err := Thumbnail(data, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(thumb, data) {
		t.Error("expected image under the limit to pass through unchanged")
	}
}
