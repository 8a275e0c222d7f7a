package stagefile

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Minimal NPY reader for the detector's embeddings artifact: NPY
// format version 1.0/2.0, little-endian float32 or float64, C-order,
// 2-D shape. That is the only layout the detection stage writes.

var npyMagic = []byte("\x93NUMPY")

var (
	descrRe = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	orderRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRe = regexp.MustCompile(`'shape':\s*\((\s*\d+\s*,\s*\d+\s*,?\s*)\)`)
)

// ReadEmbeddingsNPY reads a 2-D float array from an .npy file.
func ReadEmbeddingsNPY(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading npy: %w", err)
	}

	header, body, err := splitNPY(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	descr, rows, cols, err := parseNPYHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	switch descr {
	case "<f4":
		return decodeFloat32(body, rows, cols)
	case "<f8":
		return decodeFloat64(body, rows, cols)
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %q (want <f4 or <f8)", path, descr)
	}
}

// splitNPY validates the magic and separates header text from body.
func splitNPY(data []byte) (string, []byte, error) {
	if len(data) < 10 || string(data[:6]) != string(npyMagic) {
		return "", nil, fmt.Errorf("not an npy file")
	}

	major := data[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2:
		if len(data) < 12 {
			return "", nil, fmt.Errorf("truncated npy header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return "", nil, fmt.Errorf("unsupported npy version %d", major)
	}

	if len(data) < offset+headerLen {
		return "", nil, fmt.Errorf("truncated npy header")
	}
	return string(data[offset : offset+headerLen]), data[offset+headerLen:], nil
}

func parseNPYHeader(header string) (descr string, rows, cols int, err error) {
	m := descrRe.FindStringSubmatch(header)
	if m == nil {
		return "", 0, 0, fmt.Errorf("npy header missing descr")
	}
	descr = m[1]

	if m := orderRe.FindStringSubmatch(header); m == nil || m[1] != "False" {
		return "", 0, 0, fmt.Errorf("npy fortran order not supported")
	}

	sm := shapeRe.FindStringSubmatch(header)
	if sm == nil {
		return "", 0, 0, fmt.Errorf("npy shape is not 2-D")
	}
	dims := strings.Split(strings.TrimSuffix(strings.TrimSpace(sm[1]), ","), ",")
	if len(dims) != 2 {
		return "", 0, 0, fmt.Errorf("npy shape is not 2-D")
	}
	rows, err = strconv.Atoi(strings.TrimSpace(dims[0]))
	if err != nil {
		return "", 0, 0, fmt.Errorf("npy shape: %w", err)
	}
	cols, err = strconv.Atoi(strings.TrimSpace(dims[1]))
	if err != nil {
		return "", 0, 0, fmt.Errorf("npy shape: %w", err)
	}
	return descr, rows, cols, nil
}

func decodeFloat32(body []byte, rows, cols int) ([][]float32, error) {
	want := rows * cols * 4
	if len(body) < want {
		return nil, fmt.Errorf("npy body too short: have %d bytes, want %d", len(body), want)
	}
	out := make([][]float32, rows)
	for r := range rows {
		row := make([]float32, cols)
		base := r * cols * 4
		for c := range cols {
			bits := binary.LittleEndian.Uint32(body[base+c*4:])
			row[c] = math.Float32frombits(bits)
		}
		out[r] = row
	}
	return out, nil
}

func decodeFloat64(body []byte, rows, cols int) ([][]float32, error) {
	want := rows * cols * 8
	if len(body) < want {
		return nil, fmt.Errorf("npy body too short: have %d bytes, want %d", len(body), want)
	}
	out := make([][]float32, rows)
	for r := range rows {
		row := make([]float32, cols)
		base := r * cols * 8
		for c := range cols {
			bits := binary.LittleEndian.Uint64(body[base+c*8:])
			row[c] = float32(math.Float64frombits(bits))
		}
		out[r] = row
	}
	return out, nil
}
