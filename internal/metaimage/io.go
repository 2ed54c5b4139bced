package metaimage

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Read loads the MetaImage at path. For .mhd files the data file named by
// ElementDataFile is resolved relative to the header's directory.
func Read(path string) (*Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: result files in the run's working directory
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var h header
	for {
		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil, fmt.Errorf("%w: %s: no ElementDataFile", ErrMalformedHeader, path)
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := parseHeaderLine(&h, line); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, ok := h.values["ElementDataFile"]; ok {
			break
		}
	}

	img, err := h.image()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var data io.Reader = r
	if file := h.values["ElementDataFile"]; file != LocalData {
		dataPath := file
		if !filepath.IsAbs(dataPath) {
			dataPath = filepath.Join(filepath.Dir(path), dataPath)
		}
		df, err := os.Open(dataPath) //nolint:gosec // G304: data file referenced by the header
		if err != nil {
			return nil, fmt.Errorf("open data file: %w", err)
		}
		defer func() { _ = df.Close() }()
		data = df
	}
	if h.bool("CompressedData") {
		zr, err := zlib.NewReader(data)
		if err != nil {
			return nil, fmt.Errorf("%s: compressed data: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		data = zr
	}

	size := img.DataSize()
	buf, err := io.ReadAll(io.LimitReader(data, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrTruncatedData, err)
	}
	if len(buf) < size {
		return nil, fmt.Errorf("%s: %w: %d of %d bytes", path, ErrTruncatedData, len(buf), size)
	}
	img.Data = buf
	return img, nil
}

// Write stores img at path. A .mhd path gets a sibling .raw data file; any
// other extension stores the data inline.
func Write(path string, img *Image) error {
	if len(img.Data) != img.DataSize() {
		return fmt.Errorf("write %s: data has %d bytes, header declares %d: %w",
			path, len(img.Data), img.DataSize(), ErrTruncatedData)
	}

	dataFile := LocalData
	if strings.EqualFold(filepath.Ext(path), ".mhd") {
		dataFile = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".raw"
		if err := os.WriteFile(filepath.Join(filepath.Dir(path), dataFile), img.Data, 0644); err != nil {
			return fmt.Errorf("write data file: %w", err)
		}
	}

	var buf bytes.Buffer
	n := img.NDims()
	writeKV(&buf, "ObjectType", "Image")
	writeKV(&buf, "NDims", strconv.Itoa(n))
	writeKV(&buf, "BinaryData", "True")
	writeKV(&buf, "BinaryDataByteOrderMSB", boolString(img.MSB))
	writeKV(&buf, "CompressedData", "False")
	writeKV(&buf, "TransformMatrix", joinFloats(orIdentity(img.Direction, n)))
	writeKV(&buf, "Offset", joinFloats(orFill(img.Origin, n, 0)))
	writeKV(&buf, "ElementSpacing", joinFloats(orFill(img.Spacing, n, 1)))
	writeKV(&buf, "DimSize", joinInts(img.DimSize))
	if img.Channels > 1 {
		writeKV(&buf, "ElementNumberOfChannels", strconv.Itoa(img.Channels))
	}
	writeKV(&buf, "ElementType", img.ElementType)
	writeKV(&buf, "ElementDataFile", dataFile)
	if dataFile == LocalData {
		buf.Write(img.Data)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeKV(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(" = ")
	buf.WriteString(value)
	buf.WriteByte('\n')
}

func boolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func orIdentity(v []float64, n int) []float64 {
	if len(v) == n*n {
		return v
	}
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1
	}
	return out
}

func orFill(v []float64, n int, fill float64) []float64 {
	if len(v) == n {
		return v
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = fill
	}
	return out
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, d := range v {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " ")
}
