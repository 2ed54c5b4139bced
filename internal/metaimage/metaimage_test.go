package metaimage

import (
	"bytes"
	"compress/zlib"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testImage() *Image {
	return &Image{
		DimSize:     []int{2, 3, 4},
		ElementType: "MET_SHORT",
		Channels:    1,
		Spacing:     []float64{0.5, 0.5, 2},
		Origin:      []float64{10, 20, 30},
		Direction:   []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Data:        bytes.Repeat([]byte{1, 0}, 24),
	}
}

func TestWriteRead_LocalData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.mha")
	require.NoError(t, Write(path, testImage()))

	img, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4}, img.DimSize)
	require.Equal(t, "MET_SHORT", img.ElementType)
	require.Equal(t, []float64{0.5, 0.5, 2}, img.Spacing)
	require.Equal(t, []float64{10, 20, 30}, img.Origin)
	require.Equal(t, testImage().Data, img.Data)
}

func TestWriteRead_DetachedData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.mhd")
	require.NoError(t, Write(path, testImage()))
	require.FileExists(t, filepath.Join(dir, "result.raw"))

	header, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(header), "ElementDataFile = result.raw\n")

	img, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, 48, len(img.Data))
}

func TestRead_CompressedData(t *testing.T) {
	dir := t.TempDir()
	var raw bytes.Buffer
	zw := zlib.NewWriter(&raw)
	_, err := zw.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.zraw"), raw.Bytes(), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.mhd"), []byte(
		"ObjectType = Image\nNDims = 2\nCompressedData = True\nDimSize = 2 2\nElementType = MET_UCHAR\nElementDataFile = v.zraw\n"), 0644))

	img, err := Read(filepath.Join(dir, "v.mhd"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, img.Data)
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"no data file key", write("a.mhd", "NDims = 3\nDimSize = 1 1 1\n"), ErrMalformedHeader},
		{"bad line", write("b.mhd", "garbage\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"ndims mismatch", write("c.mhd", "NDims = 2\nDimSize = 1 1 1\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"unknown type", write("d.mhd", "DimSize = 1\nElementType = MET_WHATEVER\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"negative dim", write("f.mha", "DimSize = -2 3\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"zero dim", write("g.mha", "DimSize = 0 3\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"huge dims", write("h.mha", "DimSize = 4294967296 4294967296 4294967296\nElementType = MET_DOUBLE\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"huge channels", write("j.mha", "DimSize = 2 2\nElementNumberOfChannels = 2305843009213693952\nElementType = MET_DOUBLE\nElementDataFile = LOCAL\n"), ErrMalformedHeader},
		{"short detached data", write("i.mhd", "DimSize = 1024 1024\nElementType = MET_FLOAT\nElementDataFile = i.raw\n"), ErrTruncatedData},
		{"truncated", write("e.mha", "DimSize = 4\nElementType = MET_UCHAR\nElementDataFile = LOCAL\nab"), ErrTruncatedData},
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "i.raw"), []byte{1, 2, 3}, 0644))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.path)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Read(filepath.Join(dir, "missing.mhd"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWrite_RejectsSizeMismatch(t *testing.T) {
	img := testImage()
	img.Data = img.Data[:10]
	require.ErrorIs(t, Write(filepath.Join(t.TempDir(), "x.mha"), img), ErrTruncatedData)
}

func TestIJKToRAS(t *testing.T) {
	img := testImage()
	want := mat.NewDense(4, 4, []float64{
		-0.5, 0, 0, -10,
		0, -0.5, 0, -20,
		0, 0, 2, 30,
		0, 0, 0, 1,
	})
	require.True(t, mat.Equal(want, img.IJKToRAS()))
}

func TestIJKToRAS_RotatedDirection(t *testing.T) {
	img := testImage()
	img.Spacing = []float64{1, 1, 1}
	img.Origin = []float64{0, 0, 0}
	// axis 0 points along +y, axis 1 along -x
	img.Direction = []float64{0, 1, 0, -1, 0, 0, 0, 0, 1}

	m := img.IJKToRAS()
	var p mat.VecDense
	p.MulVec(m, mat.NewVecDense(4, []float64{1, 0, 0, 1}))
	require.InDeltaSlice(t, []float64{0, -1, 0, 1}, p.RawVector().Data, 1e-12)
}

func TestIJKToRAS_TwoDimensional(t *testing.T) {
	img := &Image{DimSize: []int{4, 4}, ElementType: "MET_UCHAR", Spacing: []float64{2, 3}}
	m := img.IJKToRAS()
	require.Equal(t, -2.0, m.At(0, 0))
	require.Equal(t, -3.0, m.At(1, 1))
	require.Equal(t, 1.0, m.At(2, 2))
}
