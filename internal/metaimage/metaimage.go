// Package metaimage reads and writes MetaImage volumes (.mha and .mhd with a
// detached data file), the format transformix writes its results in.
package metaimage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrMalformedHeader is returned for a header that cannot be parsed.
	ErrMalformedHeader = errors.New("malformed MetaImage header")
	// ErrTruncatedData is returned when the pixel data is shorter than the header declares.
	ErrTruncatedData = errors.New("truncated MetaImage data")
)

// LocalData is the ElementDataFile value for data stored after the header.
const LocalData = "LOCAL"

// MaxDataSize caps the pixel data size a header may declare.
const MaxDataSize = 1 << 33

var elementSizes = map[string]int{
	"MET_CHAR":       1,
	"MET_UCHAR":      1,
	"MET_SHORT":      2,
	"MET_USHORT":     2,
	"MET_INT":        4,
	"MET_UINT":       4,
	"MET_LONG":       4,
	"MET_ULONG":      4,
	"MET_LONG_LONG":  8,
	"MET_ULONG_LONG": 8,
	"MET_FLOAT":      4,
	"MET_DOUBLE":     8,
}

// ElementSize returns the byte size of one component of elementType, or 0.
func ElementSize(elementType string) int {
	return elementSizes[elementType]
}

// Image is a MetaImage volume held in memory.
type Image struct {
	DimSize     []int
	ElementType string
	Channels    int
	Spacing     []float64
	// Origin is the physical position of the first voxel, in LPS.
	Origin []float64
	// Direction holds the TransformMatrix values as written in the header:
	// row i is the direction of image axis i.
	Direction []float64
	MSB       bool
	Data      []byte
}

// NDims returns the number of dimensions.
func (img *Image) NDims() int { return len(img.DimSize) }

// Voxels returns the number of voxels.
func (img *Image) Voxels() int {
	if len(img.DimSize) == 0 {
		return 0
	}
	n := 1
	for _, d := range img.DimSize {
		n *= d
	}
	return n
}

// DataSize returns the byte length the header declares for the pixel data.
func (img *Image) DataSize() int {
	ch := img.Channels
	if ch < 1 {
		ch = 1
	}
	return img.Voxels() * ch * ElementSize(img.ElementType)
}

// IJKToRAS returns the 4x4 homogeneous matrix mapping voxel indices to RAS
// physical coordinates. Dimensions beyond three are ignored; missing ones
// default to unit spacing, zero origin and identity direction.
func (img *Image) IJKToRAS() *mat.Dense {
	n := img.NDims()
	dir := mat.NewDense(3, 3, nil)
	for axis := 0; axis < 3; axis++ {
		for row := 0; row < 3; row++ {
			v := 0.0
			if axis == row {
				v = 1
			}
			if axis < n && row < n && len(img.Direction) == n*n {
				v = img.Direction[axis*n+row]
			}
			dir.Set(row, axis, v)
		}
	}

	spacing := mat.NewDiagDense(3, []float64{at(img.Spacing, 0, 1), at(img.Spacing, 1, 1), at(img.Spacing, 2, 1)})
	var scaled mat.Dense
	scaled.Mul(dir, spacing)

	lpsToRAS := mat.NewDiagDense(3, []float64{-1, -1, 1})
	var ras mat.Dense
	ras.Mul(lpsToRAS, &scaled)

	origin := mat.NewVecDense(3, []float64{at(img.Origin, 0, 0), at(img.Origin, 1, 0), at(img.Origin, 2, 0)})
	var rasOrigin mat.VecDense
	rasOrigin.MulVec(lpsToRAS, origin)

	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, ras.At(r, c))
		}
		m.Set(r, 3, rasOrigin.AtVec(r))
	}
	m.Set(3, 3, 1)
	return m
}

func at(v []float64, i int, def float64) float64 {
	if i < len(v) {
		return v[i]
	}
	return def
}

// header is the parsed key = value section of a MetaImage file, in file order.
type header struct {
	keys   []string
	values map[string]string
}

func parseHeaderLine(h *header, line string) error {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("%w: line %q", ErrMalformedHeader, line)
	}
	key = strings.TrimSpace(key)
	if h.values == nil {
		h.values = map[string]string{}
	}
	if _, seen := h.values[key]; !seen {
		h.keys = append(h.keys, key)
	}
	h.values[key] = strings.TrimSpace(value)
	return nil
}

func (h *header) ints(key string) ([]int, error) {
	fields := strings.Fields(h.values[key])
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedHeader, key, err)
		}
		out[i] = v
	}
	return out, nil
}

func (h *header) floats(key string) ([]float64, error) {
	fields := strings.Fields(h.values[key])
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedHeader, key, err)
		}
		out[i] = v
	}
	return out, nil
}

func (h *header) bool(key string) bool {
	return strings.EqualFold(h.values[key], "True")
}

// image converts the header into an Image without data.
func (h *header) image() (*Image, error) {
	dims, err := h.ints("DimSize")
	if err != nil {
		return nil, err
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: missing DimSize", ErrMalformedHeader)
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("%w: DimSize %q", ErrMalformedHeader, h.values["DimSize"])
		}
	}
	if nd, ok := h.values["NDims"]; ok {
		n, err := strconv.Atoi(nd)
		if err != nil || n != len(dims) {
			return nil, fmt.Errorf("%w: NDims %s does not match DimSize", ErrMalformedHeader, nd)
		}
	}
	img := &Image{
		DimSize:     dims,
		ElementType: h.values["ElementType"],
		Channels:    1,
		MSB:         h.bool("BinaryDataByteOrderMSB") || h.bool("ElementByteOrderMSB"),
	}
	if ElementSize(img.ElementType) == 0 {
		return nil, fmt.Errorf("%w: unsupported ElementType %q", ErrMalformedHeader, img.ElementType)
	}
	if ch, ok := h.values["ElementNumberOfChannels"]; ok {
		if img.Channels, err = strconv.Atoi(ch); err != nil || img.Channels < 1 {
			return nil, fmt.Errorf("%w: ElementNumberOfChannels %q", ErrMalformedHeader, ch)
		}
	}
	if err := checkDataSize(append([]int{img.Channels}, dims...), ElementSize(img.ElementType)); err != nil {
		return nil, err
	}
	if img.Spacing, err = h.floats("ElementSpacing"); err != nil {
		return nil, err
	}
	origin := "Offset"
	if _, ok := h.values[origin]; !ok {
		origin = "Origin"
	}
	if img.Origin, err = h.floats(origin); err != nil {
		return nil, err
	}
	direction := "TransformMatrix"
	for _, alias := range []string{"TransformMatrix", "Rotation", "Orientation"} {
		if _, ok := h.values[alias]; ok {
			direction = alias
			break
		}
	}
	if img.Direction, err = h.floats(direction); err != nil {
		return nil, err
	}
	if len(img.Direction) != 0 && len(img.Direction) != len(dims)*len(dims) {
		return nil, fmt.Errorf("%w: %s has %d values for %d dimensions",
			ErrMalformedHeader, direction, len(img.Direction), len(dims))
	}
	return img, nil
}

// checkDataSize fails when the product of factors and elemSize exceeds
// MaxDataSize. All factors must be positive.
func checkDataSize(factors []int, elemSize int) error {
	size := int64(elemSize)
	for _, d := range factors {
		if int64(d) > MaxDataSize/size {
			return fmt.Errorf("%w: header declares more than %d bytes of data", ErrMalformedHeader, int64(MaxDataSize))
		}
		size *= int64(d)
	}
	return nil
}
