// Package imaging defines the volume and transform artifacts the registration
// runner reads inputs from and writes results into.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zjrosen/elastixctl/internal/metaimage"
)

// ErrNotHDF5 is returned when a linear transform file lacks the HDF5 signature.
var ErrNotHDF5 = errors.New("not an HDF5 transform file")

var hdf5Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// Source is an input the runner exports into its working directory.
type Source interface {
	// Name identifies the source in references and logs.
	Name() string
	// Export writes the source into dir using base as file name stem and
	// returns the written path.
	Export(dir, base string) (string, error)
}

// LinearTransform is a composite ITK transform in HDF5 form.
type LinearTransform struct {
	Path string
	Data []byte
}

// VolumeSink receives a resampled volume.
type VolumeSink interface {
	SetVolume(img *metaimage.Image) error
}

// TransformSink receives the computed transform, either as a linear composite
// transform or as a displacement field.
type TransformSink interface {
	SetLinearTransform(t *LinearTransform) error
	SetDisplacementField(img *metaimage.Image) error
	// SetReferences records which volumes the transform maps between.
	SetReferences(fixed, moving string)
}

// FileSource is a volume or transform stored on disk.
type FileSource struct {
	Path string
}

// Name returns the source path.
func (s FileSource) Name() string { return s.Path }

// Export copies the file. MetaImage sources are rewritten as a single .mha so
// detached data files travel with them.
func (s FileSource) Export(dir, base string) (string, error) {
	ext := strings.ToLower(filepath.Ext(s.Path))
	switch ext {
	case ".mha", ".mhd":
		img, err := metaimage.Read(s.Path)
		if err != nil {
			return "", fmt.Errorf("export %s: %w", s.Path, err)
		}
		dst := filepath.Join(dir, base+".mha")
		if err := metaimage.Write(dst, img); err != nil {
			return "", fmt.Errorf("export %s: %w", s.Path, err)
		}
		return dst, nil
	case ".gz":
		if inner := filepath.Ext(strings.TrimSuffix(s.Path, filepath.Ext(s.Path))); inner != "" {
			ext = strings.ToLower(inner) + ext
		}
	}
	dst := filepath.Join(dir, base+ext)
	if err := copyFile(s.Path, dst); err != nil {
		return "", fmt.Errorf("export %s: %w", s.Path, err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: user-selected input volume
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst) //nolint:gosec // G304: destination inside the run's working directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ReadLinearTransform loads an HDF5 composite transform, checking its signature.
func ReadLinearTransform(path string) (*LinearTransform, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: result file in the run's working directory
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, hdf5Signature) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotHDF5)
	}
	return &LinearTransform{Path: path, Data: data}, nil
}

// FileVolumeSink writes the resampled volume to Path as a MetaImage.
type FileVolumeSink struct {
	Path string
}

// SetVolume writes img.
func (s FileVolumeSink) SetVolume(img *metaimage.Image) error {
	return metaimage.Write(s.Path, img)
}

// FileTransformSink writes the transform next to Path: a linear transform as
// Path with an .h5 extension, a displacement field as Path with an .mha
// extension.
type FileTransformSink struct {
	Path string

	mu      sync.Mutex
	written string
	fixed   string
	moving  string
}

// SetLinearTransform writes the HDF5 bytes.
func (s *FileTransformSink) SetLinearTransform(t *LinearTransform) error {
	dst := withExt(s.Path, ".h5")
	if err := os.WriteFile(dst, t.Data, 0644); err != nil {
		return fmt.Errorf("write transform: %w", err)
	}
	s.setWritten(dst)
	return nil
}

// SetDisplacementField writes the field as a MetaImage.
func (s *FileTransformSink) SetDisplacementField(img *metaimage.Image) error {
	dst := withExt(s.Path, ".mha")
	if err := metaimage.Write(dst, img); err != nil {
		return err
	}
	s.setWritten(dst)
	return nil
}

// SetReferences records the fixed and moving references.
func (s *FileTransformSink) SetReferences(fixed, moving string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed, s.moving = fixed, moving
}

// Written returns the file the transform was written to, or "".
func (s *FileTransformSink) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// References returns the recorded fixed and moving references.
func (s *FileTransformSink) References() (fixed, moving string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fixed, s.moving
}

func (s *FileTransformSink) setWritten(path string) {
	s.mu.Lock()
	s.written = path
	s.mu.Unlock()
}

func withExt(path, ext string) string {
	if strings.EqualFold(filepath.Ext(path), ext) {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
