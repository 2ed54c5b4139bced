package registration

import (
	"path/filepath"

	"github.com/zjrosen/elastixctl/internal/imaging"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/metaimage"
)

// Result file names written by transformix.
const (
	ResultVolumeFile      = "result.mhd"
	DisplacementFieldFile = "deformationField.mhd"
)

// Importer loads tool results from a run's working directory.
type Importer struct{}

// ImportVolume loads the resampled volume from dir.
func (Importer) ImportVolume(dir string) (*metaimage.Image, error) {
	return importImage(filepath.Join(dir, ResultVolumeFile))
}

// ImportDisplacementField loads the displacement field from dir.
func (Importer) ImportDisplacementField(dir string) (*metaimage.Image, error) {
	return importImage(filepath.Join(dir, DisplacementFieldFile))
}

// ImportLinearTransform loads the composite HDF5 transform at path.
func (Importer) ImportLinearTransform(path string) (*imaging.LinearTransform, error) {
	t, err := imaging.ReadLinearTransform(path)
	if err != nil {
		return nil, &OutputLoadError{Path: path, Err: err}
	}
	log.Debug(log.CatImport, "Loaded linear transform", "path", path, "bytes", len(t.Data))
	return t, nil
}

func importImage(path string) (*metaimage.Image, error) {
	img, err := metaimage.Read(path)
	if err != nil {
		return nil, &OutputLoadError{Path: path, Err: err}
	}
	log.Debug(log.CatImport, "Loaded image", "path", path, "dims", img.DimSize, "type", img.ElementType)
	return img, nil
}
