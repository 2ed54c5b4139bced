package registration

import (
	"github.com/zjrosen/elastixctl/internal/imaging"
	"github.com/zjrosen/elastixctl/internal/metaimage"
)

// Request describes one registration.
type Request struct {
	Fixed  imaging.Source
	Moving imaging.Source
	// FixedMask, MovingMask and InitialTransform are optional.
	FixedMask        imaging.Source
	MovingMask       imaging.Source
	InitialTransform imaging.Source

	// ParameterFiles are applied in order; the result of the last one is read back.
	ParameterFiles []string
	// PresetID labels the run in traces.
	PresetID string

	OutputVolume    imaging.VolumeSink
	OutputTransform imaging.TransformSink
	// ForceDisplacementField skips the linear transform and always asks
	// transformix for a displacement field.
	ForceDisplacementField bool
}

func (r Request) validate() error {
	if r.Fixed == nil || r.Moving == nil {
		return ErrMissingInput
	}
	if len(r.ParameterFiles) == 0 {
		return ErrNoParameterFiles
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	JobID string
	State State
	// WorkDir is the run's working directory. It only exists afterwards when
	// temporary files are kept.
	WorkDir string
	// TransformParameters is the TransformParameters.<N-1>.txt path.
	TransformParameters string

	Volume            *metaimage.Image
	LinearTransform   *imaging.LinearTransform
	DisplacementField *metaimage.Image

	movingInput string
}

// Progress is published on every state change and output line.
type Progress struct {
	JobID string
	State State
	Line  string
}
