// Package presentation converts presets and run results into the shapes the
// CLI prints.
package presentation

import (
	"github.com/zjrosen/elastixctl/internal/elastix"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/registration"
)

// PresetDTO is a preset as shown by presets:list and presets:show.
type PresetDTO struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Modality     string       `json:"modality"`
	Content      string       `json:"content"`
	Description  string       `json:"description"`
	Publications string       `json:"publications"`
	Kind         string       `json:"kind"`
	Writable     bool         `json:"writable"`
	Deletable    bool         `json:"deletable"`
	Sections     []SectionDTO `json:"sections"`
}

// SectionDTO summarizes one parameter file. Transform, Metric and
// Resolutions are empty when the content does not parse.
type SectionDTO struct {
	Name        string `json:"name"`
	Bytes       int    `json:"bytes"`
	Transform   string `json:"transform,omitempty"`
	Metric      string `json:"metric,omitempty"`
	Resolutions int    `json:"resolutions,omitempty"`
	ParseError  string `json:"parse_error,omitempty"`
}

// FromPreset converts a preset.
func FromPreset(p *domain.ParameterSet) PresetDTO {
	sections := p.Sections()
	dtos := make([]SectionDTO, len(sections))
	for i, s := range sections {
		dtos[i] = FromSection(s)
	}
	caps := p.Capabilities()
	return PresetDTO{
		ID:           p.ID(),
		Name:         p.Name(),
		Modality:     p.Modality(),
		Content:      p.Content(),
		Description:  p.Description(),
		Publications: p.Publications(),
		Kind:         p.Kind().String(),
		Writable:     caps.Writable,
		Deletable:    caps.Deletable,
		Sections:     dtos,
	}
}

// FromSection summarizes a parameter file.
func FromSection(s domain.Section) SectionDTO {
	dto := SectionDTO{Name: s.Name, Bytes: len(s.Content)}
	params, err := elastix.Parse(s.Content)
	if err != nil {
		dto.ParseError = err.Error()
		return dto
	}
	dto.Transform = params.Transform()
	dto.Metric = params.Metric()
	dto.Resolutions = params.Resolutions()
	return dto
}

// FromPresets converts a slice of presets.
func FromPresets(presets []*domain.ParameterSet) []PresetDTO {
	dtos := make([]PresetDTO, len(presets))
	for i, p := range presets {
		dtos[i] = FromPreset(p)
	}
	return dtos
}

// ResultDTO is the outcome of a registration run.
type ResultDTO struct {
	JobID               string `json:"job_id"`
	State               string `json:"state"`
	WorkDir             string `json:"work_dir,omitempty"`
	TransformParameters string `json:"transform_parameters,omitempty"`
	Volume              bool   `json:"volume"`
	LinearTransform     string `json:"linear_transform,omitempty"`
	DisplacementField   bool   `json:"displacement_field"`
	Error               string `json:"error,omitempty"`
}

// FromResult converts a run result and the error Run returned with it.
func FromResult(res *registration.Result, runErr error) ResultDTO {
	var dto ResultDTO
	if res != nil {
		dto = ResultDTO{
			JobID:               res.JobID,
			State:               res.State.String(),
			WorkDir:             res.WorkDir,
			TransformParameters: res.TransformParameters,
			Volume:              res.Volume != nil,
			DisplacementField:   res.DisplacementField != nil,
		}
		if res.LinearTransform != nil {
			dto.LinearTransform = res.LinearTransform.Path
		}
	}
	if runErr != nil {
		dto.Error = runErr.Error()
	}
	return dto
}
