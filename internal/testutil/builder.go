// Package testutil provides builders and fakes shared by package tests.
package testutil

import (
	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// PresetBuilder accumulates presets for a test.
type PresetBuilder struct {
	presets []*domain.ParameterSet
}

// NewPresetBuilder creates an empty builder.
func NewPresetBuilder() *PresetBuilder {
	return &PresetBuilder{}
}

// WithPreset adds a preset with the given id.
func (b *PresetBuilder) WithPreset(id string, opts ...PresetOption) *PresetBuilder {
	b.presets = append(b.presets, NewPreset(id, opts...))
	return b
}

// WithStandardPresets adds a small mixed catalog: two built-in presets and
// an editable in-scene brain preset.
func (b *PresetBuilder) WithStandardPresets() *PresetBuilder {
	return b.
		WithPreset("default0", Modality("generic"), Content("all"), Kind(domain.KindBuiltIn),
			Section("Parameters_Rigid.txt", `(Transform "EulerTransform")`),
			Section("Parameters_BSpline.txt", `(Transform "BSplineTransform")`)).
		WithPreset("mri-brain", Modality("MRI"), Content("brain"), Kind(domain.KindBuiltIn),
			Section("Parameters_Rigid.txt", `(Transform "EulerTransform")`)).
		WithPreset("mri-brain-#abcdefgh", Modality("MRI"), Content("brain 2"),
			Section("Parameters_Rigid.txt", `(Transform "EulerTransform")`))
}

// Build returns the presets in insertion order.
func (b *PresetBuilder) Build() []*domain.ParameterSet {
	out := make([]*domain.ParameterSet, len(b.presets))
	copy(out, b.presets)
	return out
}

// NewPreset builds a single preset. The default kind is in-scene.
func NewPreset(id string, opts ...PresetOption) *domain.ParameterSet {
	data := presetData{
		meta: domain.Metadata{ID: id, Modality: "generic", Content: id},
		kind: domain.KindInScene,
	}
	for _, opt := range opts {
		opt(&data)
	}
	return domain.New(data.meta, data.kind, data.sections...)
}
