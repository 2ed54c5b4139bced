package testutil

import "github.com/zjrosen/elastixctl/internal/presets/domain"

// presetData holds everything a built preset is created from.
type presetData struct {
	meta     domain.Metadata
	kind     domain.Kind
	sections []domain.Section
}

// PresetOption configures a preset built by PresetBuilder.
type PresetOption func(*presetData)

// Modality sets the modality.
func Modality(v string) PresetOption {
	return func(p *presetData) { p.meta.Modality = v }
}

// Content sets the content.
func Content(v string) PresetOption {
	return func(p *presetData) { p.meta.Content = v }
}

// Description sets the description.
func Description(v string) PresetOption {
	return func(p *presetData) { p.meta.Description = v }
}

// Publications sets the publications.
func Publications(v string) PresetOption {
	return func(p *presetData) { p.meta.Publications = v }
}

// Kind sets the store kind. Defaults to in-scene.
func Kind(k domain.Kind) PresetOption {
	return func(p *presetData) { p.kind = k }
}

// Section appends a parameter section.
func Section(name, content string) PresetOption {
	return func(p *presetData) {
		p.sections = append(p.sections, domain.Section{Name: name, Content: content})
	}
}

// Sections appends n sections named step0..step<n-1>, each a valid
// parameter file for a different transform.
func Sections(n int) PresetOption {
	transforms := []string{"EulerTransform", "AffineTransform", "BSplineTransform"}
	return func(p *presetData) {
		for i := 0; i < n; i++ {
			p.sections = append(p.sections, domain.Section{
				Name:    stepName(i),
				Content: `(Transform "` + transforms[i%len(transforms)] + `")` + "\n",
			})
		}
	}
}

func stepName(i int) string {
	return "step" + string(rune('0'+i%10))
}
