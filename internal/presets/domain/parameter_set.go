package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Section is one elastix parameter file: a name and its text content.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Metadata holds the descriptive fields of a preset.
type Metadata struct {
	ID           string
	Modality     string
	Content      string
	Description  string
	Publications string
}

// ChangeFunc is invoked after every successful mutation of a writable preset.
// A returned error is reported to the caller of the mutating method.
type ChangeFunc func(p *ParameterSet) error

// ParameterSet is a registration preset.
type ParameterSet struct {
	meta     Metadata
	sections []Section
	kind     Kind
	caps     Capabilities
	onChange ChangeFunc
}

// New creates a preset of the given kind. The sections slice is copied.
func New(meta Metadata, kind Kind, sections ...Section) *ParameterSet {
	return &ParameterSet{
		meta:     meta,
		sections: slices.Clone(sections),
		kind:     kind,
		caps:     kind.Capabilities(),
	}
}

// ID returns the preset identifier.
func (p *ParameterSet) ID() string { return p.meta.ID }

// Modality returns the imaging modality the preset targets.
func (p *ParameterSet) Modality() string { return p.meta.Modality }

// Content returns the anatomical content the preset targets.
func (p *ParameterSet) Content() string { return p.meta.Content }

// Description returns the free-text description.
func (p *ParameterSet) Description() string { return p.meta.Description }

// Publications returns the free-text publication references.
func (p *ParameterSet) Publications() string { return p.meta.Publications }

// Metadata returns a copy of the descriptive fields.
func (p *ParameterSet) Metadata() Metadata { return p.meta }

// Name returns the display name "{modality} ({content})".
func (p *ParameterSet) Name() string {
	return fmt.Sprintf("%s (%s)", p.meta.Modality, p.meta.Content)
}

// Kind returns the store kind the preset was created for.
func (p *ParameterSet) Kind() Kind { return p.kind }

// Capabilities returns what callers may do with the preset.
func (p *ParameterSet) Capabilities() Capabilities { return p.caps }

// Writable reports whether the preset can be edited.
func (p *ParameterSet) Writable() bool { return p.caps.Writable }

// Deletable reports whether the preset can be deleted.
func (p *ParameterSet) Deletable() bool { return p.caps.Deletable }

// OnChange installs the mutation hook. Only writable presets ever call it.
func (p *ParameterSet) OnChange(fn ChangeFunc) { p.onChange = fn }

// Sections returns a copy of the ordered sections. Never nil.
func (p *ParameterSet) Sections() []Section {
	out := make([]Section, len(p.sections))
	copy(out, p.sections)
	return out
}

// Len returns the number of sections.
func (p *ParameterSet) Len() int { return len(p.sections) }

// SectionNames returns the section names in order.
func (p *ParameterSet) SectionNames() []string {
	names := make([]string, len(p.sections))
	for i, s := range p.sections {
		names[i] = s.Name
	}
	return names
}

// HasSection reports whether a section with this name exists.
func (p *ParameterSet) HasSection(name string) bool {
	return p.SectionIndex(name) >= 0
}

// SectionIndex returns the index of the named section, or -1.
func (p *ParameterSet) SectionIndex(name string) int {
	return slices.IndexFunc(p.sections, func(s Section) bool { return s.Name == name })
}

// SectionContent returns the content of the named section, or "".
func (p *ParameterSet) SectionContent(name string) string {
	if i := p.SectionIndex(name); i >= 0 {
		return p.sections[i].Content
	}
	return ""
}

// SectionAt returns the section at index i.
func (p *ParameterSet) SectionAt(i int) (Section, error) {
	if i < 0 || i >= len(p.sections) {
		return Section{}, fmt.Errorf("section %d of %d: %w", i, len(p.sections), ErrIndexOutOfRange)
	}
	return p.sections[i], nil
}

// SetID replaces the identifier.
func (p *ParameterSet) SetID(id string) error {
	return p.mutate(func() { p.meta.ID = id })
}

// SetModality replaces the modality.
func (p *ParameterSet) SetModality(v string) error {
	return p.mutate(func() { p.meta.Modality = v })
}

// SetContent replaces the content.
func (p *ParameterSet) SetContent(v string) error {
	return p.mutate(func() { p.meta.Content = v })
}

// SetDescription replaces the description.
func (p *ParameterSet) SetDescription(v string) error {
	return p.mutate(func() { p.meta.Description = v })
}

// SetPublications replaces the publications.
func (p *ParameterSet) SetPublications(v string) error {
	return p.mutate(func() { p.meta.Publications = v })
}

// SetSections replaces all sections with a copy of sections.
func (p *ParameterSet) SetSections(sections []Section) error {
	return p.mutate(func() { p.sections = slices.Clone(sections) })
}

// AddSection appends a section. It does not check for duplicate names;
// callers check HasSection first or use AddUniqueSection.
func (p *ParameterSet) AddSection(name, content string) error {
	return p.mutate(func() { p.sections = append(p.sections, Section{Name: name, Content: content}) })
}

// AddUniqueSection appends a section, failing with ErrDuplicateSection if the name is taken.
func (p *ParameterSet) AddUniqueSection(name, content string) error {
	if p.HasSection(name) {
		return fmt.Errorf("add %q: %w", name, ErrDuplicateSection)
	}
	return p.AddSection(name, content)
}

// SetSectionContent replaces the content of the section at index i.
func (p *ParameterSet) SetSectionContent(i int, content string) error {
	if !p.caps.Writable {
		return ErrReadOnly
	}
	if i < 0 || i >= len(p.sections) {
		return fmt.Errorf("set content of section %d: %w", i, ErrIndexOutOfRange)
	}
	return p.mutate(func() { p.sections[i].Content = content })
}

// RemoveSection deletes the section at index i.
func (p *ParameterSet) RemoveSection(i int) error {
	if !p.caps.Writable {
		return ErrReadOnly
	}
	if i < 0 || i >= len(p.sections) {
		return fmt.Errorf("remove section %d: %w", i, ErrIndexOutOfRange)
	}
	return p.mutate(func() { p.sections = slices.Delete(p.sections, i, i+1) })
}

// MoveSection moves the section at from to index to.
// It is a no-op when either index is outside [0, len).
func (p *ParameterSet) MoveSection(from, to int) error {
	if !p.caps.Writable {
		return ErrReadOnly
	}
	n := len(p.sections)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return nil
	}
	return p.mutate(func() {
		s := p.sections[from]
		p.sections = slices.Delete(p.sections, from, from+1)
		p.sections = slices.Insert(p.sections, to, s)
	})
}

func (p *ParameterSet) mutate(apply func()) error {
	if !p.caps.Writable {
		return ErrReadOnly
	}
	apply()
	if p.onChange != nil {
		return p.onChange(p)
	}
	return nil
}

// jsonPreset is the serialized form stored in scene text nodes.
type jsonPreset struct {
	ID             string    `json:"id"`
	Modality       string    `json:"modality"`
	Content        string    `json:"content"`
	Description    string    `json:"description"`
	Publications   string    `json:"publications"`
	ParameterFiles []Section `json:"parameter_files"`
}

// MarshalJSON encodes the preset with keys id, modality, content,
// description, publications and parameter_files.
func (p *ParameterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonPreset{
		ID:             p.meta.ID,
		Modality:       p.meta.Modality,
		Content:        p.meta.Content,
		Description:    p.meta.Description,
		Publications:   p.meta.Publications,
		ParameterFiles: p.Sections(),
	})
}

// UnmarshalJSON decodes the preset JSON form. Kind and change hook are left untouched.
func (p *ParameterSet) UnmarshalJSON(data []byte) error {
	return p.Decode(data)
}

// Decode replaces the preset's fields with the JSON document in data without
// invoking the change hook. Empty input yields an empty preset.
func (p *ParameterSet) Decode(data []byte) error {
	var jp jsonPreset
	if len(data) > 0 {
		if err := json.Unmarshal(data, &jp); err != nil {
			return fmt.Errorf("decode preset: %w", err)
		}
	}
	p.meta = Metadata{
		ID:           jp.ID,
		Modality:     jp.Modality,
		Content:      jp.Content,
		Description:  jp.Description,
		Publications: jp.Publications,
	}
	p.sections = slices.Clone(jp.ParameterFiles)
	return nil
}

// Encode returns the indented JSON text stored in a scene node.
func (p *ParameterSet) Encode() (string, error) {
	data, err := json.MarshalIndent(jsonPreset{
		ID:             p.meta.ID,
		Modality:       p.meta.Modality,
		Content:        p.meta.Content,
		Description:    p.meta.Description,
		Publications:   p.meta.Publications,
		ParameterFiles: p.Sections(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode preset %s: %w", p.meta.ID, err)
	}
	return string(data), nil
}
