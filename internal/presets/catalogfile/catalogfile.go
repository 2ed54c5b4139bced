// Package catalogfile reads and writes preset catalog documents.
//
// Two formats are understood. The native format is YAML:
//
//	presets:
//	  - id: default0
//	    modality: MRI
//	    content: brain
//	    parameter_files: [Parameters_Rigid.txt, Parameters_BSpline.txt]
//
// The legacy format is the XML parameter set database:
//
//	<ElastixParameterSets>
//	  <ParameterSet id=".." modality=".." content=".." description=".." publications="..">
//	    <ParameterFiles><File Name=".."/></ParameterFiles>
//	  </ParameterSet>
//	</ElastixParameterSets>
//
// Parameter-file names resolve relative to the catalog document's directory.
package catalogfile

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	stdpath "path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// MetadataFileName is the file written next to the parameter files of a saved user preset.
const MetadataFileName = "preset.yaml"

// ErrUnknownFormat is returned for a catalog file whose extension is neither YAML nor XML.
var ErrUnknownFormat = errors.New("unknown catalog format")

// Document is the root of a YAML catalog.
type Document struct {
	Presets []Entry `yaml:"presets"`
}

// Entry is one preset in a catalog, before its parameter files are read.
type Entry struct {
	ID             string   `yaml:"id"`
	Modality       string   `yaml:"modality"`
	Content        string   `yaml:"content"`
	Description    string   `yaml:"description,omitempty"`
	Publications   string   `yaml:"publications,omitempty"`
	ParameterFiles []string `yaml:"parameter_files"`
}

// Metadata returns the descriptive fields of the entry.
func (e Entry) Metadata() domain.Metadata {
	return domain.Metadata{
		ID:           e.ID,
		Modality:     e.Modality,
		Content:      e.Content,
		Description:  e.Description,
		Publications: e.Publications,
	}
}

// EntryFor builds the catalog entry describing p, listing the file names its
// sections materialize to.
func EntryFor(p *domain.ParameterSet) Entry {
	files := make([]string, 0, p.Len())
	for _, name := range p.SectionNames() {
		files = append(files, domain.SectionFileName(name))
	}
	m := p.Metadata()
	return Entry{
		ID:             m.ID,
		Modality:       m.Modality,
		Content:        m.Content,
		Description:    m.Description,
		Publications:   m.Publications,
		ParameterFiles: files,
	}
}

// IsCatalogFile reports whether name has a catalog extension.
func IsCatalogFile(name string) bool {
	switch strings.ToLower(stdpath.Ext(name)) {
	case ".yaml", ".yml", ".xml":
		return true
	}
	return false
}

// Parse decodes a catalog document, choosing the format by the extension of name.
func Parse(name string, data []byte) ([]Entry, error) {
	switch strings.ToLower(stdpath.Ext(name)) {
	case ".yaml", ".yml":
		var doc Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return doc.Presets, nil
	case ".xml":
		return parseXML(name, data)
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownFormat)
	}
}

// Encode writes a YAML catalog holding the given entries.
func Encode(entries ...Entry) ([]byte, error) {
	data, err := yaml.Marshal(Document{Presets: entries})
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return data, nil
}

// Resolve returns the fs path of a parameter file referenced by the catalog at catalogPath.
// Use path (not filepath) since fs.FS always uses forward slashes.
func Resolve(catalogPath, file string) string {
	return stdpath.Join(stdpath.Dir(catalogPath), file)
}

type xmlDatabase struct {
	Sets []xmlParameterSet `xml:"ParameterSet"`
}

type xmlParameterSet struct {
	ID           string    `xml:"id,attr"`
	Modality     string    `xml:"modality,attr"`
	Content      string    `xml:"content,attr"`
	Description  string    `xml:"description,attr"`
	Publications string    `xml:"publications,attr"`
	Files        []xmlFile `xml:"ParameterFiles>File"`
}

type xmlFile struct {
	Name string `xml:"Name,attr"`
}

func parseXML(name string, data []byte) ([]Entry, error) {
	var db xmlDatabase
	if err := xml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	entries := make([]Entry, 0, len(db.Sets))
	for _, s := range db.Sets {
		files := make([]string, 0, len(s.Files))
		for _, f := range s.Files {
			files = append(files, f.Name)
		}
		entries = append(entries, Entry{
			ID:             s.ID,
			Modality:       s.Modality,
			Content:        s.Content,
			Description:    s.Description,
			Publications:   s.Publications,
			ParameterFiles: files,
		})
	}
	return entries, nil
}

// Load reads the catalog at catalogPath in fsys and builds one preset of the
// given kind per entry. An unreadable or unparseable catalog is an error. An
// entry whose parameter file cannot be read is skipped and reported to warn.
func Load(fsys fs.FS, catalogPath string, kind domain.Kind, warn func(msg string)) ([]*domain.ParameterSet, error) {
	data, err := fs.ReadFile(fsys, catalogPath)
	if err != nil {
		return nil, fmt.Errorf("open parameter set database %s: %w", catalogPath, err)
	}
	entries, err := Parse(catalogPath, data)
	if err != nil {
		return nil, err
	}

	presets := make([]*domain.ParameterSet, 0, len(entries))
	for _, e := range entries {
		p, err := build(fsys, catalogPath, e, kind)
		if err != nil {
			if warn != nil {
				warn(fmt.Sprintf("Cannot load preset. Loading failed with error: %v", err))
			}
			continue
		}
		presets = append(presets, p)
	}
	return presets, nil
}

func build(fsys fs.FS, catalogPath string, e Entry, kind domain.Kind) (*domain.ParameterSet, error) {
	sections := make([]domain.Section, 0, len(e.ParameterFiles))
	for _, f := range e.ParameterFiles {
		p := Resolve(catalogPath, f)
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", e.ID, err)
		}
		sections = append(sections, domain.Section{Name: stdpath.Base(p), Content: string(content)})
	}
	return domain.New(e.Metadata(), kind, sections...), nil
}
