package domain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zjrosen/elastixctl/internal/paths"
)

// ErrInvalidSectionName is returned when a section name cannot be used as a file name.
var ErrInvalidSectionName = errors.New("invalid parameter section name")

// SectionFileName returns the file name a section is written to: its name with
// ".txt" appended when missing.
func SectionFileName(name string) string {
	if strings.HasSuffix(name, ".txt") {
		return name
	}
	return name + ".txt"
}

// Materialize writes each section to dir/<name>.txt and returns the written
// paths in section order. Nothing is written when a name is invalid or two
// sections map to the same file. The caller owns cleanup of dir.
func (p *ParameterSet) Materialize(dir string) ([]string, error) {
	seen := make(map[string]bool, len(p.sections))
	for _, s := range p.sections {
		if s.Name == "" || strings.ContainsAny(s.Name, `/\`) || s.Name == "." || s.Name == ".." {
			return nil, fmt.Errorf("materialize %q: %w", s.Name, ErrInvalidSectionName)
		}
		file := SectionFileName(s.Name)
		if seen[file] {
			return nil, fmt.Errorf("materialize %q: %w", s.Name, ErrDuplicateSection)
		}
		seen[file] = true
	}

	paths := make([]string, 0, len(p.sections))
	for _, s := range p.sections {
		path := filepath.Join(dir, SectionFileName(s.Name))
		if err := os.WriteFile(path, []byte(s.Content), 0644); err != nil {
			return nil, fmt.Errorf("write parameter file: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// FromFiles builds a preset whose sections are read from files, in order.
// Each section is named after its file's base name; two files with the same
// base name fail with ErrDuplicateSection. A missing file yields an error
// wrapping fs.ErrNotExist.
func FromFiles(meta Metadata, kind Kind, files ...string) (*ParameterSet, error) {
	sections := make([]Section, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		if slices.ContainsFunc(sections, func(s Section) bool { return s.Name == name }) {
			return nil, fmt.Errorf("parameter file %s: %q: %w", f, name, ErrDuplicateSection)
		}
		data, err := os.ReadFile(f) //nolint:gosec // G304: catalog-referenced parameter files
		if err != nil {
			return nil, fmt.Errorf("read parameter file: %w", err)
		}
		sections = append(sections, Section{Name: name, Content: string(data)})
	}
	return New(meta, kind, sections...), nil
}

// MaterializeTemp creates a timestamp-named directory under base and
// materializes the sections into it. It returns the directory and the paths.
func (p *ParameterSet) MaterializeTemp(base string) (string, []string, error) {
	dir, err := paths.CreateTimestampDir(base)
	if err != nil {
		return "", nil, err
	}
	files, err := p.Materialize(dir)
	if err != nil {
		return dir, nil, err
	}
	return dir, files, nil
}
