package presentation

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// SectionStatus classifies a section in a preset comparison.
type SectionStatus string

const (
	SectionUnchanged SectionStatus = "unchanged"
	SectionChanged   SectionStatus = "changed"
	SectionAdded     SectionStatus = "added"
	SectionRemoved   SectionStatus = "removed"
)

// LineOp is the marker printed before a diff line.
type LineOp byte

const (
	LineEqual  LineOp = ' '
	LineInsert LineOp = '+'
	LineDelete LineOp = '-'
)

// DiffLine is one line of a section diff.
type DiffLine struct {
	Op   LineOp
	Text string
}

// SectionDiff compares one section of two presets by name.
type SectionDiff struct {
	Name   string
	Status SectionStatus
	Lines  []DiffLine
}

// DiffPresets compares the sections of a and b by name, in a's order
// followed by the sections only b has.
func DiffPresets(a, b *domain.ParameterSet) []SectionDiff {
	var out []SectionDiff
	for _, s := range a.Sections() {
		if !b.HasSection(s.Name) {
			out = append(out, SectionDiff{Name: s.Name, Status: SectionRemoved, Lines: wholeText(LineDelete, s.Content)})
			continue
		}
		lines := DiffText(s.Content, b.SectionContent(s.Name))
		status := SectionUnchanged
		for _, l := range lines {
			if l.Op != LineEqual {
				status = SectionChanged
				break
			}
		}
		out = append(out, SectionDiff{Name: s.Name, Status: status, Lines: lines})
	}
	for _, s := range b.Sections() {
		if !a.HasSection(s.Name) {
			out = append(out, SectionDiff{Name: s.Name, Status: SectionAdded, Lines: wholeText(LineInsert, s.Content)})
		}
	}
	return out
}

// DiffText is a line diff of two parameter files.
func DiffText(from, to string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []DiffLine
	for _, d := range diffs {
		op := LineEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = LineInsert
		case diffmatchpatch.DiffDelete:
			op = LineDelete
		}
		out = append(out, wholeText(op, d.Text)...)
	}
	return out
}

func wholeText(op LineOp, text string) []DiffLine {
	if text == "" {
		return nil
	}
	parts := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	lines := make([]DiffLine, len(parts))
	for i, p := range parts {
		lines[i] = DiffLine{Op: op, Text: p}
	}
	return lines
}

// FormatDiff writes the diffs. Unchanged sections are listed by name only.
func (f *Formatter) FormatDiff(diffs []SectionDiff) error {
	for _, d := range diffs {
		if _, err := fmt.Fprintf(f.writer, "=== %s (%s)\n", d.Name, d.Status); err != nil {
			return err
		}
		if d.Status == SectionUnchanged {
			continue
		}
		for _, l := range d.Lines {
			if _, err := fmt.Fprintf(f.writer, "%c %s\n", l.Op, l.Text); err != nil {
				return err
			}
		}
	}
	return nil
}
