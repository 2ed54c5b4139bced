package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// noMarginStyle removes glamour's document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Formatter writes presentation values to a writer.
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a formatter writing to writer.
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{writer: writer}
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatPresetTable writes one row per preset with its index, the value
// `register --preset` accepts.
func (f *Formatter) FormatPresetTable(presets []PresetDTO) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "NAME", "TYPE", "FILES").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for i, p := range presets {
		t.Row(strconv.Itoa(i), p.ID, p.Name, p.Kind, strconv.Itoa(len(p.Sections)))
	}
	_, err := fmt.Fprintln(f.writer, t.Render())
	return err
}

// PresetMarkdown renders a preset as a markdown document.
func PresetMarkdown(p PresetDTO) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Name)
	fmt.Fprintf(&b, "- **ID:** `%s`\n", p.ID)
	fmt.Fprintf(&b, "- **Type:** %s\n\n", p.Kind)
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Description)
	}
	if p.Publications != "" {
		fmt.Fprintf(&b, "## Publications\n\n%s\n\n", p.Publications)
	}
	b.WriteString("## Parameter files\n\n")
	if len(p.Sections) == 0 {
		b.WriteString("_none_\n")
		return b.String()
	}
	b.WriteString("| # | File | Transform | Metric | Resolutions |\n")
	b.WriteString("|---|------|-----------|--------|-------------|\n")
	for i, s := range p.Sections {
		res := ""
		if s.Resolutions > 0 {
			res = strconv.Itoa(s.Resolutions)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i, s.Name, s.Transform, s.Metric, res)
	}
	return b.String()
}

// RenderMarkdown styles markdown for the terminal at the given width.
func RenderMarkdown(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	return r.Render(markdown)
}

// FormatPresetMarkdown writes p rendered through glamour. With raw set the
// markdown source is written instead.
func (f *Formatter) FormatPresetMarkdown(p PresetDTO, width int, raw bool) error {
	md := PresetMarkdown(p)
	if !raw {
		rendered, err := RenderMarkdown(md, width)
		if err != nil {
			return err
		}
		md = rendered
	}
	_, err := io.WriteString(f.writer, md)
	return err
}
