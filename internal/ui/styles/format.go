package styles

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// TruncateString cuts a possibly styled s to maxWidth cells, ending in "..."
// when cut.
func TruncateString(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if ansi.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return ansi.Truncate(s, maxWidth, "")
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// DisplayWidth returns the width of plain text in terminal cells.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// TruncateToWidth cuts plain text at a grapheme boundary so it fits in
// maxWidth cells. Tabs count as one cell.
func TruncateToWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if DisplayWidth(s) <= maxWidth {
		return s
	}

	var b strings.Builder
	width := 0
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.StepString(s, state)
		w := runewidth.StringWidth(cluster)
		if w == 0 && cluster == "\t" {
			w = 1
		}
		if width+w > maxWidth {
			break
		}
		b.WriteString(cluster)
		width += w
	}
	return b.String()
}
