package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var trailingNumber = regexp.MustCompile(` (\d+)$`)

// NextContent returns a content label for a copy of a preset with the given
// content that does not collide with any of presets.
//
// A trailing " <n>" is stripped to get the base. Every preset whose content
// equals the base or starts with it contributes its numeric suffix, and the
// smallest unused integer >= 2 is appended.
func NextContent(content string, presets []*ParameterSet) string {
	base := trailingNumber.ReplaceAllString(content, "")
	used := make(map[int]bool)
	for _, p := range presets {
		c := p.Content()
		if !strings.HasPrefix(c, base) {
			continue
		}
		if n, ok := bareInt(strings.TrimSpace(strings.TrimPrefix(c, base))); ok {
			used[n] = true
		}
	}
	n := 2
	for used[n] {
		n++
	}
	return fmt.Sprintf("%s %d", base, n)
}

func bareInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
