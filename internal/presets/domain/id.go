package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jinzhu/copier"
)

// idMarker separates a source id from its generated suffix.
const idMarker = "-#"

// idEntropyBytes is 48 bits of randomness, eight base64url characters.
const idEntropyBytes = 6

// GenerateID derives a fresh id from src by dropping any previously generated
// suffix and appending a new random one.
func GenerateID(src string) string {
	if i := strings.Index(src, idMarker); i >= 0 {
		src = src[:i]
	}
	buf := make([]byte, idEntropyBytes)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)
	return src + idMarker + base64.URLEncoding.EncodeToString(buf)
}

// BaseID returns src without its generated suffix.
func BaseID(src string) string {
	if i := strings.Index(src, idMarker); i >= 0 {
		return src[:i]
	}
	return src
}

// Clone returns a copy of src of the given kind under a fresh id. Sections are
// deep-copied; the change hook is not carried over.
func Clone(src *ParameterSet, kind Kind) (*ParameterSet, error) {
	var sections []Section
	if err := copier.CopyWithOption(&sections, src.sections, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy sections of %s: %w", src.ID(), err)
	}
	meta := src.meta
	meta.ID = GenerateID(src.meta.ID)
	return New(meta, kind, sections...), nil
}
