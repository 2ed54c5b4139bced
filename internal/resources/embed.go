// Package resources bundles the built-in preset catalog.
package resources

import (
	"embed"
	"io/fs"
)

// CatalogPath is the path of the built-in catalog inside FS.
const CatalogPath = "presets/presets.yaml"

// builtinPresets embeds the catalog and every parameter file it references.
// The structure is:
//   - presets/presets.yaml (catalog)
//   - presets/*.txt (elastix parameter files)
//
//go:embed presets
var builtinPresets embed.FS

// FS returns the embedded filesystem holding the built-in catalog.
func FS() fs.FS {
	return builtinPresets
}
