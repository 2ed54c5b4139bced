package application

import (
	"testing"
	"testing/fstest"

	"github.com/zjrosen/elastixctl/internal/scene"
)

const testCatalog = `presets:
  - id: default0
    modality: generic
    content: all
    parameter_files: [Rigid.txt, BSpline.txt]
  - id: mri-brain
    modality: MRI
    content: brain
    parameter_files: [Rigid.txt]
`

func testBuiltinFS() fstest.MapFS {
	return fstest.MapFS{
		"presets/presets.yaml": {Data: []byte(testCatalog)},
		"presets/Rigid.txt":    {Data: []byte(`(Transform "EulerTransform")`)},
		"presets/BSpline.txt":  {Data: []byte(`(Transform "BSplineTransform")`)},
	}
}

// newTestCatalog wires a catalog over an in-memory built-in catalog, a temp
// user directory and an in-memory scene.
func newTestCatalog(t *testing.T) (*Catalog, *scene.Memory) {
	t.Helper()
	sc := scene.NewMemory()
	c := NewCatalog(
		NewBuiltinStore(testBuiltinFS(), "presets/presets.yaml", "builtin"),
		NewUserStore(t.TempDir()),
		NewSceneStore(sc),
	)
	return c, sc
}
