package presentation_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/elastixctl/internal/imaging"
	"github.com/zjrosen/elastixctl/internal/metaimage"
	"github.com/zjrosen/elastixctl/internal/presentation"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/registration"
	"github.com/zjrosen/elastixctl/internal/testutil"
)

const bspline = `// final stage
(Transform "BSplineTransform")
(Metric "AdvancedMattesMutualInformation")
(NumberOfResolutions 4)
`

func TestFromPreset(t *testing.T) {
	p := testutil.NewPreset("mri-brain", testutil.Modality("MRI"), testutil.Content("brain"),
		testutil.Kind(domain.KindUser),
		testutil.Section("Parameters_BSpline.txt", bspline),
		testutil.Section("broken.txt", "(Transform"))

	dto := presentation.FromPreset(p)
	require.Equal(t, "mri-brain", dto.ID)
	require.Equal(t, "MRI (brain)", dto.Name)
	require.Equal(t, "user preset", dto.Kind)
	require.False(t, dto.Writable)
	require.True(t, dto.Deletable)
	require.Len(t, dto.Sections, 2)

	require.Equal(t, "BSplineTransform", dto.Sections[0].Transform)
	require.Equal(t, "AdvancedMattesMutualInformation", dto.Sections[0].Metric)
	require.Equal(t, 4, dto.Sections[0].Resolutions)
	require.Empty(t, dto.Sections[0].ParseError)

	require.NotEmpty(t, dto.Sections[1].ParseError)
	require.Equal(t, 10, dto.Sections[1].Bytes)
}

func TestFromPresets_KeepsOrder(t *testing.T) {
	presets := testutil.NewPresetBuilder().WithStandardPresets().Build()
	dtos := presentation.FromPresets(presets)
	require.Len(t, dtos, 3)
	for i, p := range presets {
		require.Equal(t, p.ID(), dtos[i].ID)
	}
}

func TestFromResult(t *testing.T) {
	res := &registration.Result{
		JobID:           "job",
		State:           registration.StateCompleted,
		Volume:          &metaimage.Image{},
		LinearTransform: &imaging.LinearTransform{Path: "/w/TransformParameters.0-Composite.h5"},
	}
	dto := presentation.FromResult(res, nil)
	require.Equal(t, "job", dto.JobID)
	require.Equal(t, registration.StateCompleted.String(), dto.State)
	require.True(t, dto.Volume)
	require.False(t, dto.DisplacementField)
	require.Equal(t, "/w/TransformParameters.0-Composite.h5", dto.LinearTransform)

	dto = presentation.FromResult(nil, errors.New("elastix not found"))
	require.Equal(t, "elastix not found", dto.Error)
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	p := testutil.NewPreset("a", testutil.Sections(2))
	require.NoError(t, presentation.NewFormatter(&buf).FormatJSON([]presentation.PresetDTO{presentation.FromPreset(p)}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "a", decoded[0]["id"])
	require.Len(t, decoded[0]["sections"], 2)
}

func TestFormatPresetTable(t *testing.T) {
	var buf bytes.Buffer
	dtos := presentation.FromPresets(testutil.NewPresetBuilder().WithStandardPresets().Build())
	require.NoError(t, presentation.NewFormatter(&buf).FormatPresetTable(dtos))

	out := buf.String()
	require.Contains(t, out, "default0")
	require.Contains(t, out, "built-in preset")
	require.Contains(t, out, "stored in scene")
}

func TestPresetMarkdown(t *testing.T) {
	p := testutil.NewPreset("p", testutil.Description("Lung CT"), testutil.Publications("Doe 2020"),
		testutil.Section("a.txt", bspline))
	md := presentation.PresetMarkdown(presentation.FromPreset(p))
	require.Contains(t, md, "# generic (p)")
	require.Contains(t, md, "Lung CT")
	require.Contains(t, md, "## Publications")
	require.Contains(t, md, "| 0 | a.txt | BSplineTransform | AdvancedMattesMutualInformation | 4 |")

	empty := presentation.PresetMarkdown(presentation.FromPreset(testutil.NewPreset("e")))
	require.Contains(t, empty, "_none_")
}

func TestFormatPresetMarkdown_Raw(t *testing.T) {
	var buf bytes.Buffer
	dto := presentation.FromPreset(testutil.NewPreset("p"))
	require.NoError(t, presentation.NewFormatter(&buf).FormatPresetMarkdown(dto, 80, true))
	require.Equal(t, presentation.PresetMarkdown(dto), buf.String())
}

func TestFormatPresetMarkdown_Rendered(t *testing.T) {
	var buf bytes.Buffer
	dto := presentation.FromPreset(testutil.NewPreset("p", testutil.Description("hello world")))
	require.NoError(t, presentation.NewFormatter(&buf).FormatPresetMarkdown(dto, 80, false))
	require.Contains(t, buf.String(), "hello world")
}

func TestDiffPresets(t *testing.T) {
	a := testutil.NewPreset("a",
		testutil.Section("rigid.txt", "(Transform \"EulerTransform\")\n(NumberOfResolutions 3)\n"),
		testutil.Section("old.txt", "(Metric \"AdvancedMeanSquares\")\n"),
		testutil.Section("same.txt", "(A 1)\n"))
	b := testutil.NewPreset("b",
		testutil.Section("same.txt", "(A 1)\n"),
		testutil.Section("rigid.txt", "(Transform \"EulerTransform\")\n(NumberOfResolutions 4)\n"),
		testutil.Section("new.txt", "(B 2)\n"))

	diffs := presentation.DiffPresets(a, b)
	require.Len(t, diffs, 4)

	require.Equal(t, "rigid.txt", diffs[0].Name)
	require.Equal(t, presentation.SectionChanged, diffs[0].Status)
	require.Equal(t, []presentation.DiffLine{
		{Op: presentation.LineEqual, Text: `(Transform "EulerTransform")`},
		{Op: presentation.LineDelete, Text: "(NumberOfResolutions 3)"},
		{Op: presentation.LineInsert, Text: "(NumberOfResolutions 4)"},
	}, diffs[0].Lines)

	require.Equal(t, presentation.SectionRemoved, diffs[1].Status)
	require.Equal(t, presentation.SectionUnchanged, diffs[2].Status)
	require.Equal(t, "new.txt", diffs[3].Name)
	require.Equal(t, presentation.SectionAdded, diffs[3].Status)

	var buf bytes.Buffer
	require.NoError(t, presentation.NewFormatter(&buf).FormatDiff(diffs))
	require.Contains(t, buf.String(), "=== rigid.txt (changed)\n")
	require.Contains(t, buf.String(), "- (NumberOfResolutions 3)\n+ (NumberOfResolutions 4)\n")
	require.Contains(t, buf.String(), "=== same.txt (unchanged)\n=== new.txt (added)\n+ (B 2)\n")
}

func TestDiffText_BlankLines(t *testing.T) {
	lines := presentation.DiffText("(A 1)\n\n(B 2)\n", "(A 1)\n\n(B 3)\n")
	require.Equal(t, []presentation.DiffLine{
		{Op: presentation.LineEqual, Text: "(A 1)"},
		{Op: presentation.LineEqual, Text: ""},
		{Op: presentation.LineDelete, Text: "(B 2)"},
		{Op: presentation.LineInsert, Text: "(B 3)"},
	}, lines)
}
