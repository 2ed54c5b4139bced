package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGenerateID_Format(t *testing.T) {
	id := GenerateID("default0")
	require.True(t, strings.HasPrefix(id, "default0-#"), id)
	require.Len(t, strings.TrimPrefix(id, "default0-#"), 8)
}

func TestGenerateID_StripsPreviousSuffix(t *testing.T) {
	first := GenerateID("default0")
	second := GenerateID(first)
	require.Equal(t, "default0", BaseID(second))
	require.Equal(t, 1, strings.Count(second, idMarker))
}

func TestClone_FreshIDs(t *testing.T) {
	src := New(Metadata{ID: "mri-brain", Content: "brain"}, KindBuiltIn, Section{Name: "a", Content: "1"})
	seen := make(map[string]bool)
	for range 100 {
		c, err := Clone(src, KindInScene)
		require.NoError(t, err)
		require.NotEqual(t, src.ID(), c.ID())
		require.False(t, seen[c.ID()], "id collision: %s", c.ID())
		seen[c.ID()] = true
	}
}

func TestClone_DeepCopiesSections(t *testing.T) {
	src := New(Metadata{ID: "s", Modality: "CT"}, KindInScene, Section{Name: "a", Content: "1"})
	c, err := Clone(src, KindInScene)
	require.NoError(t, err)
	require.Equal(t, KindInScene, c.Kind())
	require.Equal(t, "CT", c.Modality())

	require.NoError(t, c.SetSectionContent(0, "changed"))
	require.Equal(t, "1", src.SectionContent("a"))
}

func TestClone_NeverCollides(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`[a-z0-9]{0,10}(-#[A-Za-z0-9_-]{8})?`).Draw(t, "id")
		src := New(Metadata{ID: id}, KindUser)
		a, err := Clone(src, KindInScene)
		if err != nil {
			t.Fatal(err)
		}
		b, err := Clone(src, KindInScene)
		if err != nil {
			t.Fatal(err)
		}
		if a.ID() == b.ID() {
			t.Fatalf("clones of %q collided: %s", id, a.ID())
		}
		if BaseID(a.ID()) != BaseID(id) {
			t.Fatalf("base changed: %q -> %q", id, a.ID())
		}
	})
}

func TestNextContent(t *testing.T) {
	withContents := func(contents ...string) []*ParameterSet {
		out := make([]*ParameterSet, len(contents))
		for i, c := range contents {
			out[i] = New(Metadata{Content: c}, KindBuiltIn)
		}
		return out
	}

	tests := []struct {
		name     string
		content  string
		existing []string
		want     string
	}{
		{"first copy", "brain", []string{"brain"}, "brain 2"},
		{"skips used", "brain", []string{"brain", "brain 2", "brain 3"}, "brain 4"},
		{"fills gap", "brain", []string{"brain", "brain 3"}, "brain 2"},
		{"strips suffix", "brain 2", []string{"brain", "brain 2"}, "brain 3"},
		{"ignores non-numeric", "brain", []string{"brain", "brain tumor"}, "brain 2"},
		{"suffix 1 does not count", "lung", []string{"lung 1"}, "lung 2"},
		{"no presets", "x", nil, "x 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NextContent(tt.content, withContents(tt.existing...)))
		})
	}
}
