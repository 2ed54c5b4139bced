package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/scene"
)

func TestSceneStore_AddPersistsNode(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	s := NewSceneStore(sc)

	p, err := s.Add(ctx, scenePreset("ct-liver"))
	require.NoError(t, err)
	require.NotEqual(t, "ct-liver", p.ID())
	require.Equal(t, "ct-liver", domain.BaseID(p.ID()))

	id, ok := s.NodeOf(p)
	require.True(t, ok)
	node, err := sc.Node(ctx, id)
	require.NoError(t, err)
	require.Equal(t, PresetNodeType, node.Attribute(TypeAttribute))
	require.Equal(t, "CT (liver)", node.Name)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(node.Text), &raw))
	require.Equal(t, p.ID(), raw["id"])
	require.Len(t, raw["parameter_files"], 2)
}

func TestSceneStore_MutationRewritesNode(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	s := NewSceneStore(sc)
	p, err := s.Add(ctx, scenePreset("x"))
	require.NoError(t, err)
	id, _ := s.NodeOf(p)

	require.NoError(t, p.SetContent("kidney"))
	require.NoError(t, p.AddSection("affine.txt", "a"))

	node, err := sc.Node(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "CT (kidney)", node.Name)

	decoded := domain.New(domain.Metadata{}, domain.KindInScene)
	require.NoError(t, decoded.Decode([]byte(node.Text)))
	require.Equal(t, "kidney", decoded.Content())
	require.Equal(t, []string{"rigid", "bspline.txt", "affine.txt"}, decoded.SectionNames())
}

func TestSceneStore_IdentityStableAcrossRefresh(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	id, err := sc.AddTextNode(ctx, map[string]string{TypeAttribute: PresetNodeType})
	require.NoError(t, err)
	require.NoError(t, sc.SetText(ctx, id, `{"id":"from-file","modality":"MRI","content":"brain","parameter_files":[{"name":"a","content":"1"}]}`))
	_, err = sc.AddTextNode(ctx, map[string]string{"Type": "Other"})
	require.NoError(t, err)

	s := NewSceneStore(sc)
	first, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, "from-file", first[0].ID())
	require.True(t, first[0].Writable())

	again, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Same(t, first[0], again[0])

	wrapped, err := s.Wrap(ctx, id)
	require.NoError(t, err)
	require.Same(t, first[0], wrapped)
}

func TestSceneStore_EmptyNodeTextIsEmptyPreset(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	id, err := sc.AddTextNode(ctx, map[string]string{TypeAttribute: PresetNodeType})
	require.NoError(t, err)

	p, err := NewSceneStore(sc).Wrap(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "", p.ID())
	require.Empty(t, p.Sections())
}

func TestSceneStore_WrapRejectsUnmarkedNode(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	id, err := sc.AddTextNode(ctx, nil)
	require.NoError(t, err)

	_, err = NewSceneStore(sc).Wrap(ctx, id)
	require.ErrorIs(t, err, ErrNotPresetNode)
}

func TestSceneStore_BadJSONSkipped(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	id, err := sc.AddTextNode(ctx, map[string]string{TypeAttribute: PresetNodeType})
	require.NoError(t, err)
	require.NoError(t, sc.SetText(ctx, id, "{not json"))

	presets, err := NewSceneStore(sc).List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, presets)
}

func TestSceneStore_Delete(t *testing.T) {
	ctx := context.Background()
	sc := scene.NewMemory()
	s := NewSceneStore(sc)
	p, err := s.Add(ctx, scenePreset("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, p))
	require.ErrorIs(t, s.Delete(ctx, p), ErrUnknownPreset)

	nodes, err := sc.TextNodes(ctx)
	require.NoError(t, err)
	require.Empty(t, nodes)

	presets, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Empty(t, presets)
}
