package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_AddAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	a, err := s.AddTextNode(ctx, map[string]string{"Type": "ElastixPreset"})
	require.NoError(t, err)
	b, err := s.AddTextNode(ctx, nil)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	nodes, err := s.TextNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, a, nodes[0].ID)
	require.Equal(t, "ElastixPreset", nodes[0].Attribute("Type"))
	require.Equal(t, "", nodes[1].Attribute("Type"))
}

func TestMemory_SetTextAndName(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	id, err := s.AddTextNode(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetText(ctx, id, `{"id":"x"}`))
	require.NoError(t, s.SetName(ctx, id, "MRI (brain)"))

	n, err := s.Node(ctx, id)
	require.NoError(t, err)
	require.Equal(t, `{"id":"x"}`, n.Text)
	require.Equal(t, "MRI (brain)", n.Name)
}

func TestMemory_SnapshotsDoNotAlias(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	id, err := s.AddTextNode(ctx, map[string]string{"Type": "ElastixPreset"})
	require.NoError(t, err)

	n, err := s.Node(ctx, id)
	require.NoError(t, err)
	n.Attributes["Type"] = "Other"

	again, err := s.Node(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "ElastixPreset", again.Attribute("Type"))
}

func TestMemory_Remove(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	id, err := s.AddTextNode(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, s.RemoveNode(ctx, id))
	require.ErrorIs(t, s.RemoveNode(ctx, id), ErrNodeNotFound)
	require.ErrorIs(t, s.SetText(ctx, id, "x"), ErrNodeNotFound)

	_, err = s.Node(ctx, id)
	require.ErrorIs(t, err, ErrNodeNotFound)

	nodes, err := s.TextNodes(ctx)
	require.NoError(t, err)
	require.Empty(t, nodes)
}
