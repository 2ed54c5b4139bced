package application

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

func TestBuiltinStore_List(t *testing.T) {
	s := NewBuiltinStore(testBuiltinFS(), "presets/presets.yaml", "builtin")

	presets, err := s.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	require.Equal(t, "default0", presets[0].ID())
	require.Equal(t, []string{"Rigid.txt", "BSpline.txt"}, presets[0].SectionNames())
	require.Equal(t, domain.KindBuiltIn, presets[0].Kind())
	require.False(t, presets[0].Writable())
	require.False(t, presets[0].Deletable())
}

func TestBuiltinStore_CachedUntilForced(t *testing.T) {
	ctx := context.Background()
	fsys := testBuiltinFS()
	s := NewBuiltinStore(fsys, "presets/presets.yaml", "builtin")

	first, err := s.List(ctx, false)
	require.NoError(t, err)

	delete(fsys, "presets/presets.yaml")
	cached, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Same(t, first[0], cached[0])

	_, err = s.List(ctx, true)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBuiltinStore_MissingFileSkipsEntry(t *testing.T) {
	fsys := testBuiltinFS()
	delete(fsys, "presets/BSpline.txt")
	s := NewBuiltinStore(fsys, "presets/presets.yaml", "builtin")
	var buf log.Buffer
	s.SetLogSink(buf.Sink())

	presets, err := s.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	require.Equal(t, "mri-brain", presets[0].ID())
	require.Len(t, buf.Lines(), 1)
	require.Contains(t, buf.Lines()[0], "Cannot load preset")
}

func TestBuiltinStore_UnparseableCatalogIsFatal(t *testing.T) {
	fsys := fstest.MapFS{"presets/presets.yaml": {Data: []byte("presets: [")}}
	s := NewBuiltinStore(fsys, "presets/presets.yaml", "builtin")

	_, err := s.List(context.Background(), false)
	require.Error(t, err)
}

func TestBuiltinStore_MutationsUnsupported(t *testing.T) {
	s := NewBuiltinStore(testBuiltinFS(), "presets/presets.yaml", "builtin")
	p := domain.New(domain.Metadata{ID: "x"}, domain.KindInScene)

	_, err := s.Add(context.Background(), p)
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.ErrorIs(t, s.Delete(context.Background(), p), ErrUnsupportedOperation)
}
