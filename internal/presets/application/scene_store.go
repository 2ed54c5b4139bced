package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/elastixctl/internal/cachemanager"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/scene"
)

// Marker attribute identifying preset text nodes.
const (
	TypeAttribute  = "Type"
	PresetNodeType = "ElastixPreset"
)

// SceneStore keeps presets as JSON text nodes in a scene. Each node is
// wrapped in one ParameterSet for the life of the store; every mutation of
// the wrapper rewrites the node text and renames the node.
type SceneStore struct {
	scene scene.Scene
	statusSink

	mu       sync.Mutex
	wrappers map[scene.NodeID]*domain.ParameterSet
	nodes    map[*domain.ParameterSet]scene.NodeID

	cache *cachemanager.ReadThroughCache[string, []*domain.ParameterSet, struct{}]
}

var _ Store = (*SceneStore)(nil)

// NewSceneStore creates a store over s.
func NewSceneStore(s scene.Scene) *SceneStore {
	st := &SceneStore{
		scene:    s,
		wrappers: make(map[scene.NodeID]*domain.ParameterSet),
		nodes:    make(map[*domain.ParameterSet]scene.NodeID),
	}
	st.store = "scene"
	st.cache = cachemanager.NewReadThroughCache[string, []*domain.ParameterSet, struct{}](
		cachemanager.NewInMemoryCacheManager[string, []*domain.ParameterSet]("scene-presets",
			cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		st.load,
		false,
	)
	return st
}

func (s *SceneStore) Kind() domain.Kind { return domain.KindInScene }

func (s *SceneStore) Location() string { return "" }

// List enumerates preset nodes. Wrappers are reused across refreshes, so the
// same node always yields the same *ParameterSet.
func (s *SceneStore) List(ctx context.Context, forceRefresh bool) ([]*domain.ParameterSet, error) {
	if forceRefresh {
		return s.cache.Refresh(ctx, cacheKey, struct{}{}, cachemanager.NoExpiration)
	}
	return s.cache.Get(ctx, cacheKey, struct{}{}, cachemanager.NoExpiration)
}

// Wrap returns the preset backed by node id, creating the wrapper on first use.
// A node without the preset marker attribute fails with ErrNotPresetNode.
func (s *SceneStore) Wrap(ctx context.Context, id scene.NodeID) (*domain.ParameterSet, error) {
	s.mu.Lock()
	if p, ok := s.wrappers[id]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	node, err := s.scene.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.wrap(node)
}

// NodeOf returns the node backing p.
func (s *SceneStore) NodeOf(p *domain.ParameterSet) (scene.NodeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.nodes[p]
	return id, ok
}

// Add creates a new preset node holding a copy of p under a fresh id.
func (s *SceneStore) Add(ctx context.Context, p *domain.ParameterSet) (*domain.ParameterSet, error) {
	c, err := domain.Clone(p, domain.KindInScene)
	if err != nil {
		return nil, err
	}

	id, err := s.scene.AddTextNode(ctx, map[string]string{TypeAttribute: PresetNodeType})
	if err != nil {
		return nil, fmt.Errorf("create preset node: %w", err)
	}
	if err := s.persist(ctx, id, c); err != nil {
		_ = s.scene.RemoveNode(ctx, id)
		return nil, err
	}

	s.mu.Lock()
	s.attach(id, c)
	s.mu.Unlock()

	log.Info(log.CatScene, "created preset node", "node", id, "id", c.ID())
	return c, nil
}

// Delete removes the node backing p.
func (s *SceneStore) Delete(ctx context.Context, p *domain.ParameterSet) error {
	s.mu.Lock()
	id, ok := s.nodes[p]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete preset %s: %w", p.ID(), ErrUnknownPreset)
	}

	if err := s.scene.RemoveNode(ctx, id); err != nil {
		return fmt.Errorf("remove preset node: %w", err)
	}

	s.mu.Lock()
	delete(s.nodes, p)
	delete(s.wrappers, id)
	s.mu.Unlock()

	log.Info(log.CatScene, "removed preset node", "node", id, "id", p.ID())
	return nil
}

func (s *SceneStore) load(ctx context.Context, _ struct{}) ([]*domain.ParameterSet, error) {
	nodes, err := s.scene.TextNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scene text nodes: %w", err)
	}

	var presets []*domain.ParameterSet
	for _, n := range nodes {
		if n.Attribute(TypeAttribute) != PresetNodeType {
			continue
		}
		p, err := s.wrap(n)
		if err != nil {
			s.warn(fmt.Sprintf("Cannot load preset from node %s: %v", n.ID, err))
			continue
		}
		presets = append(presets, p)
	}
	return presets, nil
}

func (s *SceneStore) wrap(node scene.TextNode) (*domain.ParameterSet, error) {
	if node.Attribute(TypeAttribute) != PresetNodeType {
		return nil, fmt.Errorf("node %s: %w", node.ID, ErrNotPresetNode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.wrappers[node.ID]; ok {
		return p, nil
	}

	p := domain.New(domain.Metadata{}, domain.KindInScene)
	if err := p.Decode([]byte(node.Text)); err != nil {
		return nil, err
	}
	s.attach(node.ID, p)
	return p, nil
}

// attach registers p as the wrapper of id and installs the persistence hook.
// Callers hold s.mu.
func (s *SceneStore) attach(id scene.NodeID, p *domain.ParameterSet) {
	s.wrappers[id] = p
	s.nodes[p] = id
	p.OnChange(func(p *domain.ParameterSet) error {
		return s.persist(context.Background(), id, p)
	})
}

func (s *SceneStore) persist(ctx context.Context, id scene.NodeID, p *domain.ParameterSet) error {
	text, err := p.Encode()
	if err != nil {
		return err
	}
	if err := s.scene.SetText(ctx, id, text); err != nil {
		return fmt.Errorf("write preset node %s: %w", id, err)
	}
	if err := s.scene.SetName(ctx, id, p.Name()); err != nil {
		return fmt.Errorf("rename preset node %s: %w", id, err)
	}
	log.Debug(log.CatScene, "persisted preset node", "node", id, "id", p.ID())
	return nil
}
