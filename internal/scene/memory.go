package scene

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-process Scene. Nodes live as long as the value.
type Memory struct {
	mu    sync.RWMutex
	nodes map[NodeID]*TextNode
	order []NodeID
	next  int
}

// NewMemory creates an empty scene.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[NodeID]*TextNode)}
}

var _ Scene = (*Memory)(nil)

func (m *Memory) TextNodes(_ context.Context) ([]TextNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TextNode, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, snapshot(m.nodes[id]))
	}
	return out, nil
}

func (m *Memory) Node(_ context.Context, id NodeID) (TextNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return TextNode{}, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	return snapshot(n), nil
}

func (m *Memory) AddTextNode(_ context.Context, attrs map[string]string) (NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	id := NodeID(fmt.Sprintf("TextNode%d", m.next))
	m.nodes[id] = &TextNode{ID: id, Attributes: CloneAttributes(attrs)}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) SetText(_ context.Context, id NodeID, text string) error {
	return m.update(id, func(n *TextNode) { n.Text = text })
}

func (m *Memory) SetName(_ context.Context, id NodeID, name string) error {
	return m.update(id, func(n *TextNode) { n.Name = name })
}

func (m *Memory) RemoveNode(_ context.Context, id NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("remove node %s: %w", id, ErrNodeNotFound)
	}
	delete(m.nodes, id)
	m.order = slices.DeleteFunc(m.order, func(o NodeID) bool { return o == id })
	return nil
}

func (m *Memory) update(id NodeID, fn func(*TextNode)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	fn(n)
	return nil
}

func snapshot(n *TextNode) TextNode {
	c := *n
	c.Attributes = CloneAttributes(n.Attributes)
	return c
}
