// Package scene is the host scene graph as seen by preset storage: a set of
// text nodes with a name, a text payload and string attributes.
package scene

import (
	"context"
	"errors"
	"maps"
)

// ErrNodeNotFound is returned when a node id is not in the scene.
var ErrNodeNotFound = errors.New("scene node not found")

// NodeID is the stable identity of a node. It never changes for the lifetime
// of the node, whatever happens to its name or text.
type NodeID string

// TextNode is a snapshot of one text node.
type TextNode struct {
	ID         NodeID
	Name       string
	Text       string
	Attributes map[string]string
}

// Attribute returns the value of key, or "".
func (n TextNode) Attribute(key string) string {
	return n.Attributes[key]
}

// Scene stores text nodes.
type Scene interface {
	// TextNodes returns every text node in insertion order.
	TextNodes(ctx context.Context) ([]TextNode, error)
	// Node returns one node, or ErrNodeNotFound.
	Node(ctx context.Context, id NodeID) (TextNode, error)
	// AddTextNode creates an empty text node carrying attrs.
	AddTextNode(ctx context.Context, attrs map[string]string) (NodeID, error)
	SetText(ctx context.Context, id NodeID, text string) error
	SetName(ctx context.Context, id NodeID, name string) error
	// RemoveNode deletes a node. Removing a missing node returns ErrNodeNotFound.
	RemoveNode(ctx context.Context, id NodeID) error
}

// CloneAttributes copies attrs so callers cannot alias scene state.
func CloneAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return maps.Clone(attrs)
}
