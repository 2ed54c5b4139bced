package sqlite

import (
	"strconv"

	"github.com/zjrosen/elastixctl/internal/scene"
)

// TextNodeModel represents a row of the text_nodes table.
type TextNodeModel struct {
	ID        int64
	Name      string
	Text      string
	CreatedAt int64 // Unix timestamp
	UpdatedAt int64 // Unix timestamp
}

// toDomain converts the row plus its attributes to a scene.TextNode.
func (m *TextNodeModel) toDomain(attrs map[string]string) scene.TextNode {
	return scene.TextNode{
		ID:         nodeID(m.ID),
		Name:       m.Name,
		Text:       m.Text,
		Attributes: scene.CloneAttributes(attrs),
	}
}

func nodeID(id int64) scene.NodeID {
	return scene.NodeID(strconv.FormatInt(id, 10))
}

func rowID(id scene.NodeID) (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}
