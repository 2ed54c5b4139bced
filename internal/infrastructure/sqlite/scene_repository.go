package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/elastixctl/internal/scene"
)

// sceneRepository implements scene.Scene using SQLite.
type sceneRepository struct {
	db *sql.DB
}

func newSceneRepository(db *sql.DB) *sceneRepository {
	return &sceneRepository{db: db}
}

// Ensure sceneRepository implements scene.Scene.
var _ scene.Scene = (*sceneRepository)(nil)

// TextNodes returns all nodes ordered by id, which is insertion order.
func (r *sceneRepository) TextNodes(ctx context.Context) ([]scene.TextNode, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, text, created_at, updated_at FROM text_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list text nodes: %w", err)
	}
	var models []*TextNodeModel
	for rows.Next() {
		var m TextNodeModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Text, &m.CreatedAt, &m.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan text node: %w", err)
		}
		models = append(models, &m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate text nodes: %w", err)
	}

	attrs, err := r.allAttributes(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]scene.TextNode, 0, len(models))
	for _, m := range models {
		nodes = append(nodes, m.toDomain(attrs[m.ID]))
	}
	return nodes, nil
}

// Node returns one node by id.
func (r *sceneRepository) Node(ctx context.Context, id scene.NodeID) (scene.TextNode, error) {
	rid, ok := rowID(id)
	if !ok {
		return scene.TextNode{}, fmt.Errorf("node %s: %w", id, scene.ErrNodeNotFound)
	}
	var m TextNodeModel
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, text, created_at, updated_at FROM text_nodes WHERE id = ?`, rid,
	).Scan(&m.ID, &m.Name, &m.Text, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return scene.TextNode{}, fmt.Errorf("node %s: %w", id, scene.ErrNodeNotFound)
	}
	if err != nil {
		return scene.TextNode{}, fmt.Errorf("failed to find text node: %w", err)
	}

	attrs, err := r.attributes(ctx, rid)
	if err != nil {
		return scene.TextNode{}, err
	}
	return m.toDomain(attrs), nil
}

// AddTextNode inserts an empty node and its attributes in one transaction.
func (r *sceneRepository) AddTextNode(ctx context.Context, attrs map[string]string) (scene.NodeID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO text_nodes (name, text, created_at, updated_at) VALUES ('', '', ?, ?)`, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert text node: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to get last insert id: %w", err)
	}
	for k, v := range attrs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_attributes (node_id, key, value) VALUES (?, ?, ?)`, id, k, v); err != nil {
			return "", fmt.Errorf("failed to insert node attribute: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit text node: %w", err)
	}
	return nodeID(id), nil
}

// SetText replaces the node's text payload.
func (r *sceneRepository) SetText(ctx context.Context, id scene.NodeID, text string) error {
	return r.updateColumn(ctx, id, "text", text)
}

// SetName replaces the node's display name.
func (r *sceneRepository) SetName(ctx context.Context, id scene.NodeID, name string) error {
	return r.updateColumn(ctx, id, "name", name)
}

// RemoveNode hard-deletes the node; attributes cascade.
func (r *sceneRepository) RemoveNode(ctx context.Context, id scene.NodeID) error {
	rid, ok := rowID(id)
	if !ok {
		return fmt.Errorf("remove node %s: %w", id, scene.ErrNodeNotFound)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM text_nodes WHERE id = ?`, rid)
	if err != nil {
		return fmt.Errorf("failed to delete text node: %w", err)
	}
	return requireAffected(result, id)
}

// updateColumn sets one of the fixed columns name or text.
func (r *sceneRepository) updateColumn(ctx context.Context, id scene.NodeID, column, value string) error {
	rid, ok := rowID(id)
	if !ok {
		return fmt.Errorf("node %s: %w", id, scene.ErrNodeNotFound)
	}
	var query string
	switch column {
	case "name":
		query = `UPDATE text_nodes SET name = ?, updated_at = ? WHERE id = ?`
	case "text":
		query = `UPDATE text_nodes SET text = ?, updated_at = ? WHERE id = ?`
	default:
		return fmt.Errorf("unknown text node column %q", column)
	}
	result, err := r.db.ExecContext(ctx, query, value, time.Now().Unix(), rid)
	if err != nil {
		return fmt.Errorf("failed to update text node %s: %w", column, err)
	}
	return requireAffected(result, id)
}

func (r *sceneRepository) attributes(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM node_attributes WHERE node_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query node attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attrs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan node attribute: %w", err)
		}
		attrs[k] = v
	}
	return attrs, rows.Err()
}

func (r *sceneRepository) allAttributes(ctx context.Context) (map[int64]map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT node_id, key, value FROM node_attributes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query node attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]map[string]string)
	for rows.Next() {
		var id int64
		var k, v string
		if err := rows.Scan(&id, &k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan node attribute: %w", err)
		}
		if out[id] == nil {
			out[id] = make(map[string]string)
		}
		out[id][k] = v
	}
	return out, rows.Err()
}

func requireAffected(result sql.Result, id scene.NodeID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("node %s: %w", id, scene.ErrNodeNotFound)
	}
	return nil
}
