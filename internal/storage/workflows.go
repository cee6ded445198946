package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const workflowColumns = "id, user_id, name, nodes, is_default, created_at, updated_at"

func scanWorkflow(row pgx.Row) (seo.WorkflowConfig, error) {
	var w seo.WorkflowConfig
	var nodes []byte
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &nodes, &w.IsDefault, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return seo.WorkflowConfig{}, err
	}
	if len(nodes) > 0 {
		if err := json.Unmarshal(nodes, &w.Nodes); err != nil {
			return seo.WorkflowConfig{}, fmt.Errorf("decoding nodes of workflow %s: %w", w.ID, err)
		}
	}
	if w.Nodes == nil {
		w.Nodes = []seo.NodeOverride{}
	}
	return w, nil
}

func (s *Store) ListWorkflows(ctx context.Context, userID string) ([]seo.WorkflowConfig, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+workflowColumns+" FROM workflow_configs WHERE user_id = $1 ORDER BY is_default DESC, updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	out := []seo.WorkflowConfig{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Workflow returns the config with id owned by userID.
func (s *Store) Workflow(ctx context.Context, userID, id string) (seo.WorkflowConfig, error) {
	if _, err := uuid.Parse(id); err != nil {
		return seo.WorkflowConfig{}, ErrNotFound
	}
	w, err := scanWorkflow(s.pool.QueryRow(ctx,
		"SELECT "+workflowColumns+" FROM workflow_configs WHERE id = $1 AND user_id = $2", id, userID))
	if err != nil {
		return seo.WorkflowConfig{}, notFound(err)
	}
	return w, nil
}

// DefaultWorkflow returns the user's default config, or ErrNotFound.
func (s *Store) DefaultWorkflow(ctx context.Context, userID string) (seo.WorkflowConfig, error) {
	w, err := scanWorkflow(s.pool.QueryRow(ctx,
		"SELECT "+workflowColumns+" FROM workflow_configs WHERE user_id = $1 AND is_default ORDER BY updated_at DESC LIMIT 1", userID))
	if err != nil {
		return seo.WorkflowConfig{}, notFound(err)
	}
	return w, nil
}

// CreateWorkflow assigns an id and timestamps and stores w. Marking it
// default clears the flag on the user's other configs.
func (s *Store) CreateWorkflow(ctx context.Context, w seo.WorkflowConfig) (seo.WorkflowConfig, error) {
	now := s.now().UTC()
	w.ID = uuid.NewString()
	w.CreatedAt, w.UpdatedAt = now, now
	if w.Nodes == nil {
		w.Nodes = []seo.NodeOverride{}
	}
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return seo.WorkflowConfig{}, err
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if w.IsDefault {
			if err := clearDefault(ctx, tx, w.UserID, w.ID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO workflow_configs ("+workflowColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
			w.ID, w.UserID, w.Name, nodes, w.IsDefault, w.CreatedAt, w.UpdatedAt)
		if err != nil {
			return fmt.Errorf("creating workflow: %w", err)
		}
		return nil
	})
	if err != nil {
		return seo.WorkflowConfig{}, err
	}
	return w, nil
}

// UpdateWorkflow replaces name, nodes and the default flag of an existing
// config owned by w.UserID.
func (s *Store) UpdateWorkflow(ctx context.Context, w seo.WorkflowConfig) (seo.WorkflowConfig, error) {
	if _, err := uuid.Parse(w.ID); err != nil {
		return seo.WorkflowConfig{}, ErrNotFound
	}
	if w.Nodes == nil {
		w.Nodes = []seo.NodeOverride{}
	}
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return seo.WorkflowConfig{}, err
	}
	w.UpdatedAt = s.now().UTC()

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if w.IsDefault {
			if err := clearDefault(ctx, tx, w.UserID, w.ID); err != nil {
				return err
			}
		}
		err := tx.QueryRow(ctx, `
			UPDATE workflow_configs SET name = $3, nodes = $4, is_default = $5, updated_at = $6
			WHERE id = $1 AND user_id = $2
			RETURNING created_at`,
			w.ID, w.UserID, w.Name, nodes, w.IsDefault, w.UpdatedAt,
		).Scan(&w.CreatedAt)
		if err != nil {
			return notFound(err)
		}
		return nil
	})
	if err != nil {
		return seo.WorkflowConfig{}, err
	}
	return w, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM workflow_configs WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func clearDefault(ctx context.Context, tx pgx.Tx, userID, keepID string) error {
	if _, err := tx.Exec(ctx,
		"UPDATE workflow_configs SET is_default = FALSE WHERE user_id = $1 AND id <> $2 AND is_default", userID, keepID); err != nil {
		return fmt.Errorf("clearing default workflow: %w", err)
	}
	return nil
}
