package repo

import (
	"context"
	"database/sql"

	"agenda/internal/domain"
)

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workspaces(id,name,owner_id,created_at,updated_at) VALUES (?,?,?,?,?)`,
		w.ID, w.Name, w.OwnerID, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	var w domain.Workspace
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,owner_id,created_at,updated_at FROM workspaces WHERE id=?`, id).
		Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

// FindWorkspaceByMemberAndName looks up a workspace the user belongs to by
// exact name. Used for the lazy personal workspace.
func (r Repo) FindWorkspaceByMemberAndName(ctx context.Context, userID, name string) (domain.Workspace, error) {
	var w domain.Workspace
	err := r.DB.QueryRowContext(ctx, `SELECT w.id,w.name,w.owner_id,w.created_at,w.updated_at
FROM workspaces w JOIN workspace_members m ON m.workspace_id=w.id
WHERE m.user_id=? AND w.name=? ORDER BY w.created_at ASC LIMIT 1`, userID, name).
		Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

// ListWorkspaces returns all workspaces the user is a member of.
func (r Repo) ListWorkspaces(ctx context.Context, userID string) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT w.id,w.name,w.owner_id,w.created_at,w.updated_at
FROM workspaces w JOIN workspace_members m ON m.workspace_id=w.id
WHERE m.user_id=? ORDER BY w.created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// CountOwnedWorkspaces counts workspaces owned by the user, for plan limits.
func (r Repo) CountOwnedWorkspaces(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM workspaces WHERE owner_id=?`, userID).Scan(&n)
	return n, err
}

func (r Repo) InsertWorkspaceMember(ctx context.Context, tx *sql.Tx, m domain.WorkspaceMember) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO workspace_members(workspace_id,user_id,role,joined_at) VALUES (?,?,?,?)`,
		m.WorkspaceID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM workspace_members WHERE workspace_id=? AND user_id=? LIMIT 1`,
		workspaceID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteWorkspaceCascade removes members, todos, then the workspace itself
// inside the caller's transaction.
func (r Repo) DeleteWorkspaceCascade(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM workspace_members WHERE workspace_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE workspace_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
