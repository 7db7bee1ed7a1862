package repo

import (
	"context"
	"database/sql"

	"agenda/internal/domain"
)

const eventColumns = `id,ts,type,workspace_id,entity_kind,entity_id,user_id,payload_json`

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var workspaceID, entityID sql.NullString
	err := scan(&e.ID, &e.TS, &e.Type, &workspaceID, &e.EntityKind, &entityID, &e.UserID, &e.Payload)
	if err != nil {
		return e, err
	}
	e.WorkspaceID = workspaceID.String
	e.EntityID = entityID.String
	return e, nil
}

// EventsAfter returns events with id greater than cursor, oldest first.
// An empty workspaceID returns events across all workspaces.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, workspaceID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE id>?`
	args := []any{cursor}
	if workspaceID != "" {
		query += ` AND workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the id of the newest event, or 0 when there are none.
func (r Repo) LatestEventID(ctx context.Context, workspaceID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	args := []any{}
	if workspaceID != "" {
		query += ` WHERE workspace_id=?`
		args = append(args, workspaceID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}
