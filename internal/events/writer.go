// Package events appends domain events to the append-only log. Writes ride
// the caller's transaction so an event exists iff its change committed.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type names a domain event, always "<entity>.<verb>".
type Type string

const (
	TodoCreated Type = "todo.created"
	TodoUpdated Type = "todo.updated"
	TodoDeleted Type = "todo.deleted"

	CommentCreated Type = "comment.created"
	CommentDeleted Type = "comment.deleted"

	WorkspaceCreated Type = "workspace.created"
	WorkspaceDeleted Type = "workspace.deleted"

	ReminderCreated   Type = "reminder.created"
	ReminderCancelled Type = "reminder.cancelled"
	ReminderDeleted   Type = "reminder.deleted"
	ReminderSent      Type = "reminder.sent"
)

// EntityKind is the entity segment of the type, "todo" for todo.created.
func (t Type) EntityKind() string {
	kind, _, _ := strings.Cut(string(t), ".")
	return kind
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside tx. workspaceID and entityID may be empty
// for events without that scope.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, typ Type, workspaceID, entityID, userID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,workspace_id,entity_kind,entity_id,user_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, string(typ), nullable(workspaceID), typ.EntityKind(), nullable(entityID), userID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
