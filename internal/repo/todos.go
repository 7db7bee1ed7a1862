package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"agenda/internal/domain"
)

const todoColumns = `id,user_id,workspace_id,title,due_date,urgency,completed,created_at,updated_at`

func scanTodo(scan func(dest ...any) error) (domain.Todo, error) {
	var t domain.Todo
	var workspaceID, dueDate sql.NullString
	var completed int
	err := scan(&t.ID, &t.UserID, &workspaceID, &t.Title, &dueDate, &t.Urgency, &completed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if workspaceID.Valid {
		t.WorkspaceID = &workspaceID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	t.Completed = completed != 0
	return t, nil
}

func (r Repo) InsertTodo(ctx context.Context, tx *sql.Tx, t domain.Todo) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO todos(`+todoColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, nullableStringPtr(t.WorkspaceID), t.Title, nullableStringPtr(t.DueDate),
		t.Urgency, boolInt(t.Completed), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTodo(ctx context.Context, id string) (domain.Todo, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id=?`, id)
	return scanTodo(row.Scan)
}

func (r Repo) GetTodoTx(ctx context.Context, tx *sql.Tx, id string) (domain.Todo, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id=?`, id)
	return scanTodo(row.Scan)
}

type TodoFilters struct {
	UserID      string
	WorkspaceID string
	Completed   *bool
	Limit       int
}

func (r Repo) ListTodos(ctx context.Context, f TodoFilters) ([]domain.Todo, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.Completed != nil {
		clauses = append(clauses, "completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + todoColumns + ` FROM todos ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Todo
	for rows.Next() {
		t, err := scanTodo(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TodoUpdateFields carries a partial todo update. Nil pointers leave the
// column untouched; ClearDueDate and ClearWorkspace null it out.
type TodoUpdateFields struct {
	Title          *string
	DueDate        *string
	ClearDueDate   bool
	Urgency        *float64
	Completed      *bool
	WorkspaceID    *string
	ClearWorkspace bool
	UpdatedAt      string
}

func (r Repo) UpdateTodo(ctx context.Context, tx *sql.Tx, id string, f TodoUpdateFields) error {
	var (
		fields []string
		args   []any
	)
	if f.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *f.Title)
	}
	if f.ClearDueDate {
		fields = append(fields, "due_date=NULL")
	} else if f.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, *f.DueDate)
	}
	if f.Urgency != nil {
		fields = append(fields, "urgency=?")
		args = append(args, *f.Urgency)
	}
	if f.Completed != nil {
		fields = append(fields, "completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	if f.ClearWorkspace {
		fields = append(fields, "workspace_id=NULL")
	} else if f.WorkspaceID != nil {
		fields = append(fields, "workspace_id=?")
		args = append(args, *f.WorkspaceID)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, f.UpdatedAt, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE todos SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTodo(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdoptUnassignedTodos moves a user's workspace-less todos into a workspace.
func (r Repo) AdoptUnassignedTodos(ctx context.Context, tx *sql.Tx, userID, workspaceID, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE todos SET workspace_id=?, updated_at=? WHERE user_id=? AND workspace_id IS NULL`,
		workspaceID, updatedAt, userID)
	return err
}

// RecentTitles returns the newest todo titles for a user in a workspace,
// used as model context during extraction.
func (r Repo) RecentTitles(ctx context.Context, userID, workspaceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT title FROM todos WHERE user_id=? AND workspace_id=? ORDER BY created_at DESC LIMIT ?`,
		userID, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,todo_id,user_id,text,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TodoID, c.UserID, c.Text, c.CreatedAt)
	return err
}

func (r Repo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	var c domain.Comment
	err := r.DB.QueryRowContext(ctx, `SELECT id,todo_id,user_id,text,created_at FROM comments WHERE id=?`, id).
		Scan(&c.ID, &c.TodoID, &c.UserID, &c.Text, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListComments returns a todo's comments oldest-first with author snapshots.
func (r Repo) ListComments(ctx context.Context, todoID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.id,c.todo_id,c.user_id,c.text,c.created_at,u.name,u.avatar_url
FROM comments c LEFT JOIN users u ON u.id=c.user_id WHERE c.todo_id=? ORDER BY c.created_at ASC, c.id ASC`, todoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		var name, avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.TodoID, &c.UserID, &c.Text, &c.CreatedAt, &name, &avatar); err != nil {
			return nil, err
		}
		if name.Valid {
			c.AuthorName = &name.String
		}
		if avatar.Valid {
			c.AuthorAvatar = &avatar.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
