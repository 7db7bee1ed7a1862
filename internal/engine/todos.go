package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/repo"
)

// TodoCreateOptions are parameters for creating a todo.
type TodoCreateOptions struct {
	UserID      string
	Title       string
	DueDate     string
	Urgency     float64
	WorkspaceID string
}

func (e Engine) CreateTodo(ctx context.Context, opts TodoCreateOptions) (domain.Todo, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Todo{}, errors.New("title is required")
	}
	if len(title) > 500 {
		return domain.Todo{}, errors.New("title must be at most 500 characters")
	}
	if opts.UserID == "" {
		return domain.Todo{}, errors.New("user is required")
	}
	urgency := opts.Urgency
	if urgency == 0 {
		urgency = 1
	}
	if urgency < 1 {
		urgency = 1
	}
	if urgency > 5 {
		urgency = 5
	}

	workspaceID := opts.WorkspaceID
	if workspaceID == "" {
		w, err := e.EnsurePersonalWorkspace(ctx, opts.UserID)
		if err != nil {
			return domain.Todo{}, err
		}
		workspaceID = w.ID
	} else if err := e.requireMembership(ctx, workspaceID, opts.UserID); err != nil {
		return domain.Todo{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Todo{
		ID:          uuid.New().String(),
		UserID:      opts.UserID,
		WorkspaceID: &workspaceID,
		Title:       title,
		DueDate:     optionalString(opts.DueDate),
		Urgency:     urgency,
		CreatedAt:   now,
		UpdatedAt:   now,
		Comments:    []domain.Comment{},
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Todo{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTodo(ctx, tx, t); err != nil {
		return domain.Todo{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TodoCreated, workspaceID, t.ID, opts.UserID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Todo{}, err
	}
	return t, nil
}

// TodoUpdateOptions encapsulates allowed partial updates.
type TodoUpdateOptions struct {
	ID             string
	UserID         string
	Completed      *bool
	DueDate        *string
	DueDateSet     bool
	WorkspaceID    *string
	WorkspaceIDSet bool
}

func (e Engine) UpdateTodo(ctx context.Context, opts TodoUpdateOptions) (domain.Todo, error) {
	t, err := e.ownedTodo(ctx, opts.ID, opts.UserID)
	if err != nil {
		return t, err
	}
	fields := repo.TodoUpdateFields{UpdatedAt: e.now().UTC().Format(time.RFC3339)}
	fields.Completed = opts.Completed
	if opts.DueDateSet {
		if opts.DueDate == nil || *opts.DueDate == "" {
			fields.ClearDueDate = true
		} else {
			fields.DueDate = opts.DueDate
		}
	}
	if opts.WorkspaceIDSet {
		if opts.WorkspaceID == nil || *opts.WorkspaceID == "" {
			fields.ClearWorkspace = true
		} else {
			if err := e.requireMembership(ctx, *opts.WorkspaceID, opts.UserID); err != nil {
				return t, err
			}
			fields.WorkspaceID = opts.WorkspaceID
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTodo(ctx, tx, t.ID, fields); err != nil {
		return t, err
	}
	updated, err := e.Repo.GetTodoTx(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	wsID := ""
	if updated.WorkspaceID != nil {
		wsID = *updated.WorkspaceID
	}
	if err := e.Events.Append(ctx, tx, events.TodoUpdated, wsID, t.ID, opts.UserID, events.EventPayload{"completed": updated.Completed}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	updated.Comments, err = e.Repo.ListComments(ctx, updated.ID)
	if err != nil {
		return updated, err
	}
	if updated.Comments == nil {
		updated.Comments = []domain.Comment{}
	}
	return updated, nil
}

func (e Engine) DeleteTodo(ctx context.Context, id, userID string) error {
	t, err := e.ownedTodo(ctx, id, userID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTodo(ctx, tx, id); err != nil {
		return err
	}
	wsID := ""
	if t.WorkspaceID != nil {
		wsID = *t.WorkspaceID
	}
	if err := e.Events.Append(ctx, tx, events.TodoDeleted, wsID, id, userID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTodos returns the user's todos with their comments attached.
func (e Engine) ListTodos(ctx context.Context, userID, workspaceID string) ([]domain.Todo, error) {
	todos, err := e.Repo.ListTodos(ctx, repo.TodoFilters{UserID: userID, WorkspaceID: workspaceID})
	if err != nil {
		return nil, err
	}
	for i := range todos {
		comments, err := e.Repo.ListComments(ctx, todos[i].ID)
		if err != nil {
			return nil, err
		}
		if comments == nil {
			comments = []domain.Comment{}
		}
		todos[i].Comments = comments
	}
	return todos, nil
}

// GetTodo fetches a single owned todo with comments.
func (e Engine) GetTodo(ctx context.Context, id, userID string) (domain.Todo, error) {
	t, err := e.ownedTodo(ctx, id, userID)
	if err != nil {
		return t, err
	}
	t.Comments, err = e.Repo.ListComments(ctx, t.ID)
	if err != nil {
		return t, err
	}
	if t.Comments == nil {
		t.Comments = []domain.Comment{}
	}
	return t, nil
}

func (e Engine) AddComment(ctx context.Context, todoID, userID, text string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, errors.New("text is required")
	}
	if len(text) > 1000 {
		return domain.Comment{}, errors.New("text must be at most 1000 characters")
	}
	t, err := e.ownedTodo(ctx, todoID, userID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.New().String(),
		TodoID:    t.ID,
		UserID:    userID,
		Text:      text,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return c, err
	}
	wsID := ""
	if t.WorkspaceID != nil {
		wsID = *t.WorkspaceID
	}
	if err := e.Events.Append(ctx, tx, events.CommentCreated, wsID, c.ID, userID, events.EventPayload{"todo_id": t.ID}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) DeleteComment(ctx context.Context, todoID, commentID, userID string) error {
	c, err := e.Repo.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.TodoID != todoID || c.UserID != userID {
		return repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteComment(ctx, tx, commentID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.CommentDeleted, "", commentID, userID, events.EventPayload{"todo_id": todoID}); err != nil {
		return err
	}
	return tx.Commit()
}

// ownedTodo fetches a todo and hides it from non-owners.
func (e Engine) ownedTodo(ctx context.Context, id, userID string) (domain.Todo, error) {
	t, err := e.Repo.GetTodo(ctx, id)
	if err != nil {
		return t, err
	}
	if t.UserID != userID {
		return domain.Todo{}, repo.ErrNotFound
	}
	return t, nil
}
