package agendasdk

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Remote is the slice of the API the store needs. A nil Remote puts the
// store in local-only mode: every change applies locally and nothing is
// pushed.
type Remote interface {
	ListTodos(ctx context.Context) ([]Todo, error)
	CreateTodo(ctx context.Context, title string, dueDate *string, urgency int, workspaceID *string) (Todo, error)
	UpdateTodo(ctx context.Context, id string, fields map[string]any) (Todo, error)
	DeleteTodo(ctx context.Context, id string) error
	AddComment(ctx context.Context, todoID, text string) (Comment, error)
	DeleteComment(ctx context.Context, todoID, commentID string) error
	DeleteWorkspace(ctx context.Context, id string) error
}

const tempIDPrefix = "temp-"

// ErrWorkspaceHasIncomplete rejects deleting a workspace that still has
// unfinished todos. The check happens before any remote call.
var ErrWorkspaceHasIncomplete = errors.New("workspace has incomplete todos")

// Store keeps the local todo list and applies every mutation optimistically:
// the local state changes first, the server call follows, and a failed call
// reverts only the records it touched.
type Store struct {
	remote Remote
	now    func() time.Time

	mu               sync.Mutex
	todos            []Todo
	workspaces       []Workspace
	currentWorkspace string

	appliedGen uint64
	nextGen    uint64

	debounceMu  sync.Mutex
	debounces   map[string]*debounceEntry
	closed      bool
	stopSync    chan struct{}
	stopSyncOne sync.Once
}

type debounceEntry struct {
	gen   uint64
	timer *time.Timer
}

// NewStore creates a store. remote may be nil for local-only use.
func NewStore(remote Remote) *Store {
	return &Store{
		remote:    remote,
		now:       time.Now,
		debounces: map[string]*debounceEntry{},
		stopSync:  make(chan struct{}),
	}
}

func tempID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s%d-%04d", tempIDPrefix, time.Now().UnixNano(), rand.Intn(10000))
	}
	return tempIDPrefix + id.String()
}

// IsTempID reports whether the id was generated locally and never confirmed
// by the server.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Todos returns a snapshot of the local list.
func (s *Store) Todos() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Todo, len(s.todos))
	copy(out, s.todos)
	return out
}

// Get returns a todo by id.
func (s *Store) Get(id string) (Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.todos[i], true
	}
	return Todo{}, false
}

// must be called with s.mu held
func (s *Store) indexOf(id string) int {
	for i := range s.todos {
		if s.todos[i].ID == id {
			return i
		}
	}
	return -1
}

// AddTodo inserts the todo locally with a temporary id, then creates it on
// the server. A failed create removes only the new record.
func (s *Store) AddTodo(ctx context.Context, title string, dueDate *string, urgency int) (Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Todo{}, fmt.Errorf("title is required")
	}
	if urgency < 1 {
		urgency = 1
	}
	now := s.now().UTC().Format(time.RFC3339)
	temp := Todo{
		ID:        tempID(),
		Title:     title,
		DueDate:   dueDate,
		Urgency:   float64(urgency),
		CreatedAt: now,
		UpdatedAt: now,
		Comments:  []Comment{},
	}
	s.mu.Lock()
	s.todos = append(s.todos, temp)
	s.mu.Unlock()

	if s.remote == nil {
		return temp, nil
	}
	created, err := s.remote.CreateTodo(ctx, title, dueDate, urgency, nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(temp.ID)
	if err != nil {
		if i >= 0 {
			s.todos = append(s.todos[:i], s.todos[i+1:]...)
		}
		return Todo{}, err
	}
	if created.Comments == nil {
		created.Comments = []Comment{}
	}
	if i >= 0 {
		s.todos[i] = created
	} else {
		s.todos = append(s.todos, created)
	}
	return created, nil
}

// ToggleTodo flips completion locally, then pushes the change. A failed
// push flips it back.
func (s *Store) ToggleTodo(ctx context.Context, id string) (Todo, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return Todo{}, fmt.Errorf("todo %s not found", id)
	}
	s.todos[i].Completed = !s.todos[i].Completed
	want := s.todos[i].Completed
	s.mu.Unlock()

	if s.remote == nil || IsTempID(id) {
		t, _ := s.Get(id)
		return t, nil
	}
	echo, err := s.remote.UpdateTodo(ctx, id, map[string]any{"completed": want})
	s.mu.Lock()
	defer s.mu.Unlock()
	i = s.indexOf(id)
	if err != nil {
		if i >= 0 {
			s.todos[i].Completed = !want
		}
		return Todo{}, err
	}
	if i >= 0 {
		s.todos[i] = echo
		return echo, nil
	}
	return echo, nil
}

// Reschedule sets a new due date locally, then pushes it. The server echo
// must carry the requested date; anything else reverts the record.
func (s *Store) Reschedule(ctx context.Context, id, dueDate string) (Todo, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return Todo{}, fmt.Errorf("todo %s not found", id)
	}
	prev := s.todos[i].DueDate
	s.todos[i].DueDate = &dueDate
	s.mu.Unlock()

	if s.remote == nil || IsTempID(id) {
		t, _ := s.Get(id)
		return t, nil
	}
	echo, err := s.remote.UpdateTodo(ctx, id, map[string]any{"due_date": dueDate})
	if err == nil && (echo.DueDate == nil || *echo.DueDate != dueDate) {
		err = fmt.Errorf("reschedule of %s not confirmed by server", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i = s.indexOf(id)
	if err != nil {
		if i >= 0 {
			s.todos[i].DueDate = prev
		}
		return Todo{}, err
	}
	if i >= 0 {
		s.todos[i] = echo
	}
	return echo, nil
}

// DeleteTodo removes the todo locally, then on the server. A failed delete
// puts it back where it was.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("todo %s not found", id)
	}
	removed := s.todos[i]
	s.todos = append(s.todos[:i], s.todos[i+1:]...)
	s.mu.Unlock()

	if s.remote == nil || IsTempID(id) {
		return nil
	}
	if err := s.remote.DeleteTodo(ctx, id); err != nil {
		s.mu.Lock()
		if i > len(s.todos) {
			i = len(s.todos)
		}
		s.todos = append(s.todos[:i], append([]Todo{removed}, s.todos[i:]...)...)
		s.mu.Unlock()
		return err
	}
	return nil
}

// AddComment appends a temporary comment, then creates it on the server.
func (s *Store) AddComment(ctx context.Context, todoID, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, fmt.Errorf("text is required")
	}
	temp := Comment{
		ID:        tempID(),
		TodoID:    todoID,
		Text:      text,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	s.mu.Lock()
	i := s.indexOf(todoID)
	if i < 0 {
		s.mu.Unlock()
		return Comment{}, fmt.Errorf("todo %s not found", todoID)
	}
	s.todos[i].Comments = append(s.todos[i].Comments, temp)
	s.mu.Unlock()

	if s.remote == nil || IsTempID(todoID) {
		return temp, nil
	}
	created, err := s.remote.AddComment(ctx, todoID, text)
	s.mu.Lock()
	defer s.mu.Unlock()
	i = s.indexOf(todoID)
	if i < 0 {
		return created, err
	}
	for j := range s.todos[i].Comments {
		if s.todos[i].Comments[j].ID == temp.ID {
			if err != nil {
				s.todos[i].Comments = append(s.todos[i].Comments[:j], s.todos[i].Comments[j+1:]...)
				return Comment{}, err
			}
			s.todos[i].Comments[j] = created
			return created, nil
		}
	}
	return created, err
}

// DeleteComment removes a comment locally, restoring it if the server
// delete fails.
func (s *Store) DeleteComment(ctx context.Context, todoID, commentID string) error {
	s.mu.Lock()
	i := s.indexOf(todoID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("todo %s not found", todoID)
	}
	var removed *Comment
	for j := range s.todos[i].Comments {
		if s.todos[i].Comments[j].ID == commentID {
			c := s.todos[i].Comments[j]
			removed = &c
			s.todos[i].Comments = append(s.todos[i].Comments[:j], s.todos[i].Comments[j+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if removed == nil {
		return fmt.Errorf("comment %s not found", commentID)
	}

	if s.remote == nil || IsTempID(todoID) || IsTempID(commentID) {
		return nil
	}
	if err := s.remote.DeleteComment(ctx, todoID, commentID); err != nil {
		s.mu.Lock()
		if i = s.indexOf(todoID); i >= 0 {
			s.todos[i].Comments = append(s.todos[i].Comments, *removed)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// SetWorkspaces replaces the cached workspace list.
func (s *Store) SetWorkspaces(ws []Workspace) {
	s.mu.Lock()
	s.workspaces = append([]Workspace(nil), ws...)
	s.mu.Unlock()
}

// Workspaces returns a snapshot of the cached workspace list.
func (s *Store) Workspaces() []Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Workspace, len(s.workspaces))
	copy(out, s.workspaces)
	return out
}

// SetCurrentWorkspace records which workspace the caller is looking at.
func (s *Store) SetCurrentWorkspace(id string) {
	s.mu.Lock()
	s.currentWorkspace = id
	s.mu.Unlock()
}

// CurrentWorkspace returns the active workspace id.
func (s *Store) CurrentWorkspace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentWorkspace
}

// DeleteWorkspace removes the workspace and its todos locally, then on the
// server. It refuses outright, before any remote call, when the workspace
// still holds incomplete todos or is the Personal workspace. If the deleted
// workspace was active, another one becomes active; a failed delete restores
// everything, the active pointer included.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	s.mu.Lock()
	for _, w := range s.workspaces {
		if w.ID == id && w.Name == "Personal" {
			s.mu.Unlock()
			return fmt.Errorf("the Personal workspace cannot be deleted")
		}
	}
	for _, t := range s.todos {
		if t.WorkspaceID != nil && *t.WorkspaceID == id && !t.Completed {
			s.mu.Unlock()
			return ErrWorkspaceHasIncomplete
		}
	}
	var keptTodos []Todo
	var removedTodos []Todo
	for _, t := range s.todos {
		if t.WorkspaceID != nil && *t.WorkspaceID == id {
			removedTodos = append(removedTodos, t)
			continue
		}
		keptTodos = append(keptTodos, t)
	}
	var removedWS *Workspace
	var keptWS []Workspace
	for _, w := range s.workspaces {
		if w.ID == id {
			ws := w
			removedWS = &ws
			continue
		}
		keptWS = append(keptWS, w)
	}
	s.todos = keptTodos
	s.workspaces = keptWS
	prevCurrent := s.currentWorkspace
	if s.currentWorkspace == id {
		s.currentWorkspace = ""
		if len(keptWS) > 0 {
			s.currentWorkspace = keptWS[0].ID
		}
	}
	s.mu.Unlock()

	if s.remote == nil {
		return nil
	}
	if err := s.remote.DeleteWorkspace(ctx, id); err != nil {
		s.mu.Lock()
		s.todos = append(s.todos, removedTodos...)
		if removedWS != nil {
			s.workspaces = append(s.workspaces, *removedWS)
		}
		s.currentWorkspace = prevCurrent
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close cancels pending debounced reschedules and stops the sync loop.
func (s *Store) Close() {
	s.debounceMu.Lock()
	s.closed = true
	for _, e := range s.debounces {
		e.timer.Stop()
	}
	s.debounces = map[string]*debounceEntry{}
	s.debounceMu.Unlock()
	s.stopSyncOne.Do(func() { close(s.stopSync) })
}
