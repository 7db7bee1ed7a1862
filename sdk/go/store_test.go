package agendasdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeRemote struct {
	mu     sync.Mutex
	todos  []Todo
	nextID int

	failCreate bool
	failUpdate bool
	failDelete bool
	echoDate   *string // overrides the due date echoed by UpdateTodo

	updates []map[string]any
}

func (f *fakeRemote) ListTodos(_ context.Context) ([]Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Todo, len(f.todos))
	copy(out, f.todos)
	return out, nil
}

func (f *fakeRemote) CreateTodo(_ context.Context, title string, dueDate *string, urgency int, _ *string) (Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return Todo{}, errors.New("create failed")
	}
	f.nextID++
	t := Todo{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		Title:     title,
		DueDate:   dueDate,
		Urgency:   float64(urgency),
		CreatedAt: "2024-06-01T00:00:00Z",
		UpdatedAt: "2024-06-01T00:00:00Z",
		Comments:  []Comment{},
	}
	f.todos = append(f.todos, t)
	return t, nil
}

func (f *fakeRemote) UpdateTodo(_ context.Context, id string, fields map[string]any) (Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return Todo{}, errors.New("update failed")
	}
	f.updates = append(f.updates, fields)
	for i := range f.todos {
		if f.todos[i].ID != id {
			continue
		}
		if v, ok := fields["completed"].(bool); ok {
			f.todos[i].Completed = v
		}
		switch v := fields["due_date"].(type) {
		case string:
			d := v
			f.todos[i].DueDate = &d
		case *string:
			f.todos[i].DueDate = v
		}
		if f.echoDate != nil {
			f.todos[i].DueDate = f.echoDate
		}
		return f.todos[i], nil
	}
	return Todo{}, errors.New("not found")
}

func (f *fakeRemote) DeleteTodo(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("delete failed")
	}
	for i := range f.todos {
		if f.todos[i].ID == id {
			f.todos = append(f.todos[:i], f.todos[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeRemote) AddComment(_ context.Context, todoID, text string) (Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return Comment{}, errors.New("create failed")
	}
	f.nextID++
	return Comment{ID: fmt.Sprintf("srv-c-%d", f.nextID), TodoID: todoID, Text: text}, nil
}

func (f *fakeRemote) DeleteComment(_ context.Context, _, _ string) error {
	if f.failDelete {
		return errors.New("delete failed")
	}
	return nil
}

func (f *fakeRemote) DeleteWorkspace(_ context.Context, _ string) error {
	if f.failDelete {
		return errors.New("delete failed")
	}
	return nil
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newStore(remote Remote) *Store {
	s := NewStore(remote)
	s.now = fixedNow
	return s
}

func TestAddTodoReplacesTempID(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	created, err := s.AddTodo(context.Background(), "Buy milk", nil, 2)
	require.NoError(t, err)
	assert.False(t, IsTempID(created.ID))
	todos := s.Todos()
	require.Len(t, todos, 1)
	assert.Equal(t, created.ID, todos[0].ID)
}

func TestAddTodoRevertsOnFailure(t *testing.T) {
	remote := &fakeRemote{failCreate: true}
	s := newStore(remote)
	_, err := s.AddTodo(context.Background(), "Buy milk", nil, 1)
	require.Error(t, err)
	assert.Empty(t, s.Todos(), "failed create must remove the optimistic record")
}

func TestToggleRevertsOnFailure(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	created, err := s.AddTodo(context.Background(), "Buy milk", nil, 1)
	require.NoError(t, err)

	remote.failUpdate = true
	_, err = s.ToggleTodo(context.Background(), created.ID)
	require.Error(t, err)
	got, ok := s.Get(created.ID)
	require.True(t, ok)
	assert.False(t, got.Completed, "failed toggle must flip back")
}

func TestToggleOnlyTouchesTargetTodo(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	a, _ := s.AddTodo(context.Background(), "a", nil, 1)
	b, _ := s.AddTodo(context.Background(), "b", nil, 1)

	remote.failUpdate = true
	_, _ = s.ToggleTodo(context.Background(), a.ID)
	got, _ := s.Get(b.ID)
	assert.False(t, got.Completed)
	assert.Equal(t, "b", got.Title)
}

func TestRescheduleRequiresMatchingEcho(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	orig := "2024-06-02T00:00:00.000Z"
	created, err := s.AddTodo(context.Background(), "Buy milk", &orig, 1)
	require.NoError(t, err)

	other := "2024-12-31T00:00:00.000Z"
	remote.echoDate = &other
	_, err = s.Reschedule(context.Background(), created.ID, "2024-06-05T00:00:00.000Z")
	require.Error(t, err)
	got, _ := s.Get(created.ID)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, orig, *got.DueDate, "mismatched echo must revert the local date")
}

func TestDeleteTodoRestoresOnFailure(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	created, err := s.AddTodo(context.Background(), "Buy milk", nil, 1)
	require.NoError(t, err)

	remote.failDelete = true
	err = s.DeleteTodo(context.Background(), created.ID)
	require.Error(t, err)
	_, ok := s.Get(created.ID)
	assert.True(t, ok, "failed delete must restore the record")
}

func TestDeleteWorkspaceRestoresOnFailure(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	ws := "ws-1"
	created, err := s.AddTodo(context.Background(), "in workspace", nil, 1)
	require.NoError(t, err)
	s.mu.Lock()
	s.todos[0].WorkspaceID = &ws
	s.todos[0].Completed = true
	s.mu.Unlock()
	s.SetWorkspaces([]Workspace{{ID: ws, Name: "Team"}, {ID: "ws-2", Name: "Other"}})
	s.SetCurrentWorkspace(ws)

	remote.failDelete = true
	err = s.DeleteWorkspace(context.Background(), ws)
	require.Error(t, err)
	_, ok := s.Get(created.ID)
	assert.True(t, ok)
	assert.Len(t, s.Workspaces(), 2)
	assert.Equal(t, ws, s.CurrentWorkspace(), "failed delete must restore the active pointer")
}

func TestDeleteWorkspaceRefusesIncompleteTodos(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	ws := "ws-1"
	_, err := s.AddTodo(context.Background(), "still open", nil, 1)
	require.NoError(t, err)
	s.mu.Lock()
	s.todos[0].WorkspaceID = &ws
	s.mu.Unlock()
	s.SetWorkspaces([]Workspace{{ID: ws, Name: "Team"}})

	err = s.DeleteWorkspace(context.Background(), ws)
	require.ErrorIs(t, err, ErrWorkspaceHasIncomplete)
	assert.Len(t, s.Workspaces(), 1, "guard must leave everything in place")
	assert.Len(t, s.Todos(), 1)
}

func TestDeleteWorkspaceRefusesPersonal(t *testing.T) {
	s := newStore(&fakeRemote{})
	s.SetWorkspaces([]Workspace{{ID: "ws-p", Name: "Personal"}})
	err := s.DeleteWorkspace(context.Background(), "ws-p")
	require.Error(t, err)
	assert.Len(t, s.Workspaces(), 1)
}

func TestDeleteWorkspaceSwitchesActive(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	s.SetWorkspaces([]Workspace{{ID: "ws-1", Name: "Team"}, {ID: "ws-2", Name: "Other"}})
	s.SetCurrentWorkspace("ws-1")
	require.NoError(t, s.DeleteWorkspace(context.Background(), "ws-1"))
	assert.Equal(t, "ws-2", s.CurrentWorkspace())
}

func TestLocalOnlyModeNeverCallsRemote(t *testing.T) {
	s := newStore(nil)
	created, err := s.AddTodo(context.Background(), "offline", nil, 1)
	require.NoError(t, err)
	assert.True(t, IsTempID(created.ID))
	_, err = s.ToggleTodo(context.Background(), created.ID)
	require.NoError(t, err)
	require.NoError(t, s.DeleteTodo(context.Background(), created.ID))
	assert.Empty(t, s.Todos())
}

func TestSyncPushesLocalOnlyTodos(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(nil)
	_, err := s.AddTodo(context.Background(), "made offline", nil, 2)
	require.NoError(t, err)

	s.remote = remote
	require.NoError(t, s.SyncWithServer(context.Background()))
	todos := s.Todos()
	require.Len(t, todos, 1)
	assert.False(t, IsTempID(todos[0].ID), "pushed todo must carry the server id")
	assert.Equal(t, "made offline", todos[0].Title)
}

func TestSyncDedupesByFingerprintLaterEntryWins(t *testing.T) {
	due := "2024-06-05T00:00:00.000Z"
	remote := &fakeRemote{todos: []Todo{
		{ID: "srv-a", Title: "  Buy Milk ", DueDate: &due, Urgency: 2,
			CreatedAt: "2024-06-01T00:00:00Z", UpdatedAt: "2024-06-01T10:00:00Z"},
		{ID: "srv-b", Title: "buy milk", DueDate: &due, Urgency: 2,
			CreatedAt: "2024-06-01T00:00:00Z", UpdatedAt: "2024-06-01T09:00:00Z"},
	}}
	s := newStore(remote)

	require.NoError(t, s.SyncWithServer(context.Background()))
	todos := s.Todos()
	require.Len(t, todos, 1, "same fingerprint must collapse to one record")
	assert.Equal(t, "srv-b", todos[0].ID, "the later list entry wins regardless of timestamps")
}

func TestSyncPushesLocalFieldChanges(t *testing.T) {
	due := "2024-06-05T00:00:00.000Z"
	remote := &fakeRemote{todos: []Todo{
		{ID: "srv-1", Title: "buy milk", DueDate: &due, Urgency: 2,
			CreatedAt: "2024-06-01T00:00:00Z", UpdatedAt: "2024-06-01T09:00:00Z"},
	}}
	s := newStore(remote)
	moved := "2024-06-07T00:00:00.000Z"
	s.mu.Lock()
	s.todos = []Todo{
		{ID: "srv-1", Title: "buy milk", DueDate: &moved, Urgency: 2, Completed: true,
			CreatedAt: "2024-06-01T00:00:00Z", UpdatedAt: "2024-06-01T09:00:00Z"},
	}
	s.mu.Unlock()

	require.NoError(t, s.SyncWithServer(context.Background()))
	remote.mu.Lock()
	require.Len(t, remote.updates, 1, "differing fields must be pushed, not dropped")
	assert.Equal(t, true, remote.updates[0]["completed"])
	assert.Equal(t, &moved, remote.updates[0]["due_date"])
	remote.mu.Unlock()

	todos := s.Todos()
	require.Len(t, todos, 1)
	assert.True(t, todos[0].Completed, "the settled server view carries the change")
}

func TestSyncLeavesMatchingTodosUntouched(t *testing.T) {
	due := "2024-06-05T00:00:00.000Z"
	remote := &fakeRemote{todos: []Todo{
		{ID: "srv-1", Title: "buy milk", DueDate: &due, Urgency: 2,
			CreatedAt: "2024-06-01T00:00:00Z", UpdatedAt: "2024-06-01T09:00:00Z"},
	}}
	s := newStore(remote)
	require.NoError(t, s.SyncWithServer(context.Background()))
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Empty(t, remote.updates, "no diff, no write")
	assert.Equal(t, 0, remote.nextID, "no creates either")
}

func TestFingerprintNormalizesTitleAndUrgency(t *testing.T) {
	due := "2024-06-05T00:00:00.000Z"
	a := Todo{Title: "  Buy Milk ", DueDate: &due, Urgency: 1}
	b := Todo{Title: "buy milk", DueDate: &due} // zero urgency defaults to 1
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestDropDateMapping(t *testing.T) {
	now := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	for _, tc := range []struct {
		destination string
		want        string
	}{
		{"desktop-0", "2024-06-01T00:00:00.000Z"},
		{"desktop-1", "2024-06-04T00:00:00.000Z"},
		{"desktop-2", "2024-06-15T00:00:00.000Z"},
		{"tablet-0", "2024-06-01T00:00:00.000Z"},
		{"tablet-1", "2024-06-08T00:00:00.000Z"},
	} {
		got, ok, err := DropDate(tc.destination, now)
		require.NoError(t, err, tc.destination)
		require.True(t, ok, tc.destination)
		assert.Equal(t, tc.want, got, tc.destination)
	}

	// a bare column index is the single-column layout: no date change
	got, ok, err := DropDate("0", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	_, _, err = DropDate("desktop-9", now)
	assert.Error(t, err)
	_, _, err = DropDate("fridge-0", now)
	assert.Error(t, err)
}

func TestHandleDropSingleColumnIsReorderOnly(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	due := "2024-06-09T00:00:00.000Z"
	created, err := s.AddTodo(context.Background(), "dragged", &due, 1)
	require.NoError(t, err)

	require.NoError(t, s.HandleDrop(context.Background(), created.ID, "2"))
	time.Sleep(2 * rescheduleDebounce)

	got, _ := s.Get(created.ID)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, due, *got.DueDate, "single-column drop must not reschedule")
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Empty(t, remote.updates)
}

func TestHandleDropDebouncesToFinalColumn(t *testing.T) {
	remote := &fakeRemote{}
	s := newStore(remote)
	created, err := s.AddTodo(context.Background(), "dragged", nil, 1)
	require.NoError(t, err)

	require.NoError(t, s.HandleDrop(context.Background(), created.ID, "desktop-1"))
	require.NoError(t, s.HandleDrop(context.Background(), created.ID, "desktop-2"))

	// only the final column should reach the server, once
	assert.Eventually(t, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return len(remote.updates) == 1
	}, 2*time.Second, 20*time.Millisecond)
	remote.mu.Lock()
	assert.Equal(t, "2024-06-15T00:00:00.000Z", remote.updates[0]["due_date"])
	remote.mu.Unlock()

	got, _ := s.Get(created.ID)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2024-06-15T00:00:00.000Z", *got.DueDate)
}

func TestCloseCancelsPendingDrop(t *testing.T) {
	defer goleak.VerifyNone(t)
	remote := &fakeRemote{}
	s := newStore(remote)
	created, err := s.AddTodo(context.Background(), "dragged", nil, 1)
	require.NoError(t, err)

	require.NoError(t, s.HandleDrop(context.Background(), created.ID, "desktop-1"))
	s.Close()
	time.Sleep(2 * rescheduleDebounce)
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Empty(t, remote.updates, "close must cancel the pending push")
}
