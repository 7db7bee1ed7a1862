package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agenda/internal/config"
	"agenda/internal/db"
	"agenda/internal/domain"
	"agenda/internal/engine"
	"agenda/internal/llm"
	"agenda/internal/migrate"
	"agenda/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Repo.EnsureUser(ctx, nil, "u1", "u1@example.com", "2024-06-01T00:00:00Z"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := eng.Repo.EnsureUser(ctx, nil, "u2", "u2@example.com", "2024-06-01T00:00:00Z"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestCreateTodoFallsBackToPersonalWorkspace(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "  Buy milk  "})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if todo.Title != "Buy milk" {
		t.Fatalf("expected trimmed title, got %q", todo.Title)
	}
	if todo.WorkspaceID == nil {
		t.Fatalf("expected workspace assignment")
	}
	w, err := env.Engine.Repo.GetWorkspace(env.Ctx, *todo.WorkspaceID)
	if err != nil || w.Name != "Personal" {
		t.Fatalf("expected Personal workspace, got %+v err=%v", w, err)
	}
	if todo.Urgency != 1 {
		t.Fatalf("expected default urgency 1, got %v", todo.Urgency)
	}
}

func TestPersonalWorkspaceAdoptsUnassignedTodos(t *testing.T) {
	env := newTestEnv(t)
	// a pre-existing todo with no workspace
	orphan := domain.Todo{
		ID: "orphan-1", UserID: "u1", Title: "old one", Urgency: 1,
		CreatedAt: "2024-05-01T00:00:00Z", UpdatedAt: "2024-05-01T00:00:00Z",
	}
	tx, _ := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err := env.Engine.Repo.InsertTodo(env.Ctx, tx, orphan); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}
	tx.Commit()

	w, err := env.Engine.EnsurePersonalWorkspace(env.Ctx, "u1")
	if err != nil {
		t.Fatalf("ensure personal: %v", err)
	}
	got, err := env.Engine.Repo.GetTodo(env.Ctx, "orphan-1")
	if err != nil {
		t.Fatalf("get orphan: %v", err)
	}
	if got.WorkspaceID == nil || *got.WorkspaceID != w.ID {
		t.Fatalf("expected orphan adopted into %s, got %+v", w.ID, got.WorkspaceID)
	}
}

func TestEnsurePersonalWorkspaceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	w1, err := env.Engine.EnsurePersonalWorkspace(env.Ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	w2, err := env.Engine.EnsurePersonalWorkspace(env.Ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if w1.ID != w2.ID {
		t.Fatalf("expected same workspace, got %s and %s", w1.ID, w2.ID)
	}
}

func TestWorkspaceLimitForFreePlan(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.EnsurePersonalWorkspace(env.Ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Work", "Side project"} {
		if _, err := env.Engine.CreateWorkspace(env.Ctx, "u1", name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	_, err := env.Engine.CreateWorkspace(env.Ctx, "u1", "One too many")
	if !errors.Is(err, engine.ErrWorkspaceLimit) {
		t.Fatalf("expected workspace limit error, got %v", err)
	}
}

func TestWorkspaceLimitForProPlan(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.InsertSubscription(env.Ctx, domain.Subscription{
		ID: "sub-1", UserID: "u1", Plan: "pro", Status: "active",
	}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		if _, err := env.Engine.CreateWorkspace(env.Ctx, "u1", name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	_, err := env.Engine.CreateWorkspace(env.Ctx, "u1", "F")
	if !errors.Is(err, engine.ErrWorkspaceLimit) {
		t.Fatalf("expected workspace limit error, got %v", err)
	}
}

func TestDeleteWorkspaceOwnerOnlyCascade(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWorkspace(env.Ctx, "u1", "Shared")
	if err != nil {
		t.Fatal(err)
	}
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "inside", WorkspaceID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteWorkspace(env.Ctx, w.ID, "u2"); !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("expected owner-only error, got %v", err)
	}
	if err := env.Engine.DeleteWorkspace(env.Ctx, w.ID, "u1"); err != nil {
		t.Fatalf("delete by owner: %v", err)
	}
	if _, err := env.Engine.Repo.GetTodo(env.Ctx, todo.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected todo removed by cascade, got %v", err)
	}
	if _, err := env.Engine.Repo.GetWorkspace(env.Ctx, w.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected workspace removed, got %v", err)
	}
}

func TestPersonalWorkspaceCannotBeDeleted(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.EnsurePersonalWorkspace(env.Ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteWorkspace(env.Ctx, w.ID, "u1"); !errors.Is(err, engine.ErrPersonalWorkspace) {
		t.Fatalf("expected personal workspace guard, got %v", err)
	}
	if _, err := env.Engine.Repo.GetWorkspace(env.Ctx, w.ID); err != nil {
		t.Fatalf("workspace should still exist: %v", err)
	}
}

func TestTodoUpdatePartialAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "tidy desk"})
	if err != nil {
		t.Fatal(err)
	}
	done := true
	updated, err := env.Engine.UpdateTodo(env.Ctx, engine.TodoUpdateOptions{ID: todo.ID, UserID: "u1", Completed: &done})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Completed {
		t.Fatalf("expected completed")
	}
	if updated.Title != "tidy desk" {
		t.Fatalf("partial update must not touch title, got %q", updated.Title)
	}
	// a different user must not even see the todo
	_, err = env.Engine.UpdateTodo(env.Ctx, engine.TodoUpdateOptions{ID: todo.ID, UserID: "u2", Completed: &done})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for non-owner, got %v", err)
	}
}

func TestTodoUpdateClearsDueDate(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "dated", DueDate: "2024-06-10T09:00:00"})
	if err != nil {
		t.Fatal(err)
	}
	empty := ""
	updated, err := env.Engine.UpdateTodo(env.Ctx, engine.TodoUpdateOptions{ID: todo.ID, UserID: "u1", DueDate: &empty, DueDateSet: true})
	if err != nil {
		t.Fatal(err)
	}
	if updated.DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", *updated.DueDate)
	}
}

func TestCommentsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "discuss"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.AddComment(env.Ctx, todo.ID, "u1", "first!")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	got, err := env.Engine.GetTodo(env.Ctx, todo.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != 1 || got.Comments[0].Text != "first!" {
		t.Fatalf("expected one comment, got %+v", got.Comments)
	}
	// only the author can delete
	if err := env.Engine.DeleteComment(env.Ctx, todo.ID, c.ID, "u2"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for non-author, got %v", err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, todo.ID, c.ID, "u1"); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
}

func TestReminderCommentCodec(t *testing.T) {
	text := engine.EncodeReminderComment("Reminder set for Friday", "rem-1", "2024-06-07T09:00:00Z")
	summary, id, iso, ok := engine.ParseReminderComment(text)
	if !ok {
		t.Fatalf("expected sentinel comment to parse")
	}
	if summary != "Reminder set for Friday" || id != "rem-1" || iso != "2024-06-07T09:00:00Z" {
		t.Fatalf("round trip mismatch: %q %q %q", summary, id, iso)
	}
	if _, _, _, ok := engine.ParseReminderComment("just a normal comment"); ok {
		t.Fatalf("ordinary text must not parse as reminder")
	}
}

func TestCreateReminderWritesReminderAndMarkerComment(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "File taxes", DueDate: "2024-06-10T09:00:00"})
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Completer = &llm.Fake{Responses: []string{
		`<reminder_title>Tax filing</reminder_title><reminder_description>Deadline approaching.</reminder_description><reminder_time>June 10 at 8am</reminder_time><reminder_summary>Reminder set for June 10</reminder_summary>`,
		`<TIME>2024-06-10 08:00:00</TIME>`,
	}}
	env.Engine.Resolver = &llm.Resolver{Completer: env.Engine.Completer, Model: "m", Now: env.Engine.Now}

	rem, err := env.Engine.CreateReminder(env.Ctx, todo.ID, "u1", "remind me an hour before")
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if rem.Status != "pending" {
		t.Fatalf("expected pending, got %s", rem.Status)
	}
	got, err := env.Engine.GetTodo(env.Ctx, todo.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != 1 {
		t.Fatalf("expected marker comment, got %d", len(got.Comments))
	}
	summary, id, _, ok := engine.ParseReminderComment(got.Comments[0].Text)
	if !ok || id != rem.ID || summary == "" {
		t.Fatalf("marker comment malformed: %q", got.Comments[0].Text)
	}
}

func TestCreateReminderRejectsMalformedModelOutput(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "no reminder"})
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Completer = &llm.Fake{Responses: []string{"I cannot do tags, sorry"}}
	env.Engine.Resolver = &llm.Resolver{Completer: env.Engine.Completer, Model: "m", Now: env.Engine.Now}
	if _, err := env.Engine.CreateReminder(env.Ctx, todo.ID, "u1", "remind me"); err == nil {
		t.Fatalf("expected error on malformed output")
	}
	got, _ := env.Engine.GetTodo(env.Ctx, todo.ID, "u1")
	if len(got.Comments) != 0 {
		t.Fatalf("nothing should be written on failure")
	}
	rems, _ := env.Engine.ListReminders(env.Ctx, "u1", "")
	if len(rems) != 0 {
		t.Fatalf("nothing should be written on failure")
	}
}

type recordingNotifier struct {
	sent []string
	fail map[string]bool
}

func (n *recordingNotifier) Notify(_ context.Context, rem domain.Reminder) error {
	if n.fail[rem.ID] {
		return errors.New("delivery failed")
	}
	n.sent = append(n.sent, rem.ID)
	return nil
}

func TestDispatchDueSkipsFailedDeliveries(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "parent"})
	if err != nil {
		t.Fatalf("seed todo: %v", err)
	}
	seed := func(id, when string) {
		tx, _ := env.Engine.DB.BeginTx(env.Ctx, nil)
		if err := env.Engine.Repo.InsertReminder(env.Ctx, tx, domain.Reminder{
			ID: id, TodoID: todo.ID, UserID: "u1", Title: "r", ReminderTime: when,
			Status: "pending", CreatedAt: when, UpdatedAt: when,
		}); err != nil {
			t.Fatalf("seed reminder: %v", err)
		}
		tx.Commit()
	}
	seed("rem-ok", "2024-06-01T10:00:00Z")
	seed("rem-bad", "2024-06-01T11:00:00Z")
	seed("rem-future", "2024-06-02T10:00:00Z")

	n := &recordingNotifier{fail: map[string]bool{"rem-bad": true}}
	env.Engine.Notifier = n
	sent, err := env.Engine.DispatchDue(env.Ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 1 || len(n.sent) != 1 || n.sent[0] != "rem-ok" {
		t.Fatalf("expected only rem-ok delivered, got sent=%d %v", sent, n.sent)
	}
	ok, _ := env.Engine.Repo.GetReminder(env.Ctx, "rem-ok")
	if ok.Status != "sent" {
		t.Fatalf("expected rem-ok sent, got %s", ok.Status)
	}
	bad, _ := env.Engine.Repo.GetReminder(env.Ctx, "rem-bad")
	if bad.Status != "pending" {
		t.Fatalf("failed delivery must stay pending, got %s", bad.Status)
	}
}

func TestCancelReminderIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "parent"})
	if err != nil {
		t.Fatalf("seed todo: %v", err)
	}
	tx, _ := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err := env.Engine.Repo.InsertReminder(env.Ctx, tx, domain.Reminder{
		ID: "rem-1", TodoID: todo.ID, UserID: "u1", Title: "r", ReminderTime: "2024-06-02T10:00:00Z",
		Status: "pending", CreatedAt: "2024-06-01T00:00:00Z", UpdatedAt: "2024-06-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	tx.Commit()
	rem, err := env.Engine.CancelReminder(env.Ctx, "rem-1", "u1")
	if err != nil || rem.Status != "cancelled" {
		t.Fatalf("cancel: %v status=%s", err, rem.Status)
	}
	if _, err := env.Engine.CancelReminder(env.Ctx, "rem-1", "u1"); err == nil {
		t.Fatalf("expected terminal state error")
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.GetSettings(env.Ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if s.ReminderMinutes != 30 || s.Timezone != "UTC" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	tz := "Europe/Paris"
	mins := 15
	s, err = env.Engine.UpdateSettings(env.Ctx, "u1", engine.SettingsUpdate{Timezone: &tz, ReminderMinutes: &mins})
	if err != nil {
		t.Fatal(err)
	}
	if s.Timezone != tz || s.ReminderMinutes != 15 {
		t.Fatalf("update not applied: %+v", s)
	}
	bad := "Not/AZone"
	if _, err := env.Engine.UpdateSettings(env.Ctx, "u1", engine.SettingsUpdate{Timezone: &bad}); err == nil {
		t.Fatalf("expected timezone validation error")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	todo, err := env.Engine.CreateTodo(env.Ctx, engine.TodoCreateOptions{UserID: "u1", Title: "evented"})
	if err != nil {
		t.Fatal(err)
	}
	done := true
	_, _ = env.Engine.UpdateTodo(env.Ctx, engine.TodoUpdateOptions{ID: todo.ID, UserID: "u1", Completed: &done})
	_ = env.Engine.DeleteTodo(env.Ctx, todo.ID, "u1")
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, todo.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 3 {
		t.Fatalf("expected create/update/delete events, got %d", count)
	}
}
