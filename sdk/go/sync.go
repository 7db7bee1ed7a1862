package agendasdk

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const syncInterval = 5 * time.Minute

// Fingerprint identifies a todo by content rather than id, so local records
// created offline match their server counterparts after a push.
func Fingerprint(t Todo) string {
	due := ""
	if t.DueDate != nil {
		due = *t.DueDate
	}
	urgency := t.Urgency
	if urgency == 0 {
		urgency = 1
	}
	return strings.ToLower(strings.TrimSpace(t.Title)) + "_" + due + "_" + strconv.FormatFloat(urgency, 'f', -1, 64)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SyncWithServer reconciles the local list with the server in three phases:
// fetch the server list, settle the differences (targeted updates for todos
// the server already has, creates for the rest), then re-fetch and adopt the
// server's view, deduplicated by fingerprint with the later list entry
// winning. When syncs overlap, only the one that started last applies its
// result.
func (s *Store) SyncWithServer(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	gen := atomic.AddUint64(&s.nextGen, 1)

	serverTodos, err := s.remote.ListTodos(ctx)
	if err != nil {
		return err
	}
	remoteByID := make(map[string]Todo, len(serverTodos))
	for _, t := range serverTodos {
		remoteByID[t.ID] = t
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.Todos() {
		remote, exists := remoteByID[t.ID]
		if exists {
			fields := map[string]any{}
			if t.Completed != remote.Completed {
				fields["completed"] = t.Completed
			}
			if !strPtrEqual(t.DueDate, remote.DueDate) {
				fields["due_date"] = t.DueDate
			}
			if !strPtrEqual(t.WorkspaceID, remote.WorkspaceID) {
				fields["workspace_id"] = t.WorkspaceID
			}
			if len(fields) == 0 {
				continue
			}
			g.Go(func() error {
				_, err := s.remote.UpdateTodo(gctx, t.ID, fields)
				return err
			})
			continue
		}
		g.Go(func() error {
			_, err := s.remote.CreateTodo(gctx, t.Title, t.DueDate, int(t.Urgency), t.WorkspaceID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The server's post-settle view becomes the local state. Duplicate
	// fingerprints collapse to one entry: it keeps the position of the first
	// occurrence but the later occurrence's record.
	finalTodos, err := s.remote.ListTodos(ctx)
	if err != nil {
		return err
	}
	at := make(map[string]int, len(finalTodos))
	result := make([]Todo, 0, len(finalTodos))
	for _, t := range finalTodos {
		if i, seen := at[Fingerprint(t)]; seen {
			result[i] = t
			continue
		}
		at[Fingerprint(t)] = len(result)
		result = append(result, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.appliedGen {
		// A later sync already finished; its view is fresher.
		return nil
	}
	s.appliedGen = gen
	for i := range result {
		if result[i].Comments == nil {
			result[i].Comments = []Comment{}
		}
	}
	s.todos = result
	return nil
}

// StartSyncLoop syncs immediately and then every five minutes until the
// store is closed or the context is cancelled.
func (s *Store) StartSyncLoop(ctx context.Context, onError func(error)) {
	go func() {
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		for {
			if err := s.SyncWithServer(ctx); err != nil && onError != nil {
				onError(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stopSync:
				return
			case <-ticker.C:
			}
		}
	}()
}
