package agendasdk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const rescheduleDebounce = 350 * time.Millisecond

// columnOffsets maps a board layout to the day offset of each column. The
// desktop board shows Today / This Week / Later; tablet folds the last two
// together. The unprefixed single-column layout never reschedules.
var columnOffsets = map[string][]int{
	"desktop": {0, 3, 14},
	"tablet":  {0, 7},
}

// DropDate translates a drop destination like "desktop-1" into the due date
// the column represents: local midnight of today plus the column's offset.
// A bare column index means the single-column layout, where a drop only
// reorders; it reports ok=false and no date.
func DropDate(destination string, now time.Time) (string, bool, error) {
	sep := strings.LastIndex(destination, "-")
	if sep <= 0 || sep == len(destination)-1 {
		if _, err := strconv.Atoi(destination); err == nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("invalid drop destination %q", destination)
	}
	prefix := destination[:sep]
	index, err := strconv.Atoi(destination[sep+1:])
	if err != nil {
		return "", false, fmt.Errorf("invalid drop destination %q", destination)
	}
	offsets, ok := columnOffsets[prefix]
	if !ok {
		return "", false, fmt.Errorf("unknown board layout %q", prefix)
	}
	if index < 0 || index >= len(offsets) {
		return "", false, fmt.Errorf("column %d out of range for %s", index, prefix)
	}
	day := now.AddDate(0, 0, offsets[index])
	return day.Format("2006-01-02") + "T00:00:00.000Z", true, nil
}

// HandleDrop applies a drag-and-drop reschedule: the local due date changes
// immediately, and the server push is debounced so a todo dragged through
// several columns only produces one request, for the final column.
func (s *Store) HandleDrop(ctx context.Context, todoID, destination string) error {
	date, ok, err := DropDate(destination, s.now())
	if err != nil {
		return err
	}
	if !ok {
		// Single-column drop: pure reorder, the due date stays put.
		return nil
	}

	s.mu.Lock()
	i := s.indexOf(todoID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("todo %s not found", todoID)
	}
	s.todos[i].DueDate = &date
	s.mu.Unlock()

	if s.remote == nil || IsTempID(todoID) {
		return nil
	}

	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()
	if s.closed {
		return nil
	}
	entry, ok := s.debounces[todoID]
	if !ok {
		entry = &debounceEntry{}
		s.debounces[todoID] = entry
	}
	entry.gen++
	gen := entry.gen
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(rescheduleDebounce, func() {
		s.debounceMu.Lock()
		current, ok := s.debounces[todoID]
		stale := !ok || current.gen != gen || s.closed
		if !stale {
			delete(s.debounces, todoID)
		}
		s.debounceMu.Unlock()
		if stale {
			return
		}
		// The final column's date is pushed; Reschedule reverts on failure.
		_, _ = s.Reschedule(ctx, todoID, date)
	})
	return nil
}
