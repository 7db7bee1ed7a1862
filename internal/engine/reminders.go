package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/repo"
)

// Notifier delivers a reminder to the user. Delivery failures are retried on
// the next dispatch pass because the status only advances after success.
type Notifier interface {
	Notify(ctx context.Context, reminder domain.Reminder) error
}

const reminderSentinel = "!!RMD!!"

// EncodeReminderComment packs a reminder into the comment text that marks a
// todo as having a scheduled reminder.
func EncodeReminderComment(summary, reminderID, isoTime string) string {
	return reminderSentinel + summary + "||" + reminderID + "||" + isoTime
}

// ParseReminderComment unpacks a sentinel comment. ok is false for ordinary
// comment text.
func ParseReminderComment(text string) (summary, reminderID, isoTime string, ok bool) {
	if !strings.HasPrefix(text, reminderSentinel) {
		return "", "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(text, reminderSentinel), "||")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), true
}

var (
	reminderTitleRe   = regexp.MustCompile(`(?is)<reminder_title>(.*?)</reminder_title>`)
	reminderDescRe    = regexp.MustCompile(`(?is)<reminder_description>(.*?)</reminder_description>`)
	reminderTimeRe    = regexp.MustCompile(`(?is)<reminder_time>(.*?)</reminder_time>`)
	reminderSummaryRe = regexp.MustCompile(`(?is)<reminder_summary>(.*?)</reminder_summary>`)
)

func tagValue(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// CreateReminder asks the model to shape a reminder for a todo, resolves the
// proposed time in the user's timezone, and records reminder, marker comment
// and event together. If the model output is unusable nothing is written.
func (e Engine) CreateReminder(ctx context.Context, todoID, userID, instruction string) (domain.Reminder, error) {
	t, err := e.ownedTodo(ctx, todoID, userID)
	if err != nil {
		return domain.Reminder{}, err
	}
	if e.Completer == nil || e.Resolver == nil {
		return domain.Reminder{}, errors.New("reminder assistant is not configured")
	}

	settings, err := e.GetSettings(ctx, userID)
	if err != nil {
		return domain.Reminder{}, err
	}

	due := "none"
	if t.DueDate != nil {
		due = *t.DueDate
	}
	system := fmt.Sprintf(`You create reminders for todos.
Todo title: %s
Todo due date: %s
Current UTC time: %s

Answer with exactly these tags:
<reminder_title>short reminder title</reminder_title>
<reminder_description>one sentence of context</reminder_description>
<reminder_time>when to remind, as a natural phrase</reminder_time>
<reminder_summary>a few words for the todo's activity feed</reminder_summary>`,
		t.Title, due, e.now().UTC().Format(time.RFC3339))

	prompt := instruction
	if strings.TrimSpace(prompt) == "" {
		prompt = fmt.Sprintf("Remind me about %q %d minutes before it is due.", t.Title, settings.ReminderMinutes)
	}
	raw, err := e.Completer.Complete(ctx, e.ModelFor(ctx, userID), system, prompt)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("completion: %w", err)
	}

	title := tagValue(reminderTitleRe, raw)
	timePhrase := tagValue(reminderTimeRe, raw)
	summary := tagValue(reminderSummaryRe, raw)
	if title == "" || timePhrase == "" || summary == "" {
		return domain.Reminder{}, errors.New("could not understand the reminder request")
	}

	res, err := e.Resolver.Resolve(ctx, timePhrase, settings.Timezone)
	if err != nil {
		return domain.Reminder{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	rem := domain.Reminder{
		ID:           uuid.New().String(),
		TodoID:       t.ID,
		UserID:       userID,
		Title:        title,
		Description:  optionalString(tagValue(reminderDescRe, raw)),
		ReminderTime: res.DateTime,
		Status:       "pending",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rem, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReminder(ctx, tx, rem); err != nil {
		return rem, err
	}
	marker := domain.Comment{
		ID:        uuid.New().String(),
		TodoID:    t.ID,
		UserID:    userID,
		Text:      EncodeReminderComment(summary, rem.ID, rem.ReminderTime),
		CreatedAt: now,
	}
	if err := e.Repo.InsertComment(ctx, tx, marker); err != nil {
		return rem, err
	}
	wsID := ""
	if t.WorkspaceID != nil {
		wsID = *t.WorkspaceID
	}
	if err := e.Events.Append(ctx, tx, events.ReminderCreated, wsID, rem.ID, userID, events.EventPayload{"todo_id": t.ID, "reminder_time": rem.ReminderTime}); err != nil {
		return rem, err
	}
	if err := tx.Commit(); err != nil {
		return rem, err
	}
	return rem, nil
}

// ListReminders returns the user's reminders, optionally filtered by status.
func (e Engine) ListReminders(ctx context.Context, userID, status string) ([]domain.Reminder, error) {
	return e.Repo.ListReminders(ctx, userID, status)
}

// CancelReminder moves a pending reminder to cancelled. Sent and cancelled
// reminders are terminal.
func (e Engine) CancelReminder(ctx context.Context, id, userID string) (domain.Reminder, error) {
	rem, err := e.Repo.GetReminder(ctx, id)
	if err != nil {
		return rem, err
	}
	if rem.UserID != userID {
		return domain.Reminder{}, repo.ErrNotFound
	}
	if rem.Status != "pending" {
		return rem, fmt.Errorf("reminder is already %s", rem.Status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rem, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetReminderStatus(ctx, tx, id, "cancelled", now); err != nil {
		return rem, err
	}
	if err := e.Events.Append(ctx, tx, events.ReminderCancelled, "", id, userID, nil); err != nil {
		return rem, err
	}
	if err := tx.Commit(); err != nil {
		return rem, err
	}
	rem.Status = "cancelled"
	rem.UpdatedAt = now
	return rem, nil
}

func (e Engine) DeleteReminder(ctx context.Context, id, userID string) error {
	rem, err := e.Repo.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if rem.UserID != userID {
		return repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteReminder(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ReminderDeleted, "", id, userID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// DispatchDue delivers every pending reminder whose time has passed. One
// failed delivery does not stop the rest; the failed reminder stays pending.
func (e Engine) DispatchDue(ctx context.Context) (int, error) {
	if e.Notifier == nil {
		return 0, errors.New("no notifier configured")
	}
	cutoff := e.now().UTC().Format(time.RFC3339)
	due, err := e.Repo.DueReminders(ctx, cutoff, 0)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rem := range due {
		if err := e.Notifier.Notify(ctx, rem); err != nil {
			e.logger().Warn("reminder delivery failed",
				zap.String("reminder_id", rem.ID), zap.Error(err))
			continue
		}
		now := e.now().UTC().Format(time.RFC3339)
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return sent, err
		}
		if err := e.Repo.SetReminderStatus(ctx, tx, rem.ID, "sent", now); err != nil {
			tx.Rollback()
			e.logger().Warn("reminder status update failed",
				zap.String("reminder_id", rem.ID), zap.Error(err))
			continue
		}
		if err := e.Events.Append(ctx, tx, events.ReminderSent, "", rem.ID, rem.UserID, nil); err != nil {
			tx.Rollback()
			return sent, err
		}
		if err := tx.Commit(); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
