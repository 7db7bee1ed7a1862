package agendasdk

import "strings"

const reminderSentinel = "!!RMD!!"

// ReminderNote is the reminder information carried inside a marker comment.
type ReminderNote struct {
	Summary    string
	ReminderID string
	Time       string
}

// ParseReminderComment recognizes the marker comments the server writes
// when it schedules a reminder. Ordinary comments return ok=false.
func ParseReminderComment(text string) (ReminderNote, bool) {
	if !strings.HasPrefix(text, reminderSentinel) {
		return ReminderNote{}, false
	}
	parts := strings.Split(strings.TrimPrefix(text, reminderSentinel), "||")
	if len(parts) != 3 {
		return ReminderNote{}, false
	}
	return ReminderNote{
		Summary:    strings.TrimSpace(parts[0]),
		ReminderID: strings.TrimSpace(parts[1]),
		Time:       strings.TrimSpace(parts[2]),
	}, true
}

// ReminderNotes extracts reminder markers from a todo's comments.
func ReminderNotes(t Todo) []ReminderNote {
	var notes []ReminderNote
	for _, c := range t.Comments {
		if note, ok := ParseReminderComment(c.Text); ok {
			notes = append(notes, note)
		}
	}
	return notes
}
