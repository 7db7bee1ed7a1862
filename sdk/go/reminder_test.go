package agendasdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReminderComment(t *testing.T) {
	note, ok := ParseReminderComment("!!RMD!!Call the dentist||rem-42||2024-06-10T08:00:00Z")
	require.True(t, ok)
	assert.Equal(t, "Call the dentist", note.Summary)
	assert.Equal(t, "rem-42", note.ReminderID)
	assert.Equal(t, "2024-06-10T08:00:00Z", note.Time)

	_, ok = ParseReminderComment("just a plain comment")
	assert.False(t, ok)
	_, ok = ParseReminderComment("!!RMD!!missing||fields")
	assert.False(t, ok)
}

func TestReminderNotesFiltersOrdinaryComments(t *testing.T) {
	todo := Todo{Comments: []Comment{
		{Text: "regular note"},
		{Text: "!!RMD!!Standup||rem-1||2024-06-02T09:00:00Z"},
	}}
	notes := ReminderNotes(todo)
	require.Len(t, notes, 1)
	assert.Equal(t, "Standup", notes[0].Summary)
}
