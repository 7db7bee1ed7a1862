package events

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeEntityKind(t *testing.T) {
	assert.Equal(t, "todo", TodoCreated.EntityKind())
	assert.Equal(t, "comment", CommentDeleted.EntityKind())
	assert.Equal(t, "reminder", ReminderSent.EntityKind())
}

func TestAppendDerivesEntityKindFromType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs("2024-06-01T12:00:00Z", "todo.created", "ws-1", "todo", "t-1", "u-1", `{"title":"Buy milk"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.Begin()
	require.NoError(t, err)
	w := Writer{DB: db, Now: func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }}
	require.NoError(t, w.Append(context.Background(), tx, TodoCreated, "ws-1", "t-1", "u-1", EventPayload{"title": "Buy milk"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
