package repo

import (
	"context"
	"database/sql"

	"agenda/internal/domain"
)

// DefaultSettings are the values seeded on first write.
func DefaultSettings(userID string) domain.UserSettings {
	return domain.UserSettings{
		UserID:          userID,
		ReminderMinutes: 30,
		Timezone:        "UTC",
	}
}

func (r Repo) GetUserSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	var s domain.UserSettings
	var aiSuggested, weekly, bottom int
	err := r.DB.QueryRowContext(ctx,
		`SELECT user_id,reminder_minutes,ai_suggested_reminders,weekly_review,timezone,show_input_at_bottom,updated_at FROM user_settings WHERE user_id=?`, userID).
		Scan(&s.UserID, &s.ReminderMinutes, &aiSuggested, &weekly, &s.Timezone, &bottom, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.AISuggestedReminders = aiSuggested != 0
	s.WeeklyReview = weekly != 0
	s.ShowInputAtBottom = bottom != 0
	return s, nil
}

func (r Repo) UpsertUserSettings(ctx context.Context, s domain.UserSettings) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_settings(user_id,reminder_minutes,ai_suggested_reminders,weekly_review,timezone,show_input_at_bottom,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET reminder_minutes=excluded.reminder_minutes, ai_suggested_reminders=excluded.ai_suggested_reminders,
weekly_review=excluded.weekly_review, timezone=excluded.timezone, show_input_at_bottom=excluded.show_input_at_bottom, updated_at=excluded.updated_at`,
		s.UserID, s.ReminderMinutes, boolInt(s.AISuggestedReminders), boolInt(s.WeeklyReview), s.Timezone, boolInt(s.ShowInputAtBottom), s.UpdatedAt)
	return err
}
