package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/internal/domain"
	"agenda/internal/repo"
)

// GetSettings returns the user's settings, falling back to defaults when
// nothing has been saved yet.
func (e Engine) GetSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	s, err := e.Repo.GetUserSettings(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return repo.DefaultSettings(userID), nil
	}
	return s, err
}

// SettingsUpdate carries partial settings changes; nil fields keep the
// current value.
type SettingsUpdate struct {
	ReminderMinutes      *int
	AISuggestedReminders *bool
	WeeklyReview         *bool
	Timezone             *string
	ShowInputAtBottom    *bool
}

func (e Engine) UpdateSettings(ctx context.Context, userID string, upd SettingsUpdate) (domain.UserSettings, error) {
	s, err := e.GetSettings(ctx, userID)
	if err != nil {
		return s, err
	}
	if upd.ReminderMinutes != nil {
		if *upd.ReminderMinutes < 0 || *upd.ReminderMinutes > 24*60 {
			return s, errors.New("reminder_minutes must be between 0 and 1440")
		}
		s.ReminderMinutes = *upd.ReminderMinutes
	}
	if upd.AISuggestedReminders != nil {
		s.AISuggestedReminders = *upd.AISuggestedReminders
	}
	if upd.WeeklyReview != nil {
		s.WeeklyReview = *upd.WeeklyReview
	}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return s, fmt.Errorf("unknown timezone %q", *upd.Timezone)
		}
		s.Timezone = *upd.Timezone
	}
	if upd.ShowInputAtBottom != nil {
		s.ShowInputAtBottom = *upd.ShowInputAtBottom
	}
	s.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertUserSettings(ctx, s); err != nil {
		return s, err
	}
	return s, nil
}
