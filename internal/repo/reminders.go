package repo

import (
	"context"
	"database/sql"

	"agenda/internal/domain"
)

const reminderColumns = `id,todo_id,user_id,title,description,reminder_time,status,created_at,updated_at`

func scanReminder(scan func(dest ...any) error) (domain.Reminder, error) {
	var rem domain.Reminder
	var desc sql.NullString
	err := scan(&rem.ID, &rem.TodoID, &rem.UserID, &rem.Title, &desc, &rem.ReminderTime, &rem.Status, &rem.CreatedAt, &rem.UpdatedAt)
	if err == sql.ErrNoRows {
		return rem, ErrNotFound
	}
	if err != nil {
		return rem, err
	}
	if desc.Valid {
		rem.Description = &desc.String
	}
	return rem, nil
}

func (r Repo) InsertReminder(ctx context.Context, tx *sql.Tx, rem domain.Reminder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reminders(`+reminderColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		rem.ID, rem.TodoID, rem.UserID, rem.Title, nullableStringPtr(rem.Description),
		rem.ReminderTime, rem.Status, rem.CreatedAt, rem.UpdatedAt)
	return err
}

func (r Repo) GetReminder(ctx context.Context, id string) (domain.Reminder, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=?`, id)
	return scanReminder(row.Scan)
}

func (r Repo) ListReminders(ctx context.Context, userID, status string) ([]domain.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id=?`
	args := []any{userID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY reminder_time ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rem)
	}
	return res, rows.Err()
}

// DueReminders returns pending reminders whose time has passed.
func (r Repo) DueReminders(ctx context.Context, cutoff string, limit int) ([]domain.Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE status='pending' AND reminder_time<=? ORDER BY reminder_time ASC LIMIT ?`,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rem)
	}
	return res, rows.Err()
}

func (r Repo) SetReminderStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE reminders SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteReminder(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
