package repo

import (
	"context"
	"database/sql"
	"errors"

	"agenda/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,name,avatar_url,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Email, nullableStringPtr(u.Name), nullableStringPtr(u.AvatarURL), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var name, avatar sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,email,name,avatar_url,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Email, &name, &avatar, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return u, nil
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	var name, avatar sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,email,name,avatar_url,created_at FROM users WHERE email=?`, email).
		Scan(&u.ID, &u.Email, &name, &avatar, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return u, nil
}

// EnsureUser inserts the user if it does not exist yet.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, id, email, createdAt string) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT OR IGNORE INTO users(id,email,created_at) VALUES (?,?,?)`, id, email, createdAt)
	return err
}

// ActivePlan returns the subscription plan for a user, or "free" when the
// user has no subscription in active or trialing status.
func (r Repo) ActivePlan(ctx context.Context, userID string) (string, error) {
	var plan string
	err := r.DB.QueryRowContext(ctx,
		`SELECT plan FROM subscriptions WHERE user_id=? AND status IN ('active','trialing') ORDER BY rowid DESC LIMIT 1`, userID).
		Scan(&plan)
	if err == sql.ErrNoRows {
		return "free", nil
	}
	if err != nil {
		return "", err
	}
	return plan, nil
}

func (r Repo) InsertSubscription(ctx context.Context, s domain.Subscription) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO subscriptions(id,user_id,plan,status,current_period_end) VALUES (?,?,?,?,?)`,
		s.ID, s.UserID, s.Plan, s.Status, nullableStringPtr(s.CurrentPeriodEnd))
	return err
}
