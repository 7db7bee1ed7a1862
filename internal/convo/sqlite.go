package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// SQLiteStore keeps conversation state in the conversations table.
type SQLiteStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db, Now: time.Now}
}

func (s *SQLiteStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(ttl).Format(time.RFC3339)
	_, err = s.DB.ExecContext(ctx, `INSERT INTO conversations(key,value_json,expires_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, expires_at=excluded.expires_at`, key, string(data), expires)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string, out any) (bool, error) {
	now := s.now().UTC().Format(time.RFC3339)
	var payload string
	err := s.DB.QueryRowContext(ctx, `SELECT value_json FROM conversations WHERE key=? AND expires_at>?`, key, now).Scan(&payload)
	if err == sql.ErrNoRows {
		// lazy purge of whatever is stale
		_, _ = s.DB.ExecContext(ctx, `DELETE FROM conversations WHERE expires_at<=?`, now)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, err
	}
	return true, nil
}
