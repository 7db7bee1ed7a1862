package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "agenda.db"

type Config struct {
	DataDir string
}

func dbPath(dataDir string) string {
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, ".agenda", defaultDBName)
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir(dataDir string) (string, error) {
	path := filepath.Join(dataDir, ".agenda")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(cfg.DataDir))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the db path for the data directory.
func Path(dataDir string) string {
	return dbPath(dataDir)
}
