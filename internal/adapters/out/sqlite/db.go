package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS speaker (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	specialty TEXT NOT NULL,
	bio TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_speaker_specialty ON speaker(specialty);

CREATE TABLE IF NOT EXISTS assignment (
	id TEXT PRIMARY KEY,
	speaker_id TEXT NOT NULL,
	session_date TEXT NOT NULL,
	specialty TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (speaker_id, session_date),
	FOREIGN KEY (speaker_id) REFERENCES speaker(id)
);
`

// Open открывает базу и применяет схему. Пул ограничен одним соединением: PRAGMA
// действуют на соединение, а ":memory:" у каждого соединения своя.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("sqlite.init.wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("sqlite.init.foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("sqlite.init.busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite.init.schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint")
}
