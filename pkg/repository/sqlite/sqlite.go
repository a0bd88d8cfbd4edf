package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = interfaces.ErrNotFound

const schema = `
CREATE TABLE IF NOT EXISTS semantic_facts (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	fact_type         TEXT NOT NULL,
	subject           TEXT NOT NULL,
	content           TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 1.0,
	source_memory_ids TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL,
	last_updated      TEXT NOT NULL,
	UNIQUE(subject, fact_type, content)
);
CREATE INDEX IF NOT EXISTS idx_subject ON semantic_facts(subject);
CREATE INDEX IF NOT EXISTS idx_fact_type ON semantic_facts(fact_type);

CREATE TABLE IF NOT EXISTS core_identity (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLite is an interfaces.Repository stored in a single SQLite file
type SQLite struct {
	db       *sql.DB
	fact     *factRepository
	identity *identityRepository
}

var _ interfaces.Repository = &SQLite{}

// New opens or creates the database at dbPath. ":memory:" opens a private
// in-memory database.
func New(ctx context.Context, dbPath string) (*SQLite, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", dbPath))
		}
		dsn = dbPath + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", dbPath))
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to migrate sqlite schema", goerr.V("path", dbPath))
	}
	if err := normalizeTimestamps(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{
		db:       db,
		fact:     &factRepository{db: db},
		identity: &identityRepository{db: db},
	}, nil
}

// normalizeTimestamps rewrites rows written with variable width RFC3339
// timestamps into timeLayout.
func normalizeTimestamps(ctx context.Context, db *sql.DB) error {
	// UTC renders the zone as a single "Z"
	width := len("2006-01-02T15:04:05.000000000Z")
	rows, err := db.QueryContext(ctx,
		`SELECT id, created_at, last_updated FROM semantic_facts WHERE length(created_at) != ? OR length(last_updated) != ?`,
		width, width)
	if err != nil {
		return goerr.Wrap(err, "failed to scan legacy timestamps")
	}

	type legacyRow struct {
		id               int64
		created, updated string
	}
	var legacy []legacyRow
	for rows.Next() {
		var row legacyRow
		if err := rows.Scan(&row.id, &row.created, &row.updated); err != nil {
			_ = rows.Close()
			return goerr.Wrap(err, "failed to read legacy timestamp")
		}
		legacy = append(legacy, row)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return goerr.Wrap(err, "failed to iterate legacy timestamps")
	}
	_ = rows.Close()

	for _, row := range legacy {
		if _, err := db.ExecContext(ctx,
			`UPDATE semantic_facts SET created_at = ?, last_updated = ? WHERE id = ?`,
			formatTime(parseTime(row.created)), formatTime(parseTime(row.updated)), row.id,
		); err != nil {
			return goerr.Wrap(err, "failed to normalize timestamp", goerr.V("id", row.id))
		}
	}
	return nil
}

func (s *SQLite) Fact() interfaces.FactRepository {
	return s.fact
}

func (s *SQLite) Identity() interfaces.IdentityRepository {
	return s.identity
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
