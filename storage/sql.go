package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/123123eeqweq/omocrm/domain"
)

type dialect struct {
	name          Backend
	driver        string
	getBoard      string
	upsertBoard   string
	ensureMigrate string
	isMigrated    string
	recordMigrate string
	timestamp     func(time.Time) any
}

var postgresDialect = dialect{
	name:     BackendPostgres,
	driver:   "pgx",
	getBoard: `SELECT cards, steps, updated_at FROM boards WHERE project_id = $1`,
	upsertBoard: `INSERT INTO boards (project_id, cards, steps, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4, $4)
		ON CONFLICT (project_id) DO UPDATE SET
			cards = EXCLUDED.cards,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at
		RETURNING cards, steps, updated_at`,
	ensureMigrate: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	isMigrated:    `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
	recordMigrate: `INSERT INTO schema_migrations(version) VALUES($1)`,
	timestamp:     func(t time.Time) any { return t },
}

var sqliteDialect = dialect{
	name:     BackendSQLite,
	driver:   "sqlite",
	getBoard: `SELECT cards, steps, updated_at FROM boards WHERE project_id = ?`,
	upsertBoard: `INSERT INTO boards (project_id, cards, steps, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?4)
		ON CONFLICT (project_id) DO UPDATE SET
			cards = excluded.cards,
			steps = excluded.steps,
			updated_at = excluded.updated_at
		RETURNING cards, steps, updated_at`,
	ensureMigrate: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	isMigrated:    `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`,
	recordMigrate: `INSERT INTO schema_migrations(version) VALUES(?)`,
	timestamp:     func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

func dialectFor(b Backend) (dialect, error) {
	switch b {
	case BackendPostgres:
		return postgresDialect, nil
	case BackendSQLite:
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("no SQL dialect for backend %q", b)
	}
}

// SQLStore keeps one row per project with cards and steps as JSON columns.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// OpenSQL opens a PostgreSQL or SQLite database and applies migrations.
// For SQLite the dsn is a file path or ":memory:".
func OpenSQL(ctx context.Context, backend Backend, dsn string) (*SQLStore, error) {
	d, err := dialectFor(backend)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	switch backend {
	case BackendPostgres:
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	case BackendSQLite:
		// A single connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
		if dsn != ":memory:" {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("setting WAL mode: %w", err)
			}
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db, d); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, dialect: d, now: time.Now}, nil
}

// Get loads the board of projectID.
func (s *SQLStore) Get(ctx context.Context, projectID string) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.getBoard, projectID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmptyDocument(), nil
	}
	if err != nil {
		return domain.Document{}, failed("get board "+projectID, err)
	}
	return doc, nil
}

// Upsert inserts the row for projectID or replaces its collections.
func (s *SQLStore) Upsert(ctx context.Context, projectID string, doc domain.Document) (domain.Document, error) {
	doc = doc.Normalize()
	row := s.db.QueryRowContext(ctx, s.dialect.upsertBoard,
		projectID,
		string(doc.Cards),
		string(doc.Steps),
		s.dialect.timestamp(s.now()),
	)
	stored, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, failed("upsert board "+projectID, err)
	}
	return stored, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return failed("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanDocument(row *sql.Row) (domain.Document, error) {
	var (
		cards, steps []byte
		updated      any
	)
	if err := row.Scan(&cards, &steps, &updated); err != nil {
		return domain.Document{}, err
	}
	ts, err := parseTimestamp(updated)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{Cards: cards, Steps: steps, UpdatedAt: ts}.Normalize(), nil
}

func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
