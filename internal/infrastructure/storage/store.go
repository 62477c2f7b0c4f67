// Package storage implements the content store on database/sql. SQLite is the
// default backend; a postgres:// DSN switches to Postgres. All writes are
// single-statement upserts or per-batch transactions, so a crashed pass leaves
// committed batches intact.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"NewsRadar/internal/ports"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

// SQLStore persists articles, mentions, CVE metadata, and the two-phase
// grouping structures.
type SQLStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	driver  string
	logger  *slog.Logger
}

var _ ports.ArticleStore = (*SQLStore)(nil)
var _ ports.EntityStore = (*SQLStore)(nil)
var _ ports.GroupStore = (*SQLStore)(nil)
var _ ports.ViewStore = (*SQLStore)(nil)

// Open connects to the database selected by the DSN scheme.
func Open(dsn string, logger *slog.Logger) (*SQLStore, error) {
	driver := driverSQLite
	placeholder := sq.PlaceholderFormat(sq.Question)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = driverPostgres
		placeholder = sq.Dollar
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	return &SQLStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		driver:  driver,
		logger:  logger,
	}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sql.DB, driver string, logger *slog.Logger) *SQLStore {
	placeholder := sq.PlaceholderFormat(sq.Question)
	if driver == driverPostgres {
		placeholder = sq.Dollar
	}
	return &SQLStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		driver:  driver,
		logger:  logger,
	}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema creates all tables if they do not exist. A failure here is fatal
// to the run; no pass may execute against an uninitialized store.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) schemaStatements() []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == driverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS articles (
			link TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			published_date TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS article_companies (
			article_link TEXT NOT NULL,
			company_name TEXT NOT NULL,
			PRIMARY KEY (article_link, company_name)
		)`,
		`CREATE TABLE IF NOT EXISTS article_cves (
			article_link TEXT NOT NULL,
			cve_id TEXT NOT NULL,
			published_date TIMESTAMP,
			PRIMARY KEY (article_link, cve_id)
		)`,
		`CREATE TABLE IF NOT EXISTS cve_info (
			cve_id TEXT PRIMARY KEY,
			base_score REAL,
			vendor TEXT,
			affected_products TEXT,
			cve_url TEXT,
			vendor_link TEXT,
			solution TEXT,
			times_mentioned INTEGER DEFAULT 0,
			raw_json TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS two_phase_article_groups (
			group_id %s,
			main_topic TEXT NOT NULL,
			sub_topic TEXT NOT NULL,
			group_label TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, serial),
		`CREATE TABLE IF NOT EXISTS two_phase_article_group_memberships (
			article_link TEXT NOT NULL,
			group_id INTEGER NOT NULL,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (article_link, group_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS two_phase_subgroups (
			subgroup_id %s,
			category TEXT NOT NULL,
			group_label TEXT NOT NULL,
			summary TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, serial),
		`CREATE TABLE IF NOT EXISTS two_phase_subgroup_memberships (
			article_link TEXT NOT NULL,
			subgroup_id INTEGER NOT NULL,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (article_link, subgroup_id)
		)`,
	}
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// formatTime renders timestamps the way the store persists them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime accepts the formats the two drivers hand back for timestamp
// columns. Unparseable values come back as the zero time.
func parseTime(value string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
