package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"danmu/internal/config"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const sqliteBusyTimeoutMS = 5000

// DB wraps a pooled connection with dialect-aware helpers.
type DB struct {
	db      *sql.DB
	dialect Dialect
	path    string
}

// Querier is satisfied by DB and Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the configured catalog database and applies migrations.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("database: config is nil")
	}
	return OpenDSN(ctx, cfg.Database.Driver, cfg.Database.DSN)
}

// OpenDSN connects using an explicit driver and DSN.
func OpenDSN(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect := Dialect(strings.ToLower(strings.TrimSpace(driver)))
	var (
		db   *sql.DB
		path string
		err  error
	)
	switch dialect {
	case SQLite, "":
		dialect = SQLite
		var source string
		source, path, err = sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("sqlite", source)
	case Postgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	handle := &DB{db: db, dialect: dialect, path: path}
	if err := handle.applyMigrations(ensureContext(ctx)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return handle, nil
}

// sqliteDSN turns a bare file path into a modernc DSN whose pragmas apply to
// every pooled connection.
func sqliteDSN(dsn string) (string, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", errors.New("database: sqlite dsn is empty")
	}
	if strings.HasPrefix(dsn, "file:") && strings.Contains(dsn, "?") {
		path := strings.TrimPrefix(dsn[:strings.Index(dsn, "?")], "file:")
		return dsn, path, nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("database: create directory %q: %w", dir, err)
		}
	}
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMS))
	query.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + query.Encode(), path, nil
}

// Close releases the pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Dialect reports the active SQL dialect.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Path returns the sqlite database file, or "" for server databases.
func (d *DB) Path() string {
	return d.path
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ensureContext(ctx))
}

// Rebind rewrites "?" placeholders for the active dialect.
func (d *DB) Rebind(query string) string {
	return rebind(d.dialect, query)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ensureContext(ctx), d.Rebind(query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ensureContext(ctx), d.Rebind(query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ensureContext(ctx), d.Rebind(query), args...)
}

// Tx is a transaction with the same placeholder handling as DB.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx, dialect: d.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Placeholders returns "?, ?, ..." for count arguments.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
