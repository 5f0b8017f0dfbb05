package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteQueries implements Queries over a database handle or a transaction.
type sqliteQueries struct {
	q sqlExecer
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	sqliteQueries
	db *sql.DB
}

// sqlitePragmas are applied on every pooled connection via the DSN.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// sqliteMaxConns bounds the pool. WAL readers run in parallel; writers
// queue on busy_timeout.
const sqliteMaxConns = 8

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(sqliteMaxConns)
	db.SetMaxIdleConns(sqliteMaxConns)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{sqliteQueries: sqliteQueries{q: db}, db: db}, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return eris.Wrap(runMigrations(ctx, goose.DialectSQLite3, s.db, "migrations/sqlite"), "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Begin opens a task session. Reads before the session's first write go
// through the pool and see committed data. The first write takes the
// database write lock with BEGIN IMMEDIATE on a dedicated connection, and
// everything after it runs in that transaction.
func (s *SQLiteStore) Begin(_ context.Context) (Tx, error) {
	sess := &sqliteSession{db: s.db}
	return &sqliteTx{sqliteQueries: sqliteQueries{q: sess}, sess: sess}, nil
}

type sqliteTx struct {
	sqliteQueries
	sess *sqliteSession
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	return t.sess.end(ctx, "COMMIT")
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	return t.sess.end(ctx, "ROLLBACK")
}

// sqliteSession is a sqlExecer that opens its transaction lazily.
type sqliteSession struct {
	db *sql.DB

	mu   sync.Mutex
	conn *sql.Conn // set once the first write began the transaction
	done bool
}

func (s *sqliteSession) reader() sqlExecer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn
	}
	return s.db
}

func (s *sqliteSession) writer(ctx context.Context) (*sql.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, sql.ErrTxDone
	}
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: session connection")
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	s.conn = conn
	return conn, nil
}

func (s *sqliteSession) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := s.writer(ctx)
	if err != nil {
		return nil, err
	}
	return conn.ExecContext(ctx, query, args...)
}

func (s *sqliteSession) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.reader().QueryContext(ctx, query, args...)
}

func (s *sqliteSession) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.reader().QueryRowContext(ctx, query, args...)
}

// end finishes the session with COMMIT or ROLLBACK. Ending a session that
// never wrote, or ending it twice, is a no-op. A connection whose
// transaction could not be closed is discarded instead of pooled.
func (s *sqliteSession) end(ctx context.Context, stmt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	conn := s.conn
	s.conn = nil
	if conn == nil {
		return nil
	}
	defer conn.Close() //nolint:errcheck

	ctx = context.WithoutCancel(ctx)
	_, err := conn.ExecContext(ctx, stmt)
	if err == nil {
		return nil
	}
	if stmt == "COMMIT" {
		if _, rerr := conn.ExecContext(ctx, "ROLLBACK"); rerr == nil {
			return eris.Wrap(err, "sqlite: commit")
		}
	}
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	return eris.Wrapf(err, "sqlite: %s", strings.ToLower(stmt))
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
