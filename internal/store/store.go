// Package store provides the SQLite store adapter that tables are built on.
//
// A Store pins a single connection for its whole lifetime: ATTACH bindings,
// transactions and savepoints are all per-connection state in SQLite, and a
// connection pool would scatter them. Stores are not safe for concurrent use;
// callers sharing one across goroutines must serialize access themselves.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
)

// InternalPrefix marks bookkeeping tables owned by molsystem. Tables with this
// prefix are hidden from Tables.
const InternalPrefix = "_molsystem_"

// Store is one SQLite database instance.
type Store struct {
	db       *sql.DB
	conn     *sql.Conn
	identity string
	ownsDB   bool
	logger   *zap.Logger

	// depth counts open Scope/Atomic units on the connection.
	depth int

	attachMu sync.Mutex
	attached *Attachment
}

type options struct {
	journalMode string
	busyTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Store.
type Option func(*options)

// WithJournalMode sets the SQLite journal mode (WAL, DELETE, ...).
func WithJournalMode(mode string) Option {
	return func(o *options) {
		if mode != "" {
			o.journalMode = mode
		}
	}
}

// WithBusyTimeout sets how long a statement waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func defaultOptions() options {
	return options{
		journalMode: "WAL",
		busyTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
	}
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to resolve path %s: %w", path, err)
	}

	db, err := sql.Open(driverName, buildDSN(abs, o))
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s, err := newStore(ctx, db, abs, o)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true

	s.logger.Info("store: opened", zap.String("path", abs), zap.String("driver", driverName))
	return s, nil
}

// NewFromDB wraps an already opened database. identity is the token used to
// decide whether two stores are the same instance. The caller keeps ownership
// of db; Close only releases the pinned connection.
func NewFromDB(ctx context.Context, db *sql.DB, identity string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newStore(ctx, db, identity, o)
}

func newStore(ctx context.Context, db *sql.DB, identity string, o options) (*Store, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: failed to acquire connection: %w", err)
	}
	return &Store{
		db:       db,
		conn:     conn,
		identity: identity,
		logger:   o.logger,
	}, nil
}

// Identity returns the store's location token (the absolute database path).
func (s *Store) Identity() string {
	return s.identity
}

// SameInstance reports whether other refers to the same database.
func (s *Store) SameInstance(other *Store) bool {
	return other != nil && s.identity == other.identity
}

// Logger returns the store's logger.
func (s *Store) Logger() *zap.Logger {
	return s.logger
}

// InTransaction reports whether a Scope or Atomic unit is open.
func (s *Store) InTransaction() bool {
	return s.depth > 0
}

// Close detaches any attached store and releases the connection.
func (s *Store) Close() error {
	s.attachMu.Lock()
	a := s.attached
	s.attachMu.Unlock()
	if a != nil {
		if err := a.Detach(context.Background()); err != nil {
			s.logger.Warn("store: detach on close failed", zap.Error(err))
		}
	}

	err := s.conn.Close()
	if s.ownsDB {
		if dbErr := s.db.Close(); err == nil {
			err = dbErr
		}
	}
	s.logger.Info("store: closed", zap.String("path", s.identity))
	return err
}

// Exec executes a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	res, err := s.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, molerrors.NewStoreError(stmt, err)
	}
	return res, nil
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Query executes a statement and reads every row before returning, so the
// connection is free for the next statement.
func (s *Store) Query(ctx context.Context, stmt string, args ...any) (*Result, error) {
	rows, err := s.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, molerrors.NewStoreError(stmt, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, molerrors.NewStoreError(stmt, err)
	}

	textual := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			textual[i] = hasTextAffinity(ct.DatabaseTypeName())
		}
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, molerrors.NewStoreError(stmt, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok && textual[i] {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, molerrors.NewStoreError(stmt, err)
	}
	return res, nil
}

// hasTextAffinity applies SQLite's affinity rule for declared text types.
func hasTextAffinity(declared string) bool {
	u := strings.ToUpper(declared)
	if strings.Contains(u, "INT") {
		return false
	}
	return strings.Contains(u, "CHAR") || strings.Contains(u, "CLOB") || strings.Contains(u, "TEXT")
}

// QueryInt executes a statement returning a single integer, such as COUNT(*).
func (s *Store) QueryInt(ctx context.Context, stmt string, args ...any) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, molerrors.NewStoreError(stmt, err)
	}
	return n, nil
}

// ExecMany executes stmt once per parameter row as one atomic batch: either
// every row is applied or none is.
func (s *Store) ExecMany(ctx context.Context, stmt string, paramRows [][]any) error {
	if len(paramRows) == 0 {
		return nil
	}
	return s.Atomic(ctx, func(ctx context.Context) error {
		prepared, err := s.conn.PrepareContext(ctx, stmt)
		if err != nil {
			return molerrors.NewStoreError(stmt, err)
		}
		defer prepared.Close()

		for _, params := range paramRows {
			if _, err := prepared.ExecContext(ctx, params...); err != nil {
				return molerrors.NewStoreError(stmt, err)
			}
		}
		return nil
	})
}
