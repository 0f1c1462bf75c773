package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"bookshelf/internal/storage"
	"bookshelf/migrations"
)

// Supported drivers. The names double as goose dialects and migration directories.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store is a relational implementation of storage.Storage
type Store struct {
	db     *sqlx.DB
	exec   sqlx.ExtContext // db, or the running transaction
	inTx   bool
	driver string
	sb     sq.StatementBuilderType
	logger *zap.Logger
}

// Open connects to the database and verifies the connection.
// For sqlite3 the dsn may be a plain file path or ":memory:".
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	var placeholder sq.PlaceholderFormat
	switch driver {
	case DriverSQLite:
		dsn = SQLiteDSN(dsn)
		placeholder = sq.Question
	case DriverPostgres:
		placeholder = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection: keeps :memory: databases alive and serializes writers
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:     db,
		exec:   db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		logger: logger,
	}, nil
}

// SQLiteDSN turns a file path into a DSN with foreign keys enforced and
// transactions started with BEGIN IMMEDIATE. DSNs that already carry query
// parameters are returned unchanged.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"
}

// Initialize applies pending migrations
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.ConfigureGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db.DB, s.driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Reset rolls every migration back and applies them again
func (s *Store) Reset(ctx context.Context) error {
	if err := s.ConfigureGoose(); err != nil {
		return err
	}
	if err := goose.DownToContext(ctx, s.db.DB, s.driver, 0); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, s.driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.logger.Info("Database reset", zap.String("driver", s.driver))
	return nil
}

// DB exposes the underlying connection pool, used by the migrate command
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Driver returns the driver name, which is also the goose dialect
func (s *Store) Driver() string {
	return s.driver
}

// ConfigureGoose points goose at the embedded migrations for this driver
func (s *Store) ConfigureGoose() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{s.logger.Sugar()})
	if err := goose.SetDialect(s.driver); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. Calls made on an already
// transaction-scoped Store join the running transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Storage) error) (err error) {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := *s
	txStore.exec = tx
	txStore.inTx = true

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txStore); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.inTx || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// mapError translates driver errors into storage sentinels
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
		}
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
		}
	}
	return err
}

// gooseLogger routes goose output through zap
type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.Infof(strings.TrimSpace(format), v...)
}
