package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"photo-library/internal/apperr"
	"photo-library/internal/database/migrations"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// Default timeout for single statement operations
const defaultTimeout = 5 * time.Second

// Database is the persisted media catalog.
type Database struct {
	reader
	db     *sqlx.DB
	dbPath string
}

// Tx is a catalog write transaction. Reads through a Tx see its own writes.
type Tx struct {
	reader
	tx *sqlx.Tx
}

// reader carries the read operations shared by Database and Tx.
type reader struct {
	q sqlx.ExtContext
}

// New opens the catalog at dbPath and migrates it to the latest schema.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)
	if err := checkWritable(dbPath); err != nil {
		logging.Warn("Database location check: %v", err)
	}

	// _txlock=immediate makes writers queue on busy_timeout rather than
	// fail with SQLITE_BUSY when upgrading a read lock.
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	fail := func(stage string, cause error) (*Database, error) {
		if cerr := db.Close(); cerr != nil {
			logging.Error("Closing catalog after %s failure: %v", stage, cerr)
		}
		return nil, fmt.Errorf("%s catalog: %w", stage, cause)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fail("connect", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrations.MigrateUp(db.DB); err != nil {
		return fail("migrate", err)
	}

	logging.Info("Catalog ready")
	return &Database{reader: reader{q: db}, db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (d *Database) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	start := time.Now()
	outcome := "rollback"
	defer func() {
		metrics.DBTransactionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	sqlTx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&Tx{reader: reader{q: sqlTx}, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	outcome = "commit"
	return nil
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// UpdateDBMetrics publishes the connection pool gauge.
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}

// notFound converts sql.ErrNoRows into apperr.ErrNotFound.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, apperr.ErrNotFound)...)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func now() Timestamp {
	return NewTimestamp(time.Now().UTC())
}

// checkWritable verifies the catalog directory accepts writes and restores
// owner write permission on WAL sidecars left read-only by a previous run
// under another user.
func checkWritable(dbPath string) error {
	dir := filepath.Dir(dbPath)
	scratch, err := os.CreateTemp(dir, ".catalog-write-*")
	if err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	_ = scratch.Close()
	_ = os.Remove(scratch.Name())

	if info, err := os.Stat(dbPath); err == nil && info.Mode().Perm()&0o200 == 0 {
		logging.Warn("Catalog file %s is read-only (mode %v)", dbPath, info.Mode())
	}

	for _, sidecar := range []string{dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(sidecar)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		if err := os.Chmod(sidecar, info.Mode().Perm()|0o600); err != nil {
			logging.Error("Sidecar %s is read-only and could not be fixed: %v", sidecar, err)
			continue
		}
		logging.Info("Restored write permission on %s", sidecar)
	}
	return nil
}
