package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/kv"
)

const (
	// DefaultFilename is the name of the sqlite database file used when the
	// caller provides only a directory.
	DefaultFilename = "grex.sqlite"

	// InmemPath opens a private in-memory database instead of a file.
	InmemPath = ":memory:"

	kvTableName = "key_values"
)

// kvTableDDL is idempotent so it runs on every open.
var kvTableDDL = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
)`, kvTableName)

// KVStore is a kv.Store backed by a sqlite database.
type KVStore struct {
	// DB is exported to simplify error-path inspection in tests and tooling.
	DB   *sqlx.DB
	log  *zap.Logger
	path string
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore opens (creating if necessary) the sqlite database at path and
// ensures the key value table exists. Pass InmemPath for an in-memory store.
func NewKVStore(path string, log *zap.Logger) (*KVStore, error) {
	s := &KVStore{
		log:  log,
		path: path,
	}

	dsn := path
	if path != InmemPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("unable to create directory %s: %v", path, err)
		}
		// WAL keeps readers from blocking the writer; the busy timeout covers
		// contention from other processes holding the file.
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite supports a single writer. Limiting the pool to one connection
	// serializes access entirely, which also keeps an in-memory database from
	// being silently dropped between connections.
	db.SetMaxOpenConns(1)

	s.DB = db

	if err := s.execTrans(context.Background(), kvTableDDL); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to initialize key value table: %w", err)
	}

	s.log.Info("Resources opened", zap.String("path", path))
	return s, nil
}

// Close the connection to the sqlite database.
func (s *KVStore) Close() error {
	return s.DB.Close()
}

// execTrans executes a script within a transaction.
func (s *KVStore) execTrans(ctx context.Context, stmt string) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// GetString retrieves the value at the provided key.
func (s *KVStore) GetString(ctx context.Context, key string) (string, error) {
	var value string
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, kvTableName)
	if err := s.DB.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", kv.ErrKeyNotFound
		}
		return "", err
	}
	return value, nil
}

// SetString sets the key value pair provided.
func (s *KVStore) SetString(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, kvTableName)
	_, err := s.DB.ExecContext(ctx, query, key, value)
	return err
}

// GetInt retrieves the integer value at the provided key.
func (s *KVStore) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse integer at %q: %w", key, err)
	}
	return n, nil
}

// SetInt sets the key to the provided integer value.
func (s *KVStore) SetInt(ctx context.Context, key string, value int64) error {
	return s.SetString(ctx, key, strconv.FormatInt(value, 10))
}

// Remove removes the key provided. Removing an absent key is a no-op.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, kvTableName)
	_, err := s.DB.ExecContext(ctx, query, key)
	return err
}

// ContainsKey reports whether the key holds a value.
func (s *KVStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	var found bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = ?)`, kvTableName)
	if err := s.DB.GetContext(ctx, &found, query, key); err != nil {
		return false, err
	}
	return found, nil
}

// Flush removes all keys from the store.
func (s *KVStore) Flush(ctx context.Context) {
	query := fmt.Sprintf(`DELETE FROM %s`, kvTableName)
	_, _ = s.DB.ExecContext(ctx, query)
}

// Keys returns every key in the store in lexical order. It exists for
// status reporting in tooling; stores are expected to stay small.
func (s *KVStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	query := fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, kvTableName)
	if err := s.DB.SelectContext(ctx, &keys, query); err != nil {
		return nil, err
	}
	return keys, nil
}
