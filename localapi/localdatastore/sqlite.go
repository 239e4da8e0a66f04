package localdatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/backendtester/harness/wire"
)

// DatabaseFileName is the name of the sqlite database inside the storage directory.
const DatabaseFileName = "datastore.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	data  BLOB NOT NULL,
	PRIMARY KEY (scope, key)
);
CREATE TABLE IF NOT EXISTS sequences (
	app     TEXT PRIMARY KEY,
	next_id INTEGER NOT NULL
);`

type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the database in dir. An empty dir keeps the database in
// memory for the lifetime of the storage.
func NewSQLiteStorage(ctx context.Context, dir string) (Storage, error) {
	dsn := ":memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, DatabaseFileName)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database exists per connection, and a file database is
	// spared lock contention between our own connections.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create datastore schema in %s: %w", dsn, err)
	}
	return &sqliteStorage{db: db}, nil
}

func (s *sqliteStorage) Get(ctx context.Context, key wire.Key) (wire.Entity, bool, error) {
	query, args, err := sq.Select("data").From("entities").
		Where(sq.Eq{"scope": keyScope(key), "key": key.String()}).
		ToSql()
	if err != nil {
		return wire.Entity{}, false, err
	}
	var data []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wire.Entity{}, false, nil
		}
		return wire.Entity{}, false, err
	}
	e, err := wire.DecodeEntity(data)
	return e, err == nil, err
}

func (s *sqliteStorage) Put(ctx context.Context, entity wire.Entity) error {
	query, args, err := sq.Insert("entities").
		Columns("scope", "key", "data").
		Values(keyScope(entity.Key), entity.Key.String(), wire.EncodeEntity(entity)).
		Suffix("ON CONFLICT(scope, key) DO UPDATE SET data = excluded.data").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqliteStorage) Delete(ctx context.Context, key wire.Key) error {
	query, args, err := sq.Delete("entities").
		Where(sq.Eq{"scope": keyScope(key), "key": key.String()}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqliteStorage) List(ctx context.Context, app, namespace, kind string) ([]wire.Entity, error) {
	query, args, err := sq.Select("data").From("entities").
		Where(sq.Eq{"scope": scopeOf(app, namespace, kind)}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return decodeAll(items)
}

func (s *sqliteStorage) AllocateID(ctx context.Context, app string) (int64, error) {
	query, args, err := sq.Insert("sequences").
		Columns("app", "next_id").
		Values(app, 1).
		Suffix("ON CONFLICT(app) DO UPDATE SET next_id = sequences.next_id + 1 RETURNING next_id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
