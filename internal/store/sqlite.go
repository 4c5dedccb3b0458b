package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"autorenew/internal/domain"
)

const (
	keyConfig  = "config"
	keyAdmin   = "admin"
	keyVersion = "version"

	counterNextTaskID = "next_task_id"
	counterCount      = "count"
)

var errCountOverflow = errors.New("count overflow")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS items (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS counters (
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
  id INTEGER PRIMARY KEY,
  frequency TEXT NOT NULL,
  domain_name TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS default_ids (
  address TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

// Open opens (creating if needed) the SQLite database at path and ensures the schema.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	db.SetMaxIdleConns(1)

	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return New(db), nil
}

// Store is the persistent state of the module. All access goes through a Tx so
// that one request either commits every write or none.
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// InTx runs fn in one transaction. With a single connection SQLite
// transactions are already serializable. fn's error, or a panic, rolls back.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type TaskRecord struct {
	ID    domain.TaskID
	Entry domain.TaskEntry
}

type Tx interface {
	// NextTaskID returns the next task id and advances the counter in one statement.
	NextTaskID(ctx context.Context) (domain.TaskID, error)
	PeekTaskID(ctx context.Context) (domain.TaskID, error)
	InsertTask(ctx context.Context, id domain.TaskID, e domain.TaskEntry) error
	GetTask(ctx context.Context, id domain.TaskID) (domain.TaskEntry, error)
	ListTasks(ctx context.Context, startAfter *domain.TaskID, limit int) ([]TaskRecord, error)

	SaveConfig(ctx context.Context, c domain.Config) error
	LoadConfig(ctx context.Context) (domain.Config, error)
	SaveAdmin(ctx context.Context, admin domain.Addr) error
	LoadAdmin(ctx context.Context) (domain.Addr, error)
	SaveVersion(ctx context.Context, version string) error
	LoadVersion(ctx context.Context) (string, error)

	SaveCount(ctx context.Context, n int32) error
	LoadCount(ctx context.Context) (int32, error)
	IncrementCount(ctx context.Context) (int32, error)

	PutDefaultID(ctx context.Context, addr domain.Addr, name string) error
	GetDefaultID(ctx context.Context, addr domain.Addr) (string, error)
}

type sqliteTx struct{ tx *sql.Tx }

func (t *sqliteTx) NextTaskID(ctx context.Context) (domain.TaskID, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
INSERT INTO counters(name, value) VALUES (?, 1)
ON CONFLICT(name) DO UPDATE SET value = value + 1
RETURNING value - 1`, counterNextTaskID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate task id: %w", err)
	}
	return domain.TaskID(id), nil
}

func (t *sqliteTx) PeekTaskID(ctx context.Context) (domain.TaskID, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name=?`, counterNextTaskID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return domain.TaskID(id), nil
}

func (t *sqliteTx) InsertTask(ctx context.Context, id domain.TaskID, e domain.TaskEntry) error {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO tasks (id, frequency, domain_name, created_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO NOTHING`, int64(id), e.Frequency, e.DomainName)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateTaskID, id)
	}
	return nil
}

func (t *sqliteTx) GetTask(ctx context.Context, id domain.TaskID) (domain.TaskEntry, error) {
	var e domain.TaskEntry
	err := t.tx.QueryRowContext(ctx, `SELECT frequency, domain_name FROM tasks WHERE id=?`, int64(id)).
		Scan(&e.Frequency, &e.DomainName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskEntry{}, fmt.Errorf("%w: %d", domain.ErrUnknownTaskID, id)
	}
	return e, err
}

func (t *sqliteTx) ListTasks(ctx context.Context, startAfter *domain.TaskID, limit int) ([]TaskRecord, error) {
	from := int64(-1)
	if startAfter != nil {
		from = int64(*startAfter)
	}
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, frequency, domain_name FROM tasks WHERE id > ? ORDER BY id ASC LIMIT ?`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var id int64
		if err := rows.Scan(&id, &r.Entry.Frequency, &r.Entry.DomainName); err != nil {
			return nil, err
		}
		r.ID = domain.TaskID(id)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) saveItem(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO items (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, key, b)
	return err
}

// loadItem returns sql.ErrNoRows when the key is absent.
func (t *sqliteTx) loadItem(ctx context.Context, key string, v any) error {
	var b []byte
	if err := t.tx.QueryRowContext(ctx, `SELECT value FROM items WHERE key=?`, key).Scan(&b); err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (t *sqliteTx) SaveConfig(ctx context.Context, c domain.Config) error {
	return t.saveItem(ctx, keyConfig, c)
}

func (t *sqliteTx) LoadConfig(ctx context.Context) (domain.Config, error) {
	var c domain.Config
	err := t.loadItem(ctx, keyConfig, &c)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Config{}, domain.ErrNotInstantiated
	}
	return c, err
}

func (t *sqliteTx) SaveAdmin(ctx context.Context, admin domain.Addr) error {
	return t.saveItem(ctx, keyAdmin, admin)
}

func (t *sqliteTx) LoadAdmin(ctx context.Context) (domain.Addr, error) {
	var a domain.Addr
	err := t.loadItem(ctx, keyAdmin, &a)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotInstantiated
	}
	return a, err
}

func (t *sqliteTx) SaveVersion(ctx context.Context, version string) error {
	return t.saveItem(ctx, keyVersion, version)
}

func (t *sqliteTx) LoadVersion(ctx context.Context) (string, error) {
	var v string
	err := t.loadItem(ctx, keyVersion, &v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (t *sqliteTx) SaveCount(ctx context.Context, n int32) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO counters(name, value) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET value=excluded.value`, counterCount, int64(n))
	return err
}

func (t *sqliteTx) LoadCount(ctx context.Context) (int32, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name=?`, counterCount).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotInstantiated
	}
	return int32(n), err
}

func (t *sqliteTx) IncrementCount(ctx context.Context) (int32, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `
UPDATE counters SET value = value + 1 WHERE name=? AND value < ? RETURNING value`,
		counterCount, int64(math.MaxInt32)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lerr := t.LoadCount(ctx); lerr != nil {
			return 0, lerr
		}
		return 0, errCountOverflow
	}
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func (t *sqliteTx) PutDefaultID(ctx context.Context, addr domain.Addr, name string) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO default_ids (address, name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(address) DO UPDATE SET name=excluded.name, updated_at=CURRENT_TIMESTAMP`, string(addr), name)
	return err
}

func (t *sqliteTx) GetDefaultID(ctx context.Context, addr domain.Addr) (string, error) {
	var name string
	err := t.tx.QueryRowContext(ctx, `SELECT name FROM default_ids WHERE address=?`, string(addr)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: default id for %s", domain.ErrNotFound, addr)
	}
	return name, err
}
