// Package cache stores lowered modules in a SQLite database so that
// unchanged imports are not lowered again. Entries are keyed by the content
// hash of the module's syntax tree and encoded as canonical CBOR.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/pyaot/codegen"
)

var log = commonlog.GetLogger("pyaot.cache")

// ErrMiss is returned by Get when no usable entry is stored. It wraps
// codegen.ErrCacheMiss.
var ErrMiss = fmt.Errorf("cache: %w", codegen.ErrCacheMiss)

// ErrStale marks an entry written by an incompatible version. Get reports
// stale entries as misses.
var ErrStale = errors.New("stale cache entry")

// Store is a build cache backed by one SQLite file. It implements
// codegen.Cache and is safe for concurrent use.
type Store struct {
	db    *sql.DB
	path  string
	build string
	mu    sync.Mutex
}

var _ codegen.Cache = (*Store)(nil)

// Open opens or creates the cache database at path and starts a new build.
// The path ":memory:" opens a private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// writes are serialized anyway.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			started INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			build TEXT NOT NULL,
			data BLOB NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing cache: %w", err)
		}
	}

	s := &Store{db: db, path: path, build: uuid.NewString()}
	if _, err := db.Exec("INSERT INTO builds (id, started) VALUES (?, ?)", s.build, time.Now().Unix()); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording build: %w", err)
	}
	log.Debugf("cache %s: build %s", path, s.build)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Build returns the identifier of the build this Store records entries for.
func (s *Store) Build() string {
	return s.build
}

// Get returns the result stored under key and marks it used by the current
// build.
func (s *Store) Get(key string) (*codegen.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow("SELECT data FROM entries WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache: %w", err)
	}
	res, err := unmarshalResult(data)
	if errors.Is(err, ErrStale) {
		log.Debugf("cache %s: %s: %s", s.path, key, err)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec("UPDATE entries SET build = ? WHERE key = ?", s.build, key); err != nil {
		return nil, fmt.Errorf("touching cache entry: %w", err)
	}
	return res, nil
}

// Put stores res under key.
func (s *Store) Put(key string, res *codegen.Result) error {
	data, err := marshalResult(res)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec("INSERT OR REPLACE INTO entries (key, build, data) VALUES (?, ?, ?)", key, s.build, data)
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// Sweep deletes the entries the current build neither read nor wrote, and
// the records of earlier builds. It returns the number of entries removed.
func (s *Store) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.db.Exec("DELETE FROM entries WHERE build != ?", s.build)
	if err != nil {
		return 0, fmt.Errorf("sweeping cache: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM builds WHERE id != ?", s.build); err != nil {
		return 0, fmt.Errorf("sweeping cache: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Len returns the number of stored entries.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
