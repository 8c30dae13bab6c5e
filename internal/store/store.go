// Package store provides durable, synchronous key/value persistence for
// the gateway's state records, backed by a local SQLite file.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed record keys. User records hang off KeyUserPrefix, one per identity.
const (
	KeyAdmin      = "ytgate_admin"
	KeyCache      = "ytgate_cache"
	KeyUserPrefix = "ytgate_user:"
)

// StorageError wraps a persistence failure. Operations that hit one fail
// loudly; nothing in this subsystem retries them.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is a process-local key/value store with JSON values
type Store struct {
	mu sync.Mutex
	db *sql.DB

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// Open opens (or creates) the store at the given path
func Open(path string) (*Store, error) {
	// _busy_timeout=5000 - wait up to 5 seconds when the database is locked
	// _txlock=immediate - acquire the write lock immediately in transactions
	connStr := path + "?_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// SQLite does not benefit from multiple write connections
	db.SetMaxOpenConns(1)

	// WAL mode for better concurrent read/write behavior
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("⚠️ Failed to enable WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		log.Printf("⚠️ Failed to set busy timeout: %v", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS records (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	log.Printf("📦 Store initialized: %s", path)
	return &Store{db: db, userLocks: make(map[string]*sync.Mutex)}, nil
}

// UserLock returns the mutex serializing read-modify-write cycles on the
// identity's record. Every component that loads, mutates and saves a
// user record must hold it for the whole cycle; a writer that only holds
// its own lock can overwrite another component's save with the stale
// record it loaded.
func (s *Store) UserLock(identityID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.userLocks[identityID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[identityID] = lock
	}
	return lock
}

// GetRaw returns the raw JSON blob stored at key, reporting presence
func (s *Store) GetRaw(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM records WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}
	return []byte(value), true, nil
}

// Get unmarshals the record at key into v. Returns false when the key is absent.
func (s *Store) Get(key string, v any) (bool, error) {
	raw, found, err := s.GetRaw(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// Set stores v at key, serialized as JSON
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	return s.SetRaw(key, data)
}

// SetRaw stores a raw JSON blob at key
func (s *Store) SetRaw(key string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Remove deletes the record at key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM records WHERE key = ?", key); err != nil {
		return &StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Keys returns all stored keys with the given prefix
func (s *Store) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// substr comparison instead of LIKE: the prefix contains "_", which
	// LIKE would treat as a single-character wildcard
	rows, err := s.db.Query("SELECT key FROM records WHERE substr(key, 1, ?) = ? ORDER BY key", len(prefix), prefix)
	if err != nil {
		return nil, &StorageError{Op: "keys", Key: prefix, Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &StorageError{Op: "keys", Key: prefix, Err: err}
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
