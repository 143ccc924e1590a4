package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/tape/artifact"
	"github.com/chazu/tape/compiler"
)

const schema = `
CREATE TABLE IF NOT EXISTS programs (
	hash     BLOB PRIMARY KEY,
	artifact BLOB NOT NULL,
	created  INTEGER NOT NULL
)`

// SQLiteStore persists programs as artifacts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the program cache at path. The
// parent directory is created as well.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: cannot create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema in %s: %w", path, err)
	}
	log.Debugf("opened program cache %s", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(hash [32]byte) (*compiler.Program, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT artifact FROM programs WHERE hash = ?`, hash[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %x: %w", hash[:4], err)
	}
	p, err := artifact.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: get %x: %w", hash[:4], err)
	}
	return p, nil
}

// Put stores p under its hash, replacing any previous entry. Programs with
// a zero hash are silently ignored.
func (s *SQLiteStore) Put(p *compiler.Program) error {
	if p.Hash == ([32]byte{}) {
		return nil
	}
	data, err := artifact.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: put %x: %w", p.Hash[:4], err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO programs (hash, artifact, created) VALUES (?, ?, ?)`,
		p.Hash[:], data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: put %x: %w", p.Hash[:4], err)
	}
	return nil
}

func (s *SQLiteStore) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM programs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
