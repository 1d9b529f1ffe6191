// Package store persists the indexed repo/package/file/string/symbol rows
// to a single-file embedded SQL database, and interns symbol names in
// batches to keep round-trips bounded.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3"
	_ "modernc.org/sqlite"

	"github.com/mephi42/rpmindex/internal/metrics"
)

//go:embed sql/schema.sql
var schemaFS embed.FS

// internFanout is the SQL engine's parameter-limit-bounded chunk size used
// when interning strings: SQLite's default bound on bound parameters is
// 999.
const internFanout = 999

// ErrDuplicateRepo is returned by PersistRepo when a repo with the same URI
// has already been inserted. Re-indexing a repository in place is out of
// scope; every run expects a fresh database.
var ErrDuplicateRepo = errors.New("store: duplicate repo uri")

// ErrMissingIntern is returned if a name fails to resolve to a row id even
// after the insert-then-relookup pass.
var ErrMissingIntern = errors.New("store: could not intern string")

// Store is a single, mutex-guarded connection to the local index database.
type Store struct {
	db   *sql.DB
	dial goqu.DialectWrapper
	mu   sync.Mutex
	m    *metrics.Metrics
}

// Open opens (creating if absent) the database file at path and applies the
// baseline schema.
func Open(ctx context.Context, path string, m *metrics.Metrics) (*Store, error) {
	dsn := "file:" + url.PathEscape(path) + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %q: %w", path, err)
	}
	schema, err := schemaFS.ReadFile("sql/schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read embedded schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db, dial: goqu.Dialect("sqlite3"), m: m}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// withWriter serializes fn against every other Store writer, recording the
// wait and hold times into the Metrics passed to Open.
func (s *Store) withWriter(fn func() error) error {
	waitStart := time.Now()
	s.mu.Lock()
	wait := time.Since(waitStart)
	holdStart := time.Now()
	defer func() {
		hold := time.Since(holdStart)
		s.mu.Unlock()
		if s.m != nil {
			s.m.RecordWriterAcquire(wait, hold)
		}
	}()
	return fn()
}

// PersistRepo inserts a Repo row and returns its id. A duplicate uri fails
// with ErrDuplicateRepo.
func (s *Store) PersistRepo(ctx context.Context, uri, primaryDBHref string) (int64, error) {
	var id int64
	err := s.withWriter(func() error {
		start := time.Now()
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO repo(uri, primary_db_href) VALUES (?, ?)`, uri, primaryDBHref)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("store: persist repo %q: %w", uri, ErrDuplicateRepo)
			}
			return fmt.Errorf("store: persist repo %q: %w", uri, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: persist repo %q: read rowid: %w", uri, err)
		}
		s.recordInsert("repo", 1, start)
		return nil
	})
	return id, err
}

// PersistPackage inserts a Package row scoped to repoID and returns its id.
func (s *Store) PersistPackage(ctx context.Context, repoID int64, name, arch, version, epoch, release string) (int64, error) {
	var id int64
	err := s.withWriter(func() error {
		start := time.Now()
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO package(repo_id, name, arch, version, epoch, release) VALUES (?, ?, ?, ?, ?, ?)`,
			repoID, name, arch, version, epoch, release)
		if err != nil {
			return fmt.Errorf("store: persist package %q: %w", name, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: persist package %q: read rowid: %w", name, err)
		}
		s.recordInsert("package", 1, start)
		return nil
	})
	return id, err
}

// PersistFile inserts a File row scoped to packageID and returns its id.
func (s *Store) PersistFile(ctx context.Context, packageID int64, name string) (int64, error) {
	var id int64
	err := s.withWriter(func() error {
		id2, err := s.persistFileTx(ctx, s.db, packageID, name)
		id = id2
		return err
	})
	return id, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) persistFileTx(ctx context.Context, tx execer, packageID int64, name string) (int64, error) {
	start := time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO file(package_id, name) VALUES (?, ?)`, packageID, name)
	if err != nil {
		return 0, fmt.Errorf("store: persist file %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: persist file %q: read rowid: %w", name, err)
	}
	s.recordInsert("file", 1, start)
	return id, nil
}

func (s *Store) recordInsert(table string, n int, start time.Time) {
	if s.m != nil {
		s.m.RecordInsert(table, n, time.Since(start))
	}
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite wraps the SQLite result code in its error's
	// message rather than a typed value; matching on the well-known
	// phrase is how callers outside the driver itself detect this.
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
