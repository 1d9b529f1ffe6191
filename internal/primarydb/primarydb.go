// Package primarydb reads the createrepo_c-produced primary package catalog
// that ships with every repomd repository.
package primarydb

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3"
	_ "modernc.org/sqlite"
)

// PackageDescriptor is one row of the primary catalog's packages table,
// joined against the set of capabilities it requires.
type PackageDescriptor struct {
	PkgKey       int64
	PkgID        string
	Name         string
	Arch         string
	Version      string
	Epoch        string
	Release      string
	Size         int64
	LocationHref string
	ChecksumAlgo string
	Requires     []string
}

// DB is a read-only handle onto a downloaded primary.sqlite catalog.
type DB struct {
	sql  *sql.DB
	dial goqu.DialectWrapper
}

// Open opens the catalog file at path read-only.
func Open(path string) (*DB, error) {
	dsn := "file:" + url.PathEscape(path) + "?_pragma=query_only(1)&mode=ro"
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("primarydb: open %q: %w", path, err)
	}
	if err := d.Ping(); err != nil {
		d.Close()
		return nil, fmt.Errorf("primarydb: ping %q: %w", path, err)
	}
	return &DB{sql: d, dial: goqu.Dialect("sqlite3")}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.sql.Close() }

// LikeFromWildcard translates a shell-style wildcard pattern (using only
// '*' and '?') into the SQL LIKE pattern language, escaping any literal
// '%', '_', or '\' already present in the input.
func LikeFromWildcard(pat string) string {
	var b strings.Builder
	for _, r := range pat {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Packages enumerates the packages matching arches and requires.
//
// arches restricts results to packages whose arch is one of the given
// values; an empty slice means no restriction. requires is a set of
// shell-style wildcard patterns over required-capability names; a package
// is retained if any pattern matches any of its required capabilities. An
// empty requires slice means no restriction.
func (db *DB) Packages(ctx context.Context, arches, requires []string) iter.Seq2[PackageDescriptor, error] {
	return func(yield func(PackageDescriptor, error) bool) {
		ds := db.dial.From("packages").Select(
			"pkgKey", "pkgId", "name", "arch", "version", "epoch", "release",
			"size_package", "location_href", "checksum_type",
		)
		if len(arches) > 0 {
			ds = ds.Where(goqu.C("arch").In(arches))
		}
		if len(requires) > 0 {
			var ors goqu.Expression
			for _, pat := range requires {
				like := goqu.L("? LIKE ? ESCAPE '\\'", goqu.I("name"), LikeFromWildcard(pat))
				if ors == nil {
					ors = like
				} else {
					ors = goqu.Or(ors, like)
				}
			}
			sub := db.dial.From("requires").Select("pkgKey").Where(ors)
			ds = ds.Where(goqu.C("pkgKey").In(sub))
		}

		query, args, err := ds.ToSQL()
		if err != nil {
			yield(PackageDescriptor{}, fmt.Errorf("primarydb: build query: %w", err))
			return
		}
		rows, err := db.sql.QueryContext(ctx, query, args...)
		if err != nil {
			yield(PackageDescriptor{}, fmt.Errorf("primarydb: query packages: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var p PackageDescriptor
			if err := rows.Scan(&p.PkgKey, &p.PkgID, &p.Name, &p.Arch, &p.Version,
				&p.Epoch, &p.Release, &p.Size, &p.LocationHref, &p.ChecksumAlgo); err != nil {
				yield(PackageDescriptor{}, fmt.Errorf("primarydb: scan package: %w", err))
				return
			}
			p.Requires, err = db.requiresFor(ctx, p.PkgKey)
			if err != nil {
				yield(PackageDescriptor{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(PackageDescriptor{}, fmt.Errorf("primarydb: iterate packages: %w", err))
		}
	}
}

func (db *DB) requiresFor(ctx context.Context, pkgKey int64) ([]string, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT name FROM requires WHERE pkgKey = ?`, pkgKey)
	if err != nil {
		return nil, fmt.Errorf("primarydb: query requires for pkgKey %d: %w", pkgKey, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("primarydb: scan require: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
