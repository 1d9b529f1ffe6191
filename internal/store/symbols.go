package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v8"
)

// Symbol is one dynamic symbol table entry to persist against a file.
type Symbol struct {
	Name  string
	Info  byte
	Other byte
}

// PersistElfSymbols persists fileName under packageID and its symbols,
// interning symbol names in chunked batches bounded by internFanout. The
// whole operation runs inside one SQL transaction.
func (s *Store) PersistElfSymbols(ctx context.Context, packageID int64, fileName string, symbols []Symbol) error {
	return s.withWriter(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: persist symbols for %q: begin tx: %w", fileName, err)
		}
		defer tx.Rollback()

		fileID, err := s.persistFileTx(ctx, tx, packageID, fileName)
		if err != nil {
			return err
		}
		if len(symbols) == 0 {
			return tx.Commit()
		}

		names := make([]string, 0, len(symbols))
		seen := make(map[string]struct{}, len(symbols))
		for _, sym := range symbols {
			if _, ok := seen[sym.Name]; ok {
				continue
			}
			seen[sym.Name] = struct{}{}
			names = append(names, sym.Name)
		}

		ids, err := s.internNames(ctx, tx, names)
		if err != nil {
			return fmt.Errorf("store: persist symbols for %q: %w", fileName, err)
		}

		start := time.Now()
		if err := insertSymbols(ctx, tx, fileID, symbols, ids); err != nil {
			return fmt.Errorf("store: persist symbols for %q: %w", fileName, err)
		}
		s.recordInsert("elf_symbol", len(symbols), start)

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: persist symbols for %q: commit: %w", fileName, err)
		}
		return nil
	})
}

// internNames resolves every name to its string.id, inserting rows for any
// name not already present. It performs the lookups in chunks bounded by
// internFanout to stay under the SQL engine's bound-parameter limit.
func (s *Store) internNames(ctx context.Context, tx *sql.Tx, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	for chunk := range chunks(names, internFanout) {
		if err := s.lookupStrings(ctx, tx, chunk, ids); err != nil {
			return nil, err
		}
	}

	var missing []string
	for _, n := range names {
		if _, ok := ids[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return ids, nil
	}

	start := time.Now()
	if err := insertStrings(ctx, tx, missing); err != nil {
		return nil, err
	}
	s.recordInsert("string", len(missing), start)

	for chunk := range chunks(missing, internFanout) {
		if err := s.lookupStrings(ctx, tx, chunk, ids); err != nil {
			return nil, err
		}
	}
	for _, n := range missing {
		if _, ok := ids[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingIntern, n)
		}
	}
	return ids, nil
}

func (s *Store) lookupStrings(ctx context.Context, tx *sql.Tx, names []string, ids map[string]int64) error {
	ds := s.dial.From("string").Select("id", "name").Where(goqu.C("name").In(names))
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("store: build string lookup: %w", err)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: lookup strings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("store: scan string: %w", err)
		}
		ids[name] = id
	}
	return rows.Err()
}

func insertStrings(ctx context.Context, tx *sql.Tx, names []string) error {
	var b strings.Builder
	b.WriteString("INSERT INTO string(name) VALUES ")
	args := make([]any, len(names))
	for i, n := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?)")
		args[i] = n
	}
	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("store: insert strings: %w", err)
	}
	return nil
}

func insertSymbols(ctx context.Context, tx *sql.Tx, fileID int64, symbols []Symbol, ids map[string]int64) error {
	var b strings.Builder
	b.WriteString("INSERT INTO elf_symbol(file_id, name_id, st_info, st_other) VALUES ")
	args := make([]any, 0, len(symbols)*4)
	for i, sym := range symbols {
		nameID, ok := ids[sym.Name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingIntern, sym.Name)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, fileID, nameID, sym.Info, sym.Other)
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

// chunks yields successive slices of in of length at most n.
func chunks(in []string, n int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for len(in) > 0 {
			end := n
			if end > len(in) {
				end = len(in)
			}
			if !yield(in[:end]) {
				return
			}
			in = in[end:]
		}
	}
}
