package store

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v8"
)

// SymbolMatch is one (package, file, symbol) tuple returned by a symbol
// name lookup.
type SymbolMatch struct {
	Package string
	File    string
	Symbol  string
}

// QuerySymbols returns every (package, file, symbol) tuple whose symbol
// name exactly matches one of names.
func (s *Store) QuerySymbols(ctx context.Context, names []string) ([]SymbolMatch, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var out []SymbolMatch
	for chunk := range chunks(names, internFanout) {
		ds := s.dial.From(goqu.T("elf_symbol").As("es")).
			Join(goqu.T("file").As("f"), goqu.On(goqu.I("es.file_id").Eq(goqu.I("f.id")))).
			Join(goqu.T("package").As("p"), goqu.On(goqu.I("f.package_id").Eq(goqu.I("p.id")))).
			Join(goqu.T("string").As("st"), goqu.On(goqu.I("es.name_id").Eq(goqu.I("st.id")))).
			Select(goqu.I("p.name"), goqu.I("f.name"), goqu.I("st.name")).
			Where(goqu.I("st.name").In(chunk))

		query, args, err := ds.ToSQL()
		if err != nil {
			return nil, fmt.Errorf("store: build symbol query: %w", err)
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("store: query symbols: %w", err)
		}
		for rows.Next() {
			var m SymbolMatch
			if err := rows.Scan(&m.Package, &m.File, &m.Symbol); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan symbol match: %w", err)
			}
			out = append(out, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("store: iterate symbol matches: %w", err)
		}
	}
	return out, nil
}
