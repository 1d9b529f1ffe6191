// Package elfsym extracts the dynamic symbol table of an ELF binary.
package elfsym

import (
	"bytes"
	"context"
	"debug/elf"

	"github.com/quay/zlog"
)

// Symbol is one entry of an ELF file's dynamic symbol table, with its name
// resolved through the dynamic string table.
type Symbol struct {
	Name  string
	Info  byte
	Other byte
}

// LooksLikeELF reports whether peek (the first bytes of a file) is at least
// 16 bytes long (the size of the ELF identification block) and begins with
// the ELF magic. It is meant as a cheap pre-filter before a full parse is
// attempted.
func LooksLikeELF(peek []byte) bool {
	return len(peek) >= 16 && bytes.Equal(peek[:4], []byte(elf.ELFMAG))
}

// Symbols parses the dynamic symbol table out of the full contents of an
// ELF file and resolves each symbol's name via the dynamic string table.
//
// Symbols whose name cannot be resolved are dropped and logged. A file that
// fails to parse as ELF (despite passing LooksLikeELF) is treated as "not
// an ELF file": Symbols returns a nil slice and no error.
func Symbols(ctx context.Context, data []byte) ([]Symbol, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		zlog.Debug(ctx).Err(err).Msg("not a parseable ELF file")
		return nil, nil
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		zlog.Debug(ctx).Err(err).Msg("no dynamic symbol table")
		return nil, nil
	}

	out := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Name == "" {
			zlog.Debug(ctx).Msg("dropping symbol with unresolvable name")
			continue
		}
		out = append(out, Symbol{
			Name:  s.Name,
			Info:  s.Info,
			Other: s.Other,
		})
	}
	return out, nil
}
