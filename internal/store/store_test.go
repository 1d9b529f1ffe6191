package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/quay/zlog"

	"github.com/mephi42/rpmindex/internal/metrics"
)

func openStore(t testing.TB) *Store {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "index.sqlite"), metrics.New())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	})
	return s
}

func TestPersistRepoDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.PersistRepo(ctx, "https://example.com/repo", "repodata/primary.sqlite.xz")
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected nonzero rowid")
	}

	_, err = s.PersistRepo(ctx, "https://example.com/repo", "repodata/primary.sqlite.xz")
	if !errors.Is(err, ErrDuplicateRepo) {
		t.Fatalf("got %v, want ErrDuplicateRepo", err)
	}
}

func TestPersistPackageAndElfSymbols(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	repoID, err := s.PersistRepo(ctx, "https://example.com/repo", "repodata/primary.sqlite.xz")
	if err != nil {
		t.Fatal(err)
	}
	pkgID, err := s.PersistPackage(ctx, repoID, "hello", "x86_64", "1.0", "0", "1.el9")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.PersistElfSymbols(ctx, pkgID, "/usr/bin/hello", []Symbol{
		{Name: "puts", Info: 0x12, Other: 0},
		{Name: "puts", Info: 0x12, Other: 0}, // duplicate within the same file
	}); err != nil {
		t.Fatal(err)
	}

	matches, err := s.QuerySymbols(ctx, []string{"puts"})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (one row per inserted symbol)", len(matches))
	}
	for _, m := range matches {
		if m.Package != "hello" || m.File != "/usr/bin/hello" || m.Symbol != "puts" {
			t.Errorf("unexpected match: %+v", m)
		}
	}
}

func TestPersistFileZeroSymbols(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	repoID, err := s.PersistRepo(ctx, "https://example.com/repo", "repodata/primary.sqlite.xz")
	if err != nil {
		t.Fatal(err)
	}
	pkgID, err := s.PersistPackage(ctx, repoID, "hello", "x86_64", "1.0", "0", "1.el9")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PersistFile(ctx, pkgID, "f.txt"); err != nil {
		t.Fatal(err)
	}
	matches, err := s.QuerySymbols(ctx, []string{"anything"})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(matches))
	}
}
