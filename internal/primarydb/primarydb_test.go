package primarydb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestLikeFromWildcard(t *testing.T) {
	cases := map[string]string{
		"lib*.so":  "lib%.so",
		"foo?bar":  "foo_bar",
		"100%done": `100\%done`,
		"a_b":      `a\_b`,
		`a\b`:      `a\\b`,
		"*":        "%",
	}
	for in, want := range cases {
		if got := LikeFromWildcard(in); got != want {
			t.Errorf("LikeFromWildcard(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestPackagesRequiresEscapesLiteralUnderscore proves that a literal '_' in
// a --requires pattern is matched as a literal character, not as a SQL
// single-character wildcard. If '_' reached the LIKE predicate unescaped,
// "libgcc_s.so.1" would also match an unrelated capability like
// "libgccXs.so.1", since '_' matches any one character.
func TestPackagesRequiresEscapesLiteralUnderscore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primary.sqlite")
	raw, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	schema := []string{
		`CREATE TABLE packages (
			pkgKey INTEGER PRIMARY KEY,
			pkgId TEXT, name TEXT, arch TEXT, version TEXT, epoch TEXT,
			release TEXT, size_package INTEGER, location_href TEXT, checksum_type TEXT
		)`,
		`CREATE TABLE requires (pkgKey INTEGER, name TEXT)`,
		`INSERT INTO packages VALUES
			(1, 'id1', 'wanted-pkg', 'x86_64', '1.0', '0', '1', 100, 'wanted.rpm', 'sha256'),
			(2, 'id2', 'decoy-pkg', 'x86_64', '1.0', '0', '1', 100, 'decoy.rpm', 'sha256')`,
		`INSERT INTO requires VALUES
			(1, 'libgcc_s.so.1'),
			(2, 'libgccXs.so.1')`,
	}
	for _, stmt := range schema {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if err := raw.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	var got []string
	for pd, err := range db.Packages(ctx, nil, []string{"libgcc_s.so.1"}) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, pd.Name)
	}
	if len(got) != 1 || got[0] != "wanted-pkg" {
		t.Fatalf("Packages() matched %v, want only [wanted-pkg]", got)
	}
}
