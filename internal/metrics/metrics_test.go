package metrics

import (
	"bytes"
	"slices"
	"strings"
	"testing"
	"time"
)

// hasRow reports whether dump has a table row whose space-separated cells
// are exactly cells. Dump aligns its columns with spaces, so rows are
// compared cell by cell rather than as literal text.
func hasRow(dump string, cells ...string) bool {
	for _, line := range strings.Split(dump, "\n") {
		if slices.Equal(strings.Fields(line), cells) {
			return true
		}
	}
	return false
}

func TestDumpDelta(t *testing.T) {
	m := New()
	m.RecordInsert("file", 3, time.Millisecond)
	m.IncPackagesIndexed()

	var buf bytes.Buffer
	m.Dump(&buf)
	first := buf.String()
	if !hasRow(first, "insert[file]", "3", "3") {
		t.Fatalf("first dump missing expected row:\n%s", first)
	}
	if !hasRow(first, "packages_indexed", "1", "1") {
		t.Fatalf("first dump missing packages_indexed row:\n%s", first)
	}

	m.RecordInsert("file", 2, time.Millisecond)
	buf.Reset()
	m.Dump(&buf)
	second := buf.String()
	if !hasRow(second, "insert[file]", "5", "2") {
		t.Fatalf("second dump missing delta row:\n%s", second)
	}
}
