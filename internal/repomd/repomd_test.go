package repomd

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <revision>1700000000</revision>
  <data type="primary_db">
    <checksum type="sha256">abc123</checksum>
    <open-checksum type="sha256">def456</open-checksum>
    <location href="repodata/abc123-primary.sqlite.xz"/>
    <timestamp>1700000000</timestamp>
    <size>111</size>
    <open-size>222</open-size>
  </data>
  <data type="filelists">
    <checksum type="sha256">zzz</checksum>
    <location href="repodata/zzz-filelists.xml.gz"/>
    <timestamp>1700000000</timestamp>
    <size>10</size>
  </data>
</repomd>`

func openSize(v int64) *int64 { return &v }

func TestParse(t *testing.T) {
	want := &Manifest{
		XMLName:  xml.Name{Space: "http://linux.duke.edu/metadata/repo", Local: "repomd"},
		Revision: 1700000000,
		Data: []DataEntry{
			{
				Type:         "primary_db",
				Checksum:     Checksum{Type: "sha256", Hex: "abc123"},
				OpenChecksum: &Checksum{Type: "sha256", Hex: "def456"},
				Location:     Location{Href: "repodata/abc123-primary.sqlite.xz"},
				Timestamp:    1700000000,
				Size:         111,
				OpenSize:     openSize(222),
			},
			{
				Type:      "filelists",
				Checksum:  Checksum{Type: "sha256", Hex: "zzz"},
				Location:  Location{Href: "repodata/zzz-filelists.xml.gz"},
				Timestamp: 1700000000,
				Size:      10,
			},
		},
	}

	m, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("Parse() mismatch (-want +got):\n%s", diff)
	}

	t.Run("find primary_db", func(t *testing.T) {
		pdb, ok := m.Find("primary_db")
		if !ok {
			t.Fatal("primary_db not found")
		}
		if diff := cmp.Diff(want.Data[0], pdb); diff != "" {
			t.Fatalf("Find() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("find missing", func(t *testing.T) {
		if _, ok := m.Find("nope"); ok {
			t.Fatal("unexpected match")
		}
	})
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		xml  string
	}{
		{"truncated tag", "<repomd><data"},
		{"unclosed element", `<repomd><data type="primary_db">`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(c.xml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseMissingRequiredField(t *testing.T) {
	cases := []struct {
		name string
		xml  string
	}{
		{
			name: "missing location href",
			xml: `<repomd><data type="primary_db">
				<checksum type="sha256">abc123</checksum>
				<location/>
				<timestamp>1</timestamp>
				<size>1</size>
			</data></repomd>`,
		},
		{
			name: "missing checksum type",
			xml: `<repomd><data type="primary_db">
				<checksum>abc123</checksum>
				<location href="repodata/abc123-primary.sqlite.xz"/>
				<timestamp>1</timestamp>
				<size>1</size>
			</data></repomd>`,
		},
		{
			name: "missing data type",
			xml: `<repomd><data>
				<checksum type="sha256">abc123</checksum>
				<location href="repodata/abc123-primary.sqlite.xz"/>
				<timestamp>1</timestamp>
				<size>1</size>
			</data></repomd>`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(c.xml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMissingRequiredField) {
				t.Fatalf("err = %v, want wrapping ErrMissingRequiredField", err)
			}
		})
	}
}
