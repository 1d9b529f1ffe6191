// Package repomd parses the repodata/repomd.xml manifest of an RPM
// repository.
package repomd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/mephi42/rpmindex/internal/xmlutil"
)

// ErrMissingRequiredField is returned by Parse when a data entry is
// syntactically valid XML but omits an attribute the manifest format
// requires (a type, a location href, or a checksum type).
var ErrMissingRequiredField = errors.New("repomd: missing required field")

// Checksum is a named digest of an artifact.
type Checksum struct {
	Type string `xml:"type,attr"`
	Hex  string `xml:",chardata"`
}

// Location is the href of a DataEntry, relative to the repository base.
type Location struct {
	Href string `xml:"href,attr"`
}

// DataEntry describes one metadata artifact listed in the manifest.
type DataEntry struct {
	Type         string    `xml:"type,attr"`
	Checksum     Checksum  `xml:"checksum"`
	OpenChecksum *Checksum `xml:"open-checksum"`
	Location     Location  `xml:"location"`
	Timestamp    float64   `xml:"timestamp"`
	Size         int64     `xml:"size"`
	OpenSize     *int64    `xml:"open-size"`
}

// Manifest is the top-level repomd document.
type Manifest struct {
	XMLName  xml.Name    `xml:"repomd"`
	Revision int64       `xml:"revision"`
	Data     []DataEntry `xml:"data"`
}

// Parse decodes a repomd.xml document from r.
//
// The decoder installs a charset-aware reader so documents that declare a
// non-UTF-8 encoding (or none at all, despite being UTF-8 in practice) still
// parse instead of failing outright.
func Parse(r io.Reader) (*Manifest, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = xmlutil.CharsetReader

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("repomd: parse manifest: %w", err)
	}
	for _, d := range m.Data {
		switch {
		case d.Type == "":
			return nil, fmt.Errorf("repomd: data entry missing type attribute: %w", ErrMissingRequiredField)
		case d.Location.Href == "":
			return nil, fmt.Errorf("repomd: data entry %q missing location href: %w", d.Type, ErrMissingRequiredField)
		case d.Checksum.Type == "":
			return nil, fmt.Errorf("repomd: data entry %q missing checksum type: %w", d.Type, ErrMissingRequiredField)
		}
	}
	return &m, nil
}

// Find returns the first DataEntry of the given type, e.g. "primary_db".
func (m *Manifest) Find(typ string) (DataEntry, bool) {
	for _, d := range m.Data {
		if d.Type == typ {
			return d, true
		}
	}
	return DataEntry{}, false
}
