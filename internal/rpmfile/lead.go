// Package rpmfile parses the on-disk RPM v3 container: the legacy lead, the
// signature and main headers, and the selection of the payload's coding.
package rpmfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// LeadSize is the fixed size of the RPM lead.
const LeadSize = 96

var leadMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

// ErrBadMagic is returned when a lead or header's magic bytes do not match
// what the RPM format requires.
var ErrBadMagic = errors.New("rpmfile: bad magic")

// Lead is the legacy 96-byte RPM lead. Only the magic is semantically
// enforced by this package; the remaining fields are kept for completeness.
type Lead struct {
	Major, Minor  uint8
	Type          uint16
	ArchNum       uint16
	Name          [66]byte
	OSNum         uint16
	SignatureType uint16
}

// readLead consumes exactly LeadSize bytes from r and validates the magic.
func readLead(r io.Reader) (Lead, error) {
	var buf [LeadSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Lead{}, fmt.Errorf("rpmfile: read lead: %w", err)
	}
	if !bytes.Equal(buf[:4], leadMagic) {
		return Lead{}, fmt.Errorf("rpmfile: read lead: %w", ErrBadMagic)
	}
	var l Lead
	l.Major, l.Minor = buf[4], buf[5]
	l.Type = be16(buf[6:8])
	l.ArchNum = be16(buf[8:10])
	copy(l.Name[:], buf[10:76])
	l.OSNum = be16(buf[76:78])
	l.SignatureType = be16(buf[78:80])
	return l, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
