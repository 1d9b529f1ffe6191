// Package cpio streams "new ASCII" cpio archives (the RPM payload
// container) one entry at a time, exposing a peek-before-body contract so
// callers can decide whether an entry is worth reading in full.
package cpio

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed size of a cpio "new ASCII" entry header.
const HeaderSize = 110

// PeekSize is the maximum number of body bytes captured by Start before the
// caller decides how to consume the rest.
const PeekSize = 8192

// TrailerName is the sentinel entry name marking the end of the archive.
const TrailerName = "TRAILER!!!"

var headerMagic = [6]byte{'0', '7', '0', '7', '0', '1'}

// ErrBadMagic is returned when an entry's header does not start with the
// "070701" new-ASCII magic.
var ErrBadMagic = errors.New("cpio: bad magic")

// ErrBadHexField is returned when a header's hex-ASCII numeric field
// contains a non-hex-digit byte.
var ErrBadHexField = errors.New("cpio: malformed hex field")

// Header is the fixed set of hex-ASCII fields preserved from a cpio entry
// header. Only Namesize and Filesize are consumed by this package; the
// rest are retained for completeness.
type Header struct {
	Ino, Mode, UID, GID  uint32
	Nlink                uint32
	Mtime                uint32
	Filesize             uint32
	DevMajor, DevMinor   uint32
	RDevMajor, RDevMinor uint32
	Namesize             uint32
	Checksum             uint32
}

// Entry is a cpio archive member, including the peek window captured by
// Start. The trailer entry is never returned as an Entry: Start reports it
// as io.EOF.
type Entry struct {
	Header
	Name string
	Peek []byte

	remaining int64 // body bytes not yet consumed beyond Peek
}

// Reader walks a cpio "new ASCII" stream, tracking the byte offset since
// the start of the archive so padding (always relative to that offset, not
// to each entry) is computed correctly.
type Reader struct {
	r   io.Reader
	pos int64
}

// NewReader wraps r, which must begin at the first byte of a cpio archive.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (cr *Reader) read(p []byte) error {
	n, err := io.ReadFull(cr.r, p)
	cr.pos += int64(n)
	return err
}

func (cr *Reader) discard(n int64) error {
	m, err := io.CopyN(io.Discard, cr.r, n)
	cr.pos += m
	return err
}

func padTo4(n int64) int64 {
	return (4 - n%4) % 4
}

func parseHexField(b []byte) (uint32, error) {
	var dst [4]byte
	if _, err := hex.Decode(dst[:], b); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadHexField, b)
	}
	return uint32(dst[0])<<24 | uint32(dst[1])<<16 | uint32(dst[2])<<8 | uint32(dst[3]), nil
}

// Start reads one entry's header, name, and post-name padding, then peeks
// up to PeekSize bytes (or Filesize, if smaller) of the entry's body
// without consuming the rest.
//
// If the entry's name is TrailerName, Start returns io.EOF and no Entry:
// the archive has ended and no further calls should be made.
func (cr *Reader) Start() (*Entry, error) {
	var raw [HeaderSize]byte
	if err := cr.read(raw[:]); err != nil {
		return nil, fmt.Errorf("cpio: read header: %w", err)
	}
	if [6]byte(raw[:6]) != headerMagic {
		return nil, fmt.Errorf("cpio: read header: %w", ErrBadMagic)
	}

	fields := make([]uint32, 13)
	for i := range fields {
		off := 6 + i*8
		v, err := parseHexField(raw[off : off+8])
		if err != nil {
			return nil, fmt.Errorf("cpio: read header: %w", err)
		}
		fields[i] = v
	}
	h := Header{
		Ino: fields[0], Mode: fields[1], UID: fields[2], GID: fields[3],
		Nlink: fields[4], Mtime: fields[5], Filesize: fields[6],
		DevMajor: fields[7], DevMinor: fields[8],
		RDevMajor: fields[9], RDevMinor: fields[10],
		Namesize: fields[11], Checksum: fields[12],
	}

	name := make([]byte, h.Namesize)
	if err := cr.read(name); err != nil {
		return nil, fmt.Errorf("cpio: read name: %w", err)
	}
	if pad := padTo4(cr.pos); pad > 0 {
		if err := cr.discard(pad); err != nil {
			return nil, fmt.Errorf("cpio: pad after name: %w", err)
		}
	}

	nameStr := trimNUL(name)
	if nameStr == TrailerName {
		return nil, io.EOF
	}

	peekLen := int64(h.Filesize)
	if peekLen > PeekSize {
		peekLen = PeekSize
	}
	peek := make([]byte, peekLen)
	if err := cr.read(peek); err != nil {
		return nil, fmt.Errorf("cpio: peek body: %w", err)
	}

	return &Entry{
		Header:    h,
		Name:      nameStr,
		Peek:      peek,
		remaining: int64(h.Filesize) - peekLen,
	}, nil
}

// ReadData completes the body read for e, returning the full contents
// (the captured peek plus whatever remained).
func (cr *Reader) ReadData(e *Entry) ([]byte, error) {
	full := make([]byte, int64(len(e.Peek))+e.remaining)
	copy(full, e.Peek)
	if e.remaining > 0 {
		if err := cr.read(full[len(e.Peek):]); err != nil {
			return nil, fmt.Errorf("cpio: read body: %w", err)
		}
		e.remaining = 0
	}
	return full, nil
}

// SkipData discards whatever body bytes remain beyond the peek, without
// materializing them.
func (cr *Reader) SkipData(e *Entry) error {
	if e.remaining == 0 {
		return nil
	}
	if err := cr.discard(e.remaining); err != nil {
		return fmt.Errorf("cpio: skip body: %w", err)
	}
	e.remaining = 0
	return nil
}

// End consumes the padding following the entry's body. It must be called
// after ReadData or SkipData, once per entry, before the next Start.
func (cr *Reader) End(e *Entry) error {
	if e.remaining != 0 {
		return fmt.Errorf("cpio: End called before body fully consumed")
	}
	if pad := padTo4(cr.pos); pad > 0 {
		if err := cr.discard(pad); err != nil {
			return fmt.Errorf("cpio: pad after body: %w", err)
		}
	}
	return nil
}

func trimNUL(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
