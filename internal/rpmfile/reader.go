package rpmfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// ErrUnsupportedFormat is returned when the main header's payload format
// tag names anything other than "cpio".
var ErrUnsupportedFormat = errors.New("rpmfile: unsupported payload format")

// ErrUnsupportedCoding is returned when the main header's payload coding
// tag names anything this package does not know how to decompress.
var ErrUnsupportedCoding = errors.New("rpmfile: unsupported payload coding")

// Reader holds the parsed lead and headers of an RPM, together with the
// decompressed payload stream (a cpio archive) ready to be consumed.
type Reader struct {
	Lead      Lead
	Signature *Header
	Header    *Header
	Payload   io.Reader
}

// Open parses an RPM's lead, signature header, and main header from r,
// selects the payload's decompressor according to the main header's tags
// 1124 (format) and 1125 (coding), and returns a Reader whose Payload field
// streams the decompressed cpio archive.
//
// Only payload format "cpio" is supported. Only coding "xz" and the
// uncompressed codings "", "none" and "raw" are supported; the RPM default
// of "gzip" (when tag 1125 is absent) is rejected, matching this indexer's
// scope.
func Open(r io.Reader) (*Reader, error) {
	cr := &countingReader{r: r}

	lead, err := readLead(cr)
	if err != nil {
		return nil, err
	}
	sig, err := readFullHeader(cr)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: signature header: %w", err)
	}
	main, err := readFullHeader(cr)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: main header: %w", err)
	}

	format, ok, err := main.StringTag(TagPayloadFormat)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: payload format: %w", err)
	}
	if !ok {
		format = "cpio"
	}
	if format != "cpio" {
		return nil, fmt.Errorf("rpmfile: payload format %q: %w", format, ErrUnsupportedFormat)
	}

	coding, ok, err := main.StringTag(TagPayloadCoding)
	if err != nil {
		return nil, fmt.Errorf("rpmfile: payload coding: %w", err)
	}
	if !ok {
		coding = "gzip"
	}

	var payload io.Reader
	switch coding {
	case "xz":
		xr, err := xz.NewReader(cr)
		if err != nil {
			return nil, fmt.Errorf("rpmfile: open xz payload: %w", err)
		}
		payload = xr
	case "", "none", "raw":
		payload = cr
	default:
		return nil, fmt.Errorf("rpmfile: payload coding %q: %w", coding, ErrUnsupportedCoding)
	}

	return &Reader{Lead: lead, Signature: sig, Header: main, Payload: payload}, nil
}
