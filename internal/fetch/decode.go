package fetch

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Coding is the decompression scheme selected for a repomd data entry based
// on its href suffix.
type Coding int

const (
	// CodingIdentity passes bytes through unchanged.
	CodingIdentity Coding = iota
	// CodingXZ decompresses an xz stream.
	CodingXZ
	// CodingGzip decompresses a gzip stream.
	CodingGzip
)

// FromHref inspects href's suffix and returns the coding to apply together
// with the local path the decoded content should be written to (href with
// any compression suffix stripped).
func FromHref(href string) (Coding, string) {
	switch {
	case strings.HasSuffix(href, ".xz"):
		return CodingXZ, strings.TrimSuffix(href, ".xz")
	case strings.HasSuffix(href, ".gz"):
		return CodingGzip, strings.TrimSuffix(href, ".gz")
	default:
		return CodingIdentity, href
	}
}

// DecodeToFile reads src fully, decoding it according to coding, and writes
// the decoded bytes to the file at dst, creating parent directories as
// needed.
func DecodeToFile(src io.Reader, coding Coding, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("fetch: create parent of %q: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("fetch: create %q: %w", dst, err)
	}
	defer out.Close()

	var r io.Reader
	switch coding {
	case CodingXZ:
		xr, err := xz.NewReader(src)
		if err != nil {
			return fmt.Errorf("fetch: open xz stream: %w", err)
		}
		r = xr
	case CodingGzip:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("fetch: open gzip stream: %w", err)
		}
		defer gr.Close()
		r = gr
	default:
		r = src
	}

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("fetch: decode into %q: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("fetch: sync %q: %w", dst, err)
	}
	return nil
}
