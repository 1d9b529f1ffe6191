// Package fetch implements a permit-bounded HTTPS client and the
// content-aware response decoders layered over it.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/quay/zlog"
)

// ErrStatus is wrapped into the error returned when a fetch receives a
// non-2xx response.
var ErrStatus = fmt.Errorf("fetch: non-2xx response")

// Fetcher performs HTTP GETs bounded by a semaphore sized to the caller's
// concurrency budget.
type Fetcher struct {
	client  *http.Client
	permits *semaphore.Weighted
}

// New constructs a Fetcher whose outbound requests are bounded to jobs
// concurrent in-flight GETs.
func New(jobs int) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		permits: semaphore.NewWeighted(int64(jobs)),
	}
}

// Response wraps an in-flight HTTP response together with the permit it
// holds. Close must be called exactly once, whether or not the body is
// fully read.
type Response struct {
	*http.Response
	release func()
	closed  bool
}

// Close releases the HTTP body and the semaphore permit.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	defer r.release()
	return r.Body.Close()
}

// Fetch acquires one permit, issues a GET against uri, and returns the
// response. The caller must call Close on the result.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (*Response, error) {
	if err := f.permits.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch: acquire permit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		f.permits.Release(1)
		return nil, fmt.Errorf("fetch: build request for %q: %w", uri, err)
	}
	zlog.Debug(ctx).Str("uri", uri).Msg("fetching")
	resp, err := f.client.Do(req)
	if err != nil {
		f.permits.Release(1)
		return nil, fmt.Errorf("fetch: GET %q: %w", uri, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		f.permits.Release(1)
		return nil, fmt.Errorf("fetch: GET %q: %w: status %d", uri, ErrStatus, resp.StatusCode)
	}
	return &Response{Response: resp, release: func() { f.permits.Release(1) }}, nil
}
