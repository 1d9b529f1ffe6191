// Package scheduler drives the bounded, concurrent per-package pipeline:
// fetch an RPM, parse its headers, walk its cpio payload, extract ELF
// symbols from candidate members, and persist the results.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/quay/zlog"

	"github.com/mephi42/rpmindex/internal/cpio"
	"github.com/mephi42/rpmindex/internal/elfsym"
	"github.com/mephi42/rpmindex/internal/fetch"
	"github.com/mephi42/rpmindex/internal/metrics"
	"github.com/mephi42/rpmindex/internal/primarydb"
	"github.com/mephi42/rpmindex/internal/rpmfile"
	"github.com/mephi42/rpmindex/internal/store"
)

// minELFPeek is the smallest file size for which the ELF magic check is
// attempted; smaller files are treated as not-ELF without inspection.
const minELFPeek = 16

// Scheduler runs one concurrent pipeline per selected package, bounded to
// Jobs in-flight pipelines, and a second permit pool bounding the
// disk-touching portion of each pipeline (the cpio walk and any hashing it
// triggers) independently of the HTTP fetch itself.
type Scheduler struct {
	fetcher  *fetch.Fetcher
	store    *store.Store
	metrics  *metrics.Metrics
	jobs     int
	failFast bool

	ioPermits *semaphore.Weighted
}

// Option configures a Scheduler constructed by New.
type Option func(*Scheduler)

// FailFast cancels every in-flight and not-yet-started pipeline as soon as
// one package fails, instead of the default of collecting every package's
// error and continuing the rest.
func FailFast(v bool) Option {
	return func(s *Scheduler) { s.failFast = v }
}

// New constructs a Scheduler bounding its per-package pipelines to jobs
// concurrent in flight.
func New(f *fetch.Fetcher, st *store.Store, m *metrics.Metrics, jobs int, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:   f,
		store:     st,
		metrics:   m,
		jobs:      jobs,
		ioPermits: semaphore.NewWeighted(int64(jobs)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run schedules one pipeline per descriptor yielded by packages, at most
// Jobs concurrent, and waits for all of them to finish. With the default
// (non-FailFast) policy every package's error is collected and joined into
// the returned error; the rest of the run proceeds regardless. Under
// FailFast, the first package error cancels every pipeline not yet
// complete.
func (s *Scheduler) Run(ctx context.Context, repoURI string, repoID int64, packages iter.Seq2[primarydb.PackageDescriptor, error]) error {
	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.jobs)

	var mu sync.Mutex
	var errs []error
	addErr := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for pd, err := range packages {
		if err != nil {
			addErr(fmt.Errorf("scheduler: enumerate packages: %w", err))
			break
		}
		if runCtx.Err() != nil {
			break // a prior FailFast failure already cancelled the group
		}
		s.metrics.IncPackagesTotal()

		g.Go(func() error {
			if err := s.indexPackage(runCtx, repoURI, repoID, pd); err != nil {
				zlog.Error(runCtx).Err(err).Str("package", pd.Name).Msg("package indexing failed")
				s.metrics.IncPackagesFailed()
				addErr(fmt.Errorf("scheduler: package %q: %w", pd.Name, err))
				if s.failFast {
					return err // cancels runCtx for every other in-flight pipeline
				}
				return nil
			}
			s.metrics.IncPackagesIndexed()
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// indexPackage fetches one RPM, persists its Package row, and walks its
// cpio payload, persisting a File row (with ELF symbols, if any) for every
// archive member.
func (s *Scheduler) indexPackage(ctx context.Context, repoURI string, repoID int64, pd primarydb.PackageDescriptor) error {
	uri := joinURL(repoURI, pd.LocationHref)

	resp, err := s.fetcher.Fetch(ctx, uri)
	if err != nil {
		return err
	}
	defer resp.Close()

	if err := s.ioPermits.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("scheduler: acquire io permit: %w", err)
	}
	defer s.ioPermits.Release(1)

	rpm, err := rpmfile.Open(countingBody{resp: resp, m: s.metrics})
	if err != nil {
		return fmt.Errorf("scheduler: open rpm %q: %w", uri, err)
	}

	packageID, err := s.store.PersistPackage(ctx, repoID, pd.Name, pd.Arch, pd.Version, pd.Epoch, pd.Release)
	if err != nil {
		return fmt.Errorf("scheduler: persist package %q: %w", pd.Name, err)
	}

	cr := cpio.NewReader(rpm.Payload)
	for {
		entry, err := cr.Start()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("scheduler: walk cpio for %q: %w", pd.Name, err)
		}

		symbols, err := s.extract(ctx, cr, entry)
		if err != nil {
			return fmt.Errorf("scheduler: walk cpio for %q: %w", pd.Name, err)
		}

		if err := s.store.PersistElfSymbols(ctx, packageID, entry.Name, symbols); err != nil {
			zlog.Error(ctx).Err(err).Str("package", pd.Name).Str("file", entry.Name).
				Msg("persisting file failed, skipping")
			continue
		}
	}
	return nil
}

// extract decides whether entry is worth a full ELF parse and returns its
// symbol list (nil for anything that is not an ELF file). cr must be
// positioned immediately after entry's peek window.
func (s *Scheduler) extract(ctx context.Context, cr *cpio.Reader, entry *cpio.Entry) ([]store.Symbol, error) {
	if entry.Filesize < minELFPeek || !elfsym.LooksLikeELF(entry.Peek) {
		if err := cr.SkipData(entry); err != nil {
			return nil, err
		}
		return nil, cr.End(entry)
	}

	data, err := cr.ReadData(entry)
	if err != nil {
		return nil, err
	}
	if err := cr.End(entry); err != nil {
		return nil, err
	}

	syms, err := elfsym.Symbols(ctx, data)
	if err != nil {
		return nil, err
	}
	out := make([]store.Symbol, len(syms))
	for i, sym := range syms {
		out[i] = store.Symbol{Name: sym.Name, Info: sym.Info, Other: sym.Other}
	}
	return out, nil
}

// joinURL concatenates a repository base URL and a DataEntry/location href,
// which is always relative, tolerating either side carrying a redundant
// slash.
func joinURL(base, href string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

// countingBody adapts a *fetch.Response (which only exposes io.ReadCloser
// through its embedded *http.Response) to a plain io.Reader for
// rpmfile.Open, recording every byte read against Metrics.
type countingBody struct {
	resp *fetch.Response
	m    *metrics.Metrics
}

func (b countingBody) Read(p []byte) (int, error) {
	n, err := b.resp.Body.Read(p)
	if n > 0 {
		b.m.AddBytesFetched(int64(n))
	}
	return n, err
}
