// Package metrics holds the process-wide counters and timings for an
// indexing run, exported both as Prometheus collectors and as a periodic
// plain-text snapshot.
package metrics

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a mutex-protected counter struct tracking everything the
// indexing run does: per-table insert counts/durations, Store writer
// mutex wait/hold times, package/byte totals, and hashing time.
//
// Alongside the plain counters it maintains (cheaply re-readable for the
// console snapshot), it registers an equivalent set of promauto
// collectors so the same data is available over an HTTP /metrics
// endpoint, should one be wired up.
type Metrics struct {
	mu sync.Mutex

	insertCount map[string]int64
	insertTime  map[string]time.Duration

	writerAcquisitions int64
	writerWaitTotal    time.Duration
	writerHoldTotal    time.Duration

	packagesTotal   int64
	packagesIndexed int64
	packagesFailed  int64
	bytesFetched    int64

	hashTotal time.Duration

	last snapshot
}

type snapshot struct {
	insertCount        map[string]int64
	writerAcquisitions int64
	packagesIndexed    int64
	packagesFailed     int64
	bytesFetched       int64
}

// Package-level collectors, registered once with the default registry, in
// the manner of datastore/postgres/store_metrics.go. A Metrics value is
// just a set of plain counters plus references to these shared collectors,
// so constructing more than one Metrics (e.g. once per test) never
// double-registers.
var (
	promInsertCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpmindex", Subsystem: "store", Name: "insert_total",
		Help: "Rows inserted, by table.",
	}, []string{"table"})
	promInsertDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpmindex", Subsystem: "store", Name: "insert_duration_seconds",
		Help: "Insert duration, by table.",
	}, []string{"table"})
	promWriterWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rpmindex", Subsystem: "store", Name: "writer_wait_seconds",
		Help: "Time spent waiting to acquire the Store writer mutex.",
	})
	promWriterHold = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rpmindex", Subsystem: "store", Name: "writer_hold_seconds",
		Help: "Time the Store writer mutex was held.",
	})
	promPackagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpmindex", Name: "packages_total", Help: "Packages selected for indexing.",
	})
	promPackagesOK = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpmindex", Name: "packages_indexed_total", Help: "Packages indexed successfully.",
	})
	promPackagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpmindex", Name: "packages_failed_total", Help: "Packages that failed indexing.",
	})
	promBytesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpmindex", Name: "bytes_fetched_total", Help: "Bytes read from fetched artifacts.",
	})
	promHashSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpmindex", Name: "hash_seconds_total", Help: "Cumulative time spent hashing files.",
	})
)

// New constructs a Metrics backed by the package's shared collectors.
func New() *Metrics {
	return &Metrics{
		insertCount: make(map[string]int64),
		insertTime:  make(map[string]time.Duration),
	}
}

// RecordInsert accounts for one batch of n rows inserted into table, taking
// d to complete.
func (m *Metrics) RecordInsert(table string, n int, d time.Duration) {
	m.mu.Lock()
	m.insertCount[table] += int64(n)
	m.insertTime[table] += d
	m.mu.Unlock()
	promInsertCount.WithLabelValues(table).Add(float64(n))
	promInsertDuration.WithLabelValues(table).Observe(d.Seconds())
}

// RecordWriterAcquire accounts for one Store writer mutex acquisition that
// waited wait before being granted and was held for hold.
func (m *Metrics) RecordWriterAcquire(wait, hold time.Duration) {
	m.mu.Lock()
	m.writerAcquisitions++
	m.writerWaitTotal += wait
	m.writerHoldTotal += hold
	m.mu.Unlock()
	promWriterWait.Observe(wait.Seconds())
	promWriterHold.Observe(hold.Seconds())
}

// IncPackagesTotal records one package selected for indexing.
func (m *Metrics) IncPackagesTotal() {
	m.mu.Lock()
	m.packagesTotal++
	m.mu.Unlock()
	promPackagesTotal.Inc()
}

// IncPackagesIndexed records one package indexed successfully.
func (m *Metrics) IncPackagesIndexed() {
	m.mu.Lock()
	m.packagesIndexed++
	m.mu.Unlock()
	promPackagesOK.Inc()
}

// IncPackagesFailed records one package that failed indexing.
func (m *Metrics) IncPackagesFailed() {
	m.mu.Lock()
	m.packagesFailed++
	m.mu.Unlock()
	promPackagesFailed.Inc()
}

// AddBytesFetched records n additional bytes read from a fetched artifact.
func (m *Metrics) AddBytesFetched(n int64) {
	m.mu.Lock()
	m.bytesFetched += n
	m.mu.Unlock()
	promBytesFetched.Add(float64(n))
}

// RecordHash records d spent computing a file digest.
func (m *Metrics) RecordHash(d time.Duration) {
	m.mu.Lock()
	m.hashTotal += d
	m.mu.Unlock()
	promHashSeconds.Add(d.Seconds())
}

// Monitor snapshots the counters every interval and writes a
// (metric, value, delta) table to w, until ctx is cancelled. A final
// snapshot is written before Monitor returns.
func (m *Metrics) Monitor(ctx context.Context, w io.Writer, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.Dump(w)
		case <-ctx.Done():
			m.Dump(w)
			return
		}
	}
}

// Dump writes the current counters, and their delta since the previous
// Dump call, to w as a tab-aligned table.
func (m *Metrics) Dump(w io.Writer) {
	m.mu.Lock()
	cur := snapshot{
		insertCount:        cloneCounts(m.insertCount),
		writerAcquisitions: m.writerAcquisitions,
		packagesIndexed:    m.packagesIndexed,
		packagesFailed:     m.packagesFailed,
		bytesFetched:       m.bytesFetched,
	}
	prev := m.last
	m.last = cur
	m.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE\tDELTA")

	tables := make([]string, 0, len(cur.insertCount))
	for t := range cur.insertCount {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(tw, "insert[%s]\t%d\t%d\n", t, cur.insertCount[t], cur.insertCount[t]-prev.insertCount[t])
	}
	fmt.Fprintf(tw, "writer_acquisitions\t%d\t%d\n", cur.writerAcquisitions, cur.writerAcquisitions-prev.writerAcquisitions)
	fmt.Fprintf(tw, "packages_indexed\t%d\t%d\n", cur.packagesIndexed, cur.packagesIndexed-prev.packagesIndexed)
	fmt.Fprintf(tw, "packages_failed\t%d\t%d\n", cur.packagesFailed, cur.packagesFailed-prev.packagesFailed)
	fmt.Fprintf(tw, "bytes_fetched\t%d\t%d\n", cur.bytesFetched, cur.bytesFetched-prev.bytesFetched)
	tw.Flush()
}

func cloneCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
