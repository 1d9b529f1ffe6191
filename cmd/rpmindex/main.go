// Command rpmindex indexes an RPM repository's dynamic ELF symbol tables
// into a local SQL database.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/joho/godotenv"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/mephi42/rpmindex/internal/fetch"
	"github.com/mephi42/rpmindex/internal/hashutil"
	"github.com/mephi42/rpmindex/internal/metrics"
	"github.com/mephi42/rpmindex/internal/primarydb"
	"github.com/mephi42/rpmindex/internal/repomd"
	"github.com/mephi42/rpmindex/internal/scheduler"
	"github.com/mephi42/rpmindex/internal/store"
)

// Config mirrors cmd/libindexhttp's goconfig idiom for the one setting that
// has a natural environment-variable home; the rest of the flags below are
// CLI-only (arches, requires, concurrency) and have no env equivalent.
type Config struct {
	DatabaseURL string `cfgDefault:"index.sqlite" cfg:"DATABASE_URL" cfgHelper:"Path to the local index database"`
}

const metricsInterval = 5 * time.Second

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rpmindex: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	conf := Config{}
	if err := goconfig.Parse(&conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var (
		databaseURL string
		arches      []string
		requires    []string
		jobs        int
		failFast    bool
		logLevel    string
	)
	flag.StringVar(&databaseURL, "database-url", conf.DatabaseURL, "local SQL database file")
	flag.StringArrayVar(&arches, "arch", nil, "restrict to this arch (repeatable)")
	flag.StringArrayVar(&requires, "requires", nil, "restrict to packages requiring a capability matching this wildcard (repeatable)")
	flag.IntVarP(&jobs, "jobs", "j", 1, "concurrent package pipelines")
	flag.BoolVar(&failFast, "fail-fast", false, "cancel the run on the first package failure")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error, fatal, panic")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger().Level(parseLevel(logLevel))
	zlog.Set(&log)
	ctx = log.WithContext(ctx)

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: rpmindex [flags] URI")
	}
	repoURI := strings.TrimRight(flag.Arg(0), "/")
	if _, err := url.Parse(repoURI); err != nil {
		return fmt.Errorf("malformed repository URI %q: %w", repoURI, err)
	}

	m := metrics.New()
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go m.Monitor(monitorCtx, os.Stderr, metricsInterval)

	st, err := store.Open(ctx, databaseURL, m)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	f := fetch.New(jobs)

	manifestURI := repoURI + "/repodata/repomd.xml"
	manifestResp, err := f.Fetch(ctx, manifestURI)
	if err != nil {
		return fmt.Errorf("fetch repomd manifest: %w", err)
	}
	manifest, err := repomd.Parse(manifestResp.Body)
	manifestResp.Close()
	if err != nil {
		return fmt.Errorf("parse repomd manifest: %w", err)
	}

	primaryEntry, ok := manifest.Find("primary_db")
	if !ok {
		return fmt.Errorf("repomd manifest has no primary_db data entry")
	}

	repoID, err := st.PersistRepo(ctx, repoURI, primaryEntry.Location.Href)
	if err != nil {
		return fmt.Errorf("persist repo: %w", err)
	}

	primaryPath, err := fetchPrimaryDB(ctx, f, m, repoURI, primaryEntry)
	if err != nil {
		return fmt.Errorf("materialize primary catalog: %w", err)
	}

	pdb, err := primarydb.Open(primaryPath)
	if err != nil {
		return fmt.Errorf("open primary catalog: %w", err)
	}
	defer pdb.Close()

	sched := scheduler.New(f, st, m, jobs, scheduler.FailFast(failFast))
	if err := sched.Run(ctx, repoURI, repoID, pdb.Packages(ctx, arches, requires)); err != nil {
		m.Dump(os.Stderr)
		return fmt.Errorf("index packages: %w", err)
	}
	m.Dump(os.Stderr)
	return nil
}

// fetchPrimaryDB downloads and decodes the primary_db DataEntry to a local
// file, skipping the download if a previously decoded copy already matches
// the manifest's open_checksum.
func fetchPrimaryDB(ctx context.Context, f *fetch.Fetcher, m *metrics.Metrics, repoURI string, entry repomd.DataEntry) (string, error) {
	coding, localPath := fetch.FromHref(entry.Location.Href)
	localPath = filepath.Join(os.TempDir(), "rpmindex-"+filepath.Base(localPath))

	if entry.OpenChecksum != nil && upToDate(localPath, *entry.OpenChecksum, m) {
		return localPath, nil
	}

	uri := repoURI + "/" + strings.TrimLeft(entry.Location.Href, "/")
	resp, err := f.Fetch(ctx, uri)
	if err != nil {
		return "", err
	}
	defer resp.Close()

	if err := fetch.DecodeToFile(resp.Body, coding, localPath); err != nil {
		return "", err
	}

	if entry.OpenChecksum != nil {
		if !upToDate(localPath, *entry.OpenChecksum, m) {
			return "", fmt.Errorf("decoded %q does not match open_checksum", localPath)
		}
	}
	return localPath, nil
}

func upToDate(path string, sum repomd.Checksum, m *metrics.Metrics) bool {
	start := time.Now()
	digest, err := hashutil.File(path, sum.Type)
	m.RecordHash(time.Since(start))
	return err == nil && digest == sum.Hex
}

func parseLevel(s string) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}
