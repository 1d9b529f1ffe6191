// Command symbol-query looks up which packages and files export a given
// dynamic symbol name, against a database built by rpmindex.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/mephi42/rpmindex/internal/metrics"
	"github.com/mephi42/rpmindex/internal/store"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "symbol-query: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "index.sqlite", "local SQL database file")
	flag.Parse()

	names := flag.Args()
	if len(names) == 0 {
		return fmt.Errorf("usage: symbol-query [--database-url path] SYMBOL [SYMBOL...]")
	}

	st, err := store.Open(ctx, databaseURL, metrics.New())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	matches, err := st.QuerySymbols(ctx, names)
	if err != nil {
		return fmt.Errorf("query symbols: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tFILE\tSYMBOL")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Package, m.File, m.Symbol)
	}
	return tw.Flush()
}
