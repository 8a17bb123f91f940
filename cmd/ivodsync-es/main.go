// ivodsync-es aligns the Elasticsearch index with the store. Default scope
// is records updated in the past week; -full compares everything; explicit
// ids narrow the pass to those records
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ivodsync/internal/cli"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/services/search"
)

func main() {
	var (
		fFull    = flag.Bool("full", false, "compare every stored record against the index")
		fIDs     = flag.String("ivod-ids", "", "comma-separated IVOD ids to align")
		fIDsFile = flag.String("ivod-ids-file", "", "file with one IVOD id per line")
	)
	flag.Parse()

	if *fIDs != "" && *fIDsFile != "" {
		fmt.Fprintln(os.Stderr, "-ivod-ids and -ivod-ids-file are mutually exclusive")
		os.Exit(1)
	}

	ids, err := collectIDs(*fIDs, *fIDsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *fFull && len(ids) > 0 {
		fmt.Fprintln(os.Stderr, "-full cannot be combined with explicit ids")
		os.Exit(1)
	}

	cli.Main(func(ctx context.Context, app *cli.App) error {
		if app.Aligner == nil || !app.Aligner.Available(ctx) {
			return perr.Networkf("elasticsearch is not reachable")
		}

		var res search.Result
		var err error
		switch {
		case *fFull:
			res, err = app.Aligner.AlignAll(ctx)
		case len(ids) > 0:
			res, err = app.Aligner.AlignIDs(ctx, ids)
		default:
			res, err = app.Aligner.AlignRecent(ctx, search.RecentWindowDays)
		}
		if err != nil {
			return err
		}

		logger.Get().Info().
			Int("updated", res.Updated).
			Int("skipped", res.Skipped).
			Int("errors", res.Errors).
			Msg("index alignment finished")
		if res.Errors > 0 {
			return perr.Networkf("%d documents failed to index", res.Errors)
		}
		return nil
	})
}

func collectIDs(csv, path string) ([]int64, error) {
	if csv != "" {
		return parseIDs(strings.Split(csv, ","))
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return parseIDs(strings.Split(string(data), "\n"))
}

func parseIDs(fields []string) ([]int64, error) {
	var ids []int64
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad IVOD id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
