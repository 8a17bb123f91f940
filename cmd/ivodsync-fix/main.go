// ivodsync-fix reprocesses specific records: an explicit id list, an id file,
// an alternate failure-ledger file, or (default) the configured ledger
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ivodsync/internal/cli"
)

func main() {
	var (
		fIDs      = flag.String("ivod-ids", "", "comma-separated IVOD ids to fix (default: drain the failure ledger)")
		fIDsFile  = flag.String("ivod-ids-file", "", "file with one IVOD id per line (ledger-format lines accepted)")
		fErrorLog = flag.String("error-log", "", "drain the failure ledger at this path instead of the configured one")
	)
	flag.Parse()

	set := 0
	for _, v := range []string{*fIDs, *fIDsFile, *fErrorLog} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		fmt.Fprintln(os.Stderr, "-ivod-ids, -ivod-ids-file, and -error-log are mutually exclusive")
		os.Exit(1)
	}

	ids, err := collectIDs(*fIDs, *fIDsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	errorLog := *fErrorLog
	cli.Main(func(ctx context.Context, app *cli.App) error {
		if errorLog != "" {
			return app.Svc.RunFixFile(ctx, errorLog)
		}
		return app.Svc.RunFix(ctx, ids)
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

// parseIDs takes the id from each entry; ledger-format lines
// ("<id>,<phase>,<stamp>") contribute their leading field
func parseIDs(fields []string) ([]int64, error) {
	var ids []int64
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if i := strings.IndexByte(f, ','); i >= 0 {
			f = strings.TrimSpace(f[:i])
		}
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad IVOD id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
