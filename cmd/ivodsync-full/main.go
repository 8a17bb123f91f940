// ivodsync-full walks the whole catalog date range and upserts every record
package main

import (
	"context"
	"flag"

	"ivodsync/internal/cli"
)

func main() {
	var (
		fStart = flag.String("start", "", "start date YYYY-MM-DD (default: catalog floor)")
		fEnd   = flag.String("end", "", "end date YYYY-MM-DD inclusive (default: today)")
	)
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		return app.Svc.RunFull(ctx, *fStart, *fEnd)
	})
}
