// ivodsync-incremental inserts new catalog records from the past two weeks
// and backfills transcript sides that are still empty
package main

import (
	"context"

	"ivodsync/internal/cli"
)

func main() {
	cli.Main(func(ctx context.Context, app *cli.App) error {
		return app.Svc.RunIncremental(ctx)
	})
}
