// ivodsync-retry re-fetches records whose AI or LY extraction failed,
// with a per-kind circuit breaker over consecutive failing days
package main

import (
	"context"

	"ivodsync/internal/cli"
)

func main() {
	cli.Main(func(ctx context.Context, app *cli.App) error {
		return app.Svc.RunRetry(ctx)
	})
}
