// ivodsync-backup dumps the transcript table to a JSON envelope
package main

import (
	"context"
	"flag"
	"fmt"

	"ivodsync/internal/cli"
)

func main() {
	fFile := flag.String("file", "", "backup file path (default: backup/ivod_backup_<timestamp>.json)")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		path, err := app.Backup.Dump(ctx, *fFile)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Println("nothing to back up")
			return nil
		}
		fmt.Println("backup written:", path)
		return nil
	})
}
