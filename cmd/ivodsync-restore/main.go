// ivodsync-restore loads a backup envelope into the transcript store.
// Destructive steps (creating the table, clearing existing rows) prompt on
// the terminal unless forced
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"ivodsync/internal/cli"
	"ivodsync/internal/services/backup"
)

func main() {
	var (
		fForceCreate = flag.Bool("force-create", false, "create the table without asking")
		fForceClear  = flag.Bool("force-clear", false, "clear existing records without asking")
		fForceAll    = flag.Bool("force-all", false, "force every destructive step")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ivodsync-restore [flags] <backup-file>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	cli.Main(func(ctx context.Context, app *cli.App) error {
		return app.Backup.Restore(ctx, path, backup.RestoreOptions{
			ForceCreate: *fForceCreate || *fForceAll,
			ForceClear:  *fForceClear || *fForceAll,
			Confirm:     askYesNo,
		})
	})
}

func askYesNo(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
