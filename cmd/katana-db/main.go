// Command katana-db is the maintenance CLI of SPEC_FULL.md §6.3: stats,
// version and prune over an on-disk environment. Grounded on the
// teacher's cmd/rpcdaemon/main.go shape (cobra root command executed
// with a context, fatal errors logged then os.Exit(1)), simplified
// since this CLI has no server loop to start.
package main

import (
	"context"
	"os"

	"github.com/katana-sh/katana/cmd/katana-db/cmds"
	"github.com/katana-sh/katana/log"
)

func main() {
	root := cmds.RootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
