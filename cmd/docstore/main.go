// Command docstore inspects and maintains a docstore database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/docstore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Commands report their own failures through the output formatter;
	// cobra prints usage errors.
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
