package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/omtest/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), cli.NewRootCommand()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
