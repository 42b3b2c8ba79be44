// Command plos is the command-line interface to a plos replica.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/plos/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
