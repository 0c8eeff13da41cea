// Command kcibridge runs the KernelCI regression tracker and KCIDB bridge.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kcibridge/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kcibridge: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
