// Command opsdesk drives an opsdesk client session from the command line.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/opsdesk/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Command failures are reported by the command itself; anything else is
	// a usage error from flag or argument parsing.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.GetExitCode(err))
}
