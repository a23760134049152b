// Command ddflow loads a program description and evaluates it
// incrementally against command scripts, OVSDB updates or test scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ddflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ddflow:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
