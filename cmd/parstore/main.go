// Command parstore is a thin entry point over internal/cli.
package main

import (
	"fmt"
	"os"

	"github.com/parstore/parstore/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
