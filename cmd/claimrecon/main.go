// Command claimrecon reconciles reward claims against a verification oracle.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/claimrecon/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
