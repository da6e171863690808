// Command termwrightd hosts a single termwright session and serves the
// daemon JSON-line protocol over a Unix domain socket. Argument parsing
// here is deliberately thin: this binary only exposes enough surface to
// start one session and hand its socket path to a caller (or to `exec`
// it straight off a shell).
package main

import (
	"fmt"
	"os"

	"github.com/termwright/termwright/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "termwrightd:", err)
		os.Exit(1)
	}
}
