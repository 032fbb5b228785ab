// Command agentwatch streams the activity feed of a multi-agent backend.
package main

import (
	"fmt"
	"os"

	"agentwatch/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
