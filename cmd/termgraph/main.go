package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rmax-ai/termgraph/pkg/client"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, client.ErrNotFound) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
