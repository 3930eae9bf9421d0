package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
