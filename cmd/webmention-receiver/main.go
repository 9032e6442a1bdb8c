// Package main provides the entry point for the webmention receiver.
package main

import (
	"fmt"
	"os"

	"github.com/listenupapp/webmention-receiver/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintf(os.Stderr, "webmention-receiver: %v\n", err)
		os.Exit(1)
	}
}
