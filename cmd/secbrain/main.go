// Command secbrain captures videos, links, images and notes from a WhatsApp
// chat into a local SQLite store.
package main

import (
	"os"

	"github.com/mikig28/secbrain/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
