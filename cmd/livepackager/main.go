// Command livepackager wraps the packager façade (internal/packager) with a
// file-based CLI: read an init/media segment pair from disk, apply a
// configured output format and encryption, write the result.
package main

import (
	"os"

	"github.com/jmylchreest/livepackager/cmd/livepackager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
