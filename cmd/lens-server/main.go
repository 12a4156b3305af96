// Command lens-server runs an HTTP API protected by the configured
// authentication strategy.
//
// Configuration is read from a YAML file (--config, LENS_CONFIG,
// ./config.yaml or /etc/lens/config.yaml) with LENS_* environment
// overrides. See pkg/config for the full list.
package main

import (
	"os"

	"github.com/rhuss/lens/cmd/lens-server/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
