// Command platend runs the platen daemon in the foreground using the default
// configuration search path. It exists for service managers that want a
// dedicated daemon binary; `platen daemon run` provides the same runtime with
// flag control.
package main

import (
	"context"
	"log"

	"platen/internal/config"
	"platen/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("run daemon: %v", err)
	}
}
