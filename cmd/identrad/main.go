// identrad is the identra daemon: it runs the event store, the projection
// scheduler and the optional NATS event bus as one process.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
