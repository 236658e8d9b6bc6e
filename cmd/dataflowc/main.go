// Command dataflowc compiles graph-pattern queries into dataflow topologies,
// runs them on the local engine and manages the topology catalog.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
