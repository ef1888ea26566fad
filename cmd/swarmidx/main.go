// Command swarmidx is the indexer and analytics store for the Swarm
// storage-incentives ecosystem on Gnosis Chain.
package main

import (
	"context"
	"fmt"
	"os"

	"swarm-indexer/cmd/swarmidx/commands"
)

func main() {
	root := commands.NewRoot()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
