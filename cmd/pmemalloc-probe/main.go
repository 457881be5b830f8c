// Command pmemalloc-probe is a small diagnostic tool for exercising the
// block allocator outside a real program: it builds an in-process
// allocator of a given size and block size, replays a scripted sequence
// of allocate/release operations, and prints bag occupancy and
// block-conservation results. It is not a production entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pmemalloc-probe",
		Short: "Exercise the pmemalloc block allocator from the command line",
	}
	root.AddCommand(newStatsCommand())
	root.AddCommand(newReplayCommand())
	return root
}
