package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/pmemalloc/pkg/pmemalloc"
)

func newStatsCommand() *cobra.Command {
	var (
		blockSize uint32
		blocks    uint64
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Initialize an allocator and print its freshly-seeded free-list layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			alloc, err := pmemalloc.New(pmemalloc.Config{
				BlockSize: pmemalloc.BlockSize(blockSize),
				N:         blocks,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "N=%d blockSize=%d maxChainLen=%d\n", alloc.N(), alloc.BlockSize(), alloc.MaxChainLen())
			fmt.Fprintf(cmd.OutOrStdout(), "blocksInUse=%d maximumFreeChainLength=%d\n", alloc.BlocksInUse(), alloc.MaximumFreeChainLength())
			return nil
		},
	}

	cmd.Flags().Uint32Var(&blockSize, "block-size", 256, "block size in bytes (64, 128, 256, 512 or 4096)")
	cmd.Flags().Uint64Var(&blocks, "blocks", 16, "number of blocks in the region")
	return cmd
}
