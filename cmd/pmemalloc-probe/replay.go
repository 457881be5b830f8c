package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/pmemalloc/internal/chains"
	"github.com/fenilsonani/pmemalloc/pkg/pmemalloc"
)

// Script describes a scripted allocate/release sequence against a
// freshly-built allocator, letting the scenarios in the testable
// properties be replayed without recompiling.
type Script struct {
	Blocks    uint64       `yaml:"blocks"`
	BlockSize uint32       `yaml:"block_size"`
	Steps     []ScriptStep `yaml:"steps"`
}

// ScriptStep is one allocate or release operation. Alloc steps name the
// resulting handle so a later release step can reference it.
type ScriptStep struct {
	Op    string `yaml:"op"` // "alloc" or "release"
	Name  string `yaml:"name"`
	Bytes uint64 `yaml:"bytes"`
}

func newReplayCommand() *cobra.Command {
	var scriptPath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a YAML-scripted allocate/release sequence and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("reading script: %w", err)
			}
			var script Script
			if err := yaml.Unmarshal(raw, &script); err != nil {
				return fmt.Errorf("parsing script: %w", err)
			}
			return runScript(cmd, script)
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "path to a YAML allocate/release script")
	cmd.MarkFlagRequired("script")
	return cmd
}

func runScript(cmd *cobra.Command, script Script) error {
	alloc, err := pmemalloc.New(pmemalloc.Config{
		BlockSize: pmemalloc.BlockSize(script.BlockSize),
		N:         script.Blocks,
	})
	if err != nil {
		return err
	}

	handles := map[string]*chains.Chains{}
	for i, step := range script.Steps {
		switch step.Op {
		case "alloc":
			h, chainLength, err := alloc.AllocateChain(step.Bytes)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "step %d: alloc %q failed: %v\n", i, step.Name, err)
				continue
			}
			handles[step.Name] = h
			fmt.Fprintf(cmd.OutOrStdout(), "step %d: alloc %q -> %d blocks\n", i, step.Name, chainLength)
		case "release":
			h, ok := handles[step.Name]
			if !ok {
				return fmt.Errorf("step %d: release %q: no such handle", i, step.Name)
			}
			h.Release()
			delete(handles, step.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "step %d: release %q\n", i, step.Name)
		default:
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "blocksInUse=%d maximumFreeChainLength=%d\n", alloc.BlocksInUse(), alloc.MaximumFreeChainLength())
	return nil
}
