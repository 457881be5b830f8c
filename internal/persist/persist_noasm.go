//go:build !amd64

package persist

import "unsafe"

// pwbLine degrades to a data-cache-clean-by-virtual-address instruction
// on architectures lacking any cache-line-writeback opcode, per the
// degrade path the persistence primitives document. arm64's DC CVAC is
// the named example; since no assembly is wired in for any
// architecture in this module, both paths are documented no-ops.
func pwbLine(line unsafe.Pointer) {
	// Stub — would emit DC CVAC, line on arm64, or the architecture's
	// equivalent cache-clean instruction elsewhere.
	_ = line
}

func sfence() {
	// Stub — would emit DMB ST on arm64 or the architecture's store
	// fence.
}
