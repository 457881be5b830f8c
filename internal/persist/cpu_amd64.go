//go:build amd64

package persist

import "golang.org/x/sys/cpu"

// detectWriteBackTier maps the CPU capability bits x/sys/cpu exposes on
// this platform onto a write-back tier preference. x/sys/cpu does not
// surface the CLWB/CLFLUSHOPT feature bits directly at this module
// version, so AVX2/SSE4.2 presence — both later additions than the
// baseline CLFLUSH every amd64 chip has — stand in as a proxy for
// "newer uarch, prefer the newer write-back opcode", with CLFLUSH as
// the universal fallback this proxy never actually needs since no real
// assembly backs any tier yet.
func detectWriteBackTier() writeBackTier {
	switch {
	case cpu.X86.HasAVX2:
		return tierCLWB
	case cpu.X86.HasSSE42:
		return tierCLFLUSHOPT
	default:
		return tierCLFLUSH
	}
}
