// Package persist implements the cache-line write-back, store-ordering
// fence and durability-sync primitives that every mutation to the
// persistent region must sequence through, plus the small set of
// platform probes (cache line size, hyperthread index, 32-bit random)
// the rest of the allocator treats as collaborators.
package persist

import (
	"math/rand"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is the granularity pwb operates on. 64 bytes on amd64
// and arm64, 32 elsewhere, matching the split the original CPU-intrinsic
// layer made between 32-bit and 64-bit architectures.
func CacheLineSize() uintptr {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return 64
	default:
		return 32
	}
}

// Pwb issues a cache-line write-back for the line containing addr. It
// does not block and does not order anything by itself — pfence does
// that. The real instruction selection (CLWB > CLFLUSHOPT > CLFLUSH,
// DC CVAC on arm64) lives in the architecture-specific files; this
// function only rounds addr down to its cache line.
func Pwb(addr unsafe.Pointer) {
	line := uintptr(addr) &^ (CacheLineSize() - 1)
	pwbLine(unsafe.Pointer(line))
}

// Pfence is a store-ordering fence: every Pwb issued by this thread
// before the call is ordered before every Pwb or durable-visible store
// issued after it.
func Pfence() {
	sfence()
}

// Psync blocks until every prior Pwb from this thread has reached the
// persistence domain. Kept distinct from Pfence in the API even though
// on every architecture supported here it has the same implementation —
// the instruction that used to separate them (PCOMMIT) was withdrawn
// before release on real hardware, so callers mark durability
// boundaries with Psync while the compose rules in atomic.go still
// reason about Pfence separately.
func Psync() {
	sfence()
}

var hyperThreadCounter uint64

// hyperThreadIndex is a process-local stand-in for "which hyperthread
// is this": the real probe would read an APIC ID or cpuid leaf 0xB;
// here every call advances a process-wide counter and returns it modulo
// stripeCount, so successive calls rotate through the stripes. The
// result does not identify the calling CPU or goroutine; callers use it
// for dispersion, not identity.
func HyperThreadIndex(stripeCount int) int {
	if stripeCount <= 0 {
		return 0
	}
	n := atomic.AddUint64(&hyperThreadCounter, 1)
	return int(n % uint64(stripeCount))
}

// Random32 returns a pseudo-random stripe index in [0, n). The original
// prefers a hardware RNG instruction when available and falls back to a
// thread-local PRNG otherwise; math/rand's global source plays that
// fallback role here since no hardware RNG is exposed by this runtime.
func Random32(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.Intn(n)
}
