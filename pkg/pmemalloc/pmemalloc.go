// Package pmemalloc is the public facade over the persistent-memory
// chain block allocator: a region sub-allocator that hands out
// fixed-size-block chains from a pre-sized pool, coalesces adjacent
// free chains on release, and is safe for concurrent use by many
// goroutines.
package pmemalloc

import (
	"github.com/fenilsonani/pmemalloc/internal/blockalloc"
	"github.com/fenilsonani/pmemalloc/internal/chains"
)

// BlockSize is one of the five supported block granularities.
type BlockSize = blockalloc.BlockSize

const (
	BlockSize64   = blockalloc.BlockSize64
	BlockSize128  = blockalloc.BlockSize128
	BlockSize256  = blockalloc.BlockSize256
	BlockSize512  = blockalloc.BlockSize512
	BlockSize4096 = blockalloc.BlockSize4096
)

// DefaultMaxChainLen is MAX_CHAIN_LEN when Config does not override it.
const DefaultMaxChainLen = blockalloc.DefaultMaxChainLen

// Config configures a new Allocator. Set either N (an explicit block
// count) or Capacity (a byte budget N is derived from); if both are
// zero New returns ErrInitializationRefused.
type Config = blockalloc.Config

// AllocError is the error type every recoverable operation returns.
type AllocError = blockalloc.AllocError

var (
	ErrOutOfMemory           = blockalloc.ErrOutOfMemory
	ErrInvalidSize           = blockalloc.ErrInvalidSize
	ErrInitializationRefused = blockalloc.ErrInitializationRefused
)

// Allocator wraps a BlockAllocator with the ergonomic Chains-returning
// API external callers use; both AllocateChains and AllocateChain hand
// back a Chains handle.
type Allocator struct {
	inner *blockalloc.BlockAllocator
}

// New builds a fresh Allocator per cfg.
func New(cfg Config) (*Allocator, error) {
	inner, err := blockalloc.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Allocator{inner: inner}, nil
}

// BlockSize returns the region's fixed block size.
func (a *Allocator) BlockSize() BlockSize { return a.inner.BlockSize() }

// N returns the total block count.
func (a *Allocator) N() uint64 { return a.inner.N() }

// MaxChainLen returns MAX_CHAIN_LEN for this allocator.
func (a *Allocator) MaxChainLen() uint16 { return a.inner.MaxChainLen() }

// BlocksInUse reports how many blocks are not currently free.
// Diagnostic-only — see the caveats on the underlying bag package.
func (a *Allocator) BlocksInUse() uint64 { return a.inner.BlocksInUse() }

// MaximumFreeChainLength reports the longest chain currently free.
func (a *Allocator) MaximumFreeChainLength() uint16 { return a.inner.MaximumFreeChainLength() }

// AllocateChains allocates enough chains to cover bytes and wraps them
// in a Chains handle the caller must Release exactly once.
func (a *Allocator) AllocateChains(bytes uint64) (*chains.Chains, error) {
	head, _, err := a.inner.AllocateChains(bytes)
	if err != nil {
		return nil, err
	}
	return chains.New(a.inner, head), nil
}

// AllocateChain allocates a single chain of exactly ceil(bytes/BlockSize)
// blocks, returning it wrapped in a Chains handle plus that chain length
// in blocks (not bytes). The caller must Release the handle exactly once.
func (a *Allocator) AllocateChain(bytes uint64) (*chains.Chains, uint64, error) {
	head, chainLength, err := a.inner.AllocateChain(bytes)
	if err != nil {
		return nil, 0, err
	}
	return chains.New(a.inner, head), chainLength, nil
}
