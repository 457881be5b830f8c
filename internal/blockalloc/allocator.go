// Package blockalloc implements the concurrent chain-based block
// allocator: region layout, initialization/reopening, chain allocation
// with snap-off, and release with forward-only adjacent-chain
// coalescing.
package blockalloc

import (
	"runtime"

	"github.com/fenilsonani/pmemalloc/internal/bag"
	"github.com/fenilsonani/pmemalloc/internal/blockmeta"
	"github.com/fenilsonani/pmemalloc/internal/blockptr"
	"github.com/fenilsonani/pmemalloc/internal/persist"
)

// DefaultMaxChainLen is MAX_CHAIN_LEN when a Config does not override
// it.
const DefaultMaxChainLen uint16 = 1024

// maxStripeLimit bounds stripe count regardless of how many CPUs
// runtime.NumCPU reports, the "implementation limit" the design notes
// call for.
const maxStripeLimit = 256

// Config configures a new BlockAllocator. Exactly one of N or Capacity
// should be set; if both are zero, New refuses with
// ErrInitializationRefused.
type Config struct {
	BlockSize BlockSize
	// N is an explicit block count. Takes precedence over Capacity.
	N uint64
	// Capacity is a region size in bytes; N is derived from it via
	// MaximumNumberOfBlocks when N is zero.
	Capacity uint64
	// MaxChainLen overrides DefaultMaxChainLen; zero means default.
	MaxChainLen uint16
	// StripeCount overrides the hyperthread-count-derived stripe count,
	// primarily so tests can force deterministic stripe counts (e.g. 1).
	StripeCount int
}

// BlockAllocator is the in-process stand-in for the persistent region's
// allocator header plus its free-list state. The real mapping
// collaborator (file/DAX discovery, mmap) is out of scope; this type
// owns the block metadata array and the Bags free-list directly, which
// is where every durability-relevant mutation (pwb/pfence/psync) in
// this module actually happens.
type BlockAllocator struct {
	blockSize   BlockSize
	n           uint64
	maxChainLen uint16
	stripeCount int

	items *blockmeta.Items
	bags  *bag.Bags

	// blocksData stands in for the blocks area of the mapped region —
	// the mapping collaborator itself is out of scope, but the stream
	// cursors in package chains need actual bytes to read and write.
	blocksData []byte
}

func defaultStripeCount(override int) int {
	if override > 0 {
		if override > maxStripeLimit {
			return maxStripeLimit
		}
		return override
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	if n > maxStripeLimit {
		n = maxStripeLimit
	}
	return n
}

// New initializes a fresh BlockAllocator: writes header fields,
// zero-initializes every BlockMetaData, then seeds the free list by
// installing chains of maxChainLen until fewer than maxChainLen blocks
// remain, followed by one odd-length chain for the remainder. psync()
// is issued at the end to mark the initialization durable.
func New(cfg Config) (*BlockAllocator, error) {
	if !cfg.BlockSize.IsValid() {
		return nil, &AllocError{Code: ErrCodeInitializationRefused, Op: "New", Requested: uint64(cfg.BlockSize)}
	}

	n := cfg.N
	if n == 0 {
		n = MaximumNumberOfBlocks(cfg.Capacity, cfg.BlockSize)
	}
	if n == 0 || n > blockptr.InclusiveMaximumNumberOfBlocks {
		return nil, &AllocError{Code: ErrCodeInitializationRefused, Op: "New", Requested: n}
	}

	maxChainLen := cfg.MaxChainLen
	if maxChainLen == 0 {
		maxChainLen = DefaultMaxChainLen
	}

	a := &BlockAllocator{
		blockSize:   cfg.BlockSize,
		n:           n,
		maxChainLen: maxChainLen,
		stripeCount: defaultStripeCount(cfg.StripeCount),
		items:       blockmeta.NewItems(n),
		bags:        bag.NewBags(maxChainLen, defaultStripeCount(cfg.StripeCount)),
		blocksData:  make([]byte, n*uint64(cfg.BlockSize)),
	}

	a.seedFreeList()
	persist.Psync()
	return a, nil
}

// seedFreeList installs chains of maxChainLen blocks starting at index
// 0 until fewer than maxChainLen blocks remain, then one final chain
// for the remainder (if any).
func (a *BlockAllocator) seedFreeList() {
	remaining := a.n
	idx := uint64(0)
	max := uint64(a.maxChainLen)
	for remaining >= max {
		a.installChain(idx, a.maxChainLen)
		idx += max
		remaining -= max
	}
	if remaining > 0 {
		a.installChain(idx, uint16(remaining))
	}
}

func (a *BlockAllocator) installChain(startIdx uint64, length uint16) {
	head := blockptr.New(uint32(startIdx))
	meta := a.items.Get(head)
	meta.Acquire(length)
	meta.ResetBeforeAddToBag()
	persist.Pfence()
	a.bags.Add(length, head, a.items)
}

// Open rebinds an allocator's transient fields (the stripe count)
// after a simulated restart, without touching bag or
// chain state — it operates on the same in-process Items/Bags a prior
// BlockAllocator built, the way a real open() rebinds pointers derived
// from a fresh mmap over an unchanged persistent image. This is the
// hook crash-recovery-emulation tests use: snapshot items/bags logical
// state, then Open a new handle over it.
func Open(blockSize BlockSize, n uint64, maxChainLen uint16, stripeCountOverride int, items *blockmeta.Items, bags *bag.Bags, blocksData []byte) *BlockAllocator {
	return &BlockAllocator{
		blockSize:   blockSize,
		n:           n,
		maxChainLen: maxChainLen,
		stripeCount: defaultStripeCount(stripeCountOverride),
		items:       items,
		bags:        bags,
		blocksData:  blocksData,
	}
}

// Items exposes the metadata array for the snapshot/reopen path and for
// Chains' release logic, which lives in a sibling package.
func (a *BlockAllocator) Items() *blockmeta.Items { return a.items }

// Bags exposes the free-list dispatcher, for the same reason as Items.
func (a *BlockAllocator) Bags() *bag.Bags { return a.bags }

// BlockBytes returns the block-sized byte slice backing p, for the
// stream cursors in package chains to read and write through.
func (a *BlockAllocator) BlockBytes(p blockptr.BlockPointer) []byte {
	off := p.ToMemoryAddress(uint64(a.blockSize))
	return a.blocksData[off : off+uint64(a.blockSize)]
}

// BlockSize returns the region's fixed block size.
func (a *BlockAllocator) BlockSize() BlockSize { return a.blockSize }

// N returns the total block count.
func (a *BlockAllocator) N() uint64 { return a.n }

// MaxChainLen returns MAX_CHAIN_LEN for this region.
func (a *BlockAllocator) MaxChainLen() uint16 { return a.maxChainLen }

// BlocksInUse returns N minus every block currently reachable from the
// free list — diagnostic-only, same caveats as bag.Bag.IsEmpty.
func (a *BlockAllocator) BlocksInUse() uint64 {
	free := a.bags.FreeBlockCount(a.items)
	if free > a.n {
		fatalf("free block count %d exceeds N %d", free, a.n)
	}
	return a.n - free
}

// MaximumFreeChainLength returns the longest chain length with a
// non-empty bag, or 0 if none.
func (a *BlockAllocator) MaximumFreeChainLength() uint16 {
	return a.bags.MaximumFreeChainLength()
}

// blocksRequiredAndValidate turns a byte request into a block count,
// reporting ErrInvalidSize if it exceeds what a single chain can ever
// hold.
func (a *BlockAllocator) blocksRequiredAndValidate(bytes uint64) (uint16, error) {
	n := a.blockSize.BlocksRequired(bytes)
	if n == 0 {
		return 0, nil
	}
	if n > uint64(a.maxChainLen) {
		return 0, &AllocError{Code: ErrCodeInvalidSize, Op: "allocate_chain", Requested: bytes}
	}
	return uint16(n), nil
}

// AllocateChain implements allocate_chain: searches lengths n, n+1, …,
// MAX_CHAIN_LEN in order for the first available chain, snaps off any
// excess length back into its own bag, and returns the head pointer
// with its actual chain length (== n, a block count, matching
// grab_a_chain_exactly_for's search_for_chain_length). Returns
// ErrOutOfMemory if no chain of length >= n exists anywhere.
func (a *BlockAllocator) AllocateChain(bytes uint64) (blockptr.BlockPointer, uint64, error) {
	n, err := a.blocksRequiredAndValidate(bytes)
	if err != nil {
		return blockptr.Null, 0, err
	}
	if n == 0 {
		return blockptr.Null, 0, nil
	}

	head, found := a.allocateChainExact(n)
	if !found {
		return blockptr.Null, 0, &AllocError{Code: ErrCodeOutOfMemory, Op: "allocate_chain", Requested: bytes}
	}
	return head, uint64(n), nil
}

// allocateChainExact is grab_a_chain_exactly_for: ascending search only,
// no smaller-chain fallback.
func (a *BlockAllocator) allocateChainExact(n uint16) (blockptr.BlockPointer, bool) {
	for l := n; l <= a.maxChainLen; l++ {
		head := a.bags.Remove(l, a.items)
		if head.IsNotNull() {
			a.snapOffTail(head, l, n)
			return head, true
		}
	}
	return blockptr.Null, false
}

// grabChain is grab_a_chain: ascending search identical to
// allocateChainExact (with snap-off), then — only if that finds
// nothing — a descending search from min(ideal, maxChainLen) down to 1
// for any smaller chain, returned whole with no snap-off since the
// caller (allocate_chains) will link multiple chains to cover the
// remainder.
func (a *BlockAllocator) grabChain(ideal uint16) (blockptr.BlockPointer, uint16, bool) {
	if ideal > a.maxChainLen {
		ideal = a.maxChainLen
	}
	for l := ideal; l <= a.maxChainLen; l++ {
		head := a.bags.Remove(l, a.items)
		if head.IsNotNull() {
			a.snapOffTail(head, l, ideal)
			return head, ideal, true
		}
	}
	for l := ideal; l >= 1; l-- {
		head := a.bags.Remove(l, a.items)
		if head.IsNotNull() {
			return head, l, true
		}
		if l == 1 {
			break
		}
	}
	return blockptr.Null, 0, false
}

// snapOffTail splits a chain of totalLen blocks starting at head into a
// kept prefix of keepLen blocks and, if totalLen > keepLen, a fresh
// free chain of the remainder re-inserted into its own bag. Both
// resulting heads are flushed. Snap-off always cuts from the tail so
// lower-address blocks stay stable.
func (a *BlockAllocator) snapOffTail(head blockptr.BlockPointer, totalLen, keepLen uint16) {
	headMeta := a.items.Get(head)
	if totalLen == keepLen {
		headMeta.Acquire(keepLen)
		persist.Pfence()
		return
	}

	extra := totalLen - keepLen
	tailHead := blockptr.New(head.Index() + uint32(keepLen))

	tailMeta := a.items.Get(tailHead)
	tailMeta.Acquire(extra)
	tailMeta.ResetBeforeAddToBag()
	persist.Pfence()

	headMeta.Acquire(keepLen)
	persist.Pfence()

	a.bags.Add(extra, tailHead, a.items)
}

// AllocateChains implements allocate_chains: repeatedly grabs the best
// chain available for the remaining byte count, setting the previous
// head's next_chain to each new result, until the full request is covered.
// On any null intermediate result, every chain already grabbed is
// released back to its bag (via ReleaseChain) and ErrOutOfMemory is
// returned — partial allocations are never handed to the caller.
func (a *BlockAllocator) AllocateChains(bytes uint64) (blockptr.BlockPointer, uint64, error) {
	remainingBlocks := a.blockSize.BlocksRequired(bytes)
	if remainingBlocks == 0 {
		return blockptr.Null, 0, nil
	}
	if remainingBlocks > a.n {
		return blockptr.Null, 0, &AllocError{Code: ErrCodeOutOfMemory, Op: "allocate_chains", Requested: bytes}
	}

	var (
		firstHead      = blockptr.Null
		prevHead       = blockptr.Null
		totalAllocated uint64
	)

	for remainingBlocks > 0 {
		ideal := remainingBlocks
		if ideal > uint64(a.maxChainLen) {
			ideal = uint64(a.maxChainLen)
		}
		head, length, ok := a.grabChain(uint16(ideal))
		if !ok {
			// Release every chain grabbed so far back to the free list.
			a.releaseChainList(firstHead)
			return blockptr.Null, 0, &AllocError{Code: ErrCodeOutOfMemory, Op: "allocate_chains", Requested: bytes}
		}

		if firstHead.IsNull() {
			firstHead = head
		} else {
			a.items.Get(prevHead).SetNextChain(head)
			persist.Pfence()
		}
		prevHead = head
		totalAllocated += uint64(length) * uint64(a.blockSize)
		remainingBlocks -= uint64(length)
	}

	// Terminate the list and flush the final link, per the design
	// note's recommendation: write Null, pwb, then nothing further
	// needs releasing since the whole chain succeeded.
	a.items.Get(prevHead).SetNextChain(blockptr.Null)
	persist.Pfence()
	persist.Psync()

	return firstHead, totalAllocated, nil
}

// releaseChainList walks a next_chain-linked list releasing every chain
// back to the allocator — used both by AllocateChains' failure path and
// by Chains' drop-equivalent release.
func (a *BlockAllocator) releaseChainList(head blockptr.BlockPointer) {
	for head.IsNotNull() {
		next := a.items.Get(head).GetNextChain()
		a.ReleaseChain(head)
		head = next
	}
}

// ReleaseChain implements receive_solitary_chain_back: attempts to
// extend the freed chain forward by repeatedly cutting an adjacent
// chain out of its bag and merging, bounded by MAX_CHAIN_LEN, then adds
// the resulting (possibly coalesced) chain to its bag. This is the only
// place the allocator crosses bag boundaries outside normal add/remove.
func (a *BlockAllocator) ReleaseChain(block blockptr.BlockPointer) {
	meta := a.items.Get(block)
	l, stripeIdx := meta.ChainLengthAndBagStripeIndex()
	if stripeIdx != blockmeta.NotInBag {
		fatalf("ReleaseChain: block %v is already in a bag", block)
	}
	if l == 0 || l > a.maxChainLen {
		fatalf("ReleaseChain: block %v has invalid chain length %d", block, l)
	}

	blocksEnd := a.n
	for l < a.maxChainLen {
		adjIdx := uint64(block.Index()) + uint64(l)
		if adjIdx >= blocksEnd {
			break
		}
		adjPtr := blockptr.New(uint32(adjIdx))

		if !a.bags.TryToCut(adjPtr, a.items) {
			break
		}

		adjMeta := a.items.Get(adjPtr)
		m, _ := adjMeta.ChainLengthAndBagStripeIndex()
		if newLen, ok := blockmeta.AddIfMaximumLengthNotExceeded(l, m, a.maxChainLen); ok {
			l = newLen
			meta.Acquire(l)
			persist.Pfence()
		} else {
			adjMeta.ResetBeforeAddToBag()
			persist.Pfence()
			a.bags.Add(m, adjPtr, a.items)
			break
		}
	}

	meta.ResetBeforeAddToBag()
	persist.Pfence()
	a.bags.Add(l, block, a.items)
}
