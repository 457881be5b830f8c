// Package blockmeta implements the per-block metadata record: the
// packed chain-length/bag-stripe-index word, the in-bag free-list link
// and the inter-chain link, plus the contiguous array of these records
// addressed by BlockPointer.
package blockmeta

import (
	"fmt"

	"github.com/fenilsonani/pmemalloc/internal/blockptr"
	"github.com/fenilsonani/pmemalloc/internal/persist"
)

// NotInBag is the bag_stripe_index sentinel meaning "this block is not
// currently reachable from any bag".
const NotInBag uint16 = 0xFFFF

const (
	chainLengthMask      = 0x0000FFFF
	bagStripeIndexShift  = 16
	bagStripeIndexMask32 = 0xFFFF0000
)

func pack(chainLength, bagStripeIndex uint16) uint32 {
	return uint32(chainLength) | uint32(bagStripeIndex)<<bagStripeIndexShift
}

func unpack(word uint32) (chainLength, bagStripeIndex uint16) {
	chainLength = uint16(word & chainLengthMask)
	bagStripeIndex = uint16((word & bagStripeIndexMask32) >> bagStripeIndexShift)
	return
}

// BlockMetaData is the per-block header. Its in-memory layout mirrors
// the persisted record: packed_word, next_in_bag, next_chain, each a
// 32-bit atomic-with-persistence field.
type BlockMetaData struct {
	packedWord persist.Uint32
	nextInBag  persist.Uint32
	nextChain  persist.Uint32
}

// Acquire sets chain_length=L, bag_stripe_index=NotInBag with a
// release-store, then writes back the cache line — the sequence used
// whenever a block becomes the head of a freshly-formed run (snap-off,
// coalescing, initial seeding).
func (m *BlockMetaData) Acquire(chainLength uint16) {
	m.packedWord.StoreRelease(pack(chainLength, NotInBag))
}

// ResetBeforeAddToBag clears next_in_bag and next_chain and writes the
// cache line back, preparing a block to be pushed into a bag stripe.
func (m *BlockMetaData) ResetBeforeAddToBag() {
	m.nextInBag.StoreRelaxed(blockptr.NullSentinel)
	m.nextChain.StoreRelaxed(blockptr.NullSentinel)
}

// SetNextChain release-stores the next-chain link, paired with pwb.
func (m *BlockMetaData) SetNextChain(p blockptr.BlockPointer) {
	m.nextChain.StoreRelease(p.Index())
}

// GetNextChain acquire-loads the next-chain link.
func (m *BlockMetaData) GetNextChain() blockptr.BlockPointer {
	return blockptr.New(m.nextChain.LoadAcquire())
}

// SetNextInBag release-stores the in-bag link.
func (m *BlockMetaData) SetNextInBag(p blockptr.BlockPointer) {
	m.nextInBag.StoreRelease(p.Index())
}

// GetNextInBag acquire-loads the in-bag link.
func (m *BlockMetaData) GetNextInBag() blockptr.BlockPointer {
	return blockptr.New(m.nextInBag.LoadAcquire())
}

// SetNextInBagCAS CASes the in-bag link from old to new, used by
// try_to_cut to unlink a predecessor's link to the block being cut.
func (m *BlockMetaData) SetNextInBagCAS(old, new uint32) bool {
	return m.nextInBag.CompareAndSwapStrong(old, new)
}

// ChainLengthAndBagStripeIndex acquire-loads the packed word and splits
// it into its two fields.
func (m *BlockMetaData) ChainLengthAndBagStripeIndex() (chainLength, bagStripeIndex uint16) {
	return unpack(m.packedWord.LoadAcquire())
}

// SetBagStripeIndex release-stores a new packed word built from the
// given chain_length and bag_stripe_index — used when a block is
// linked into (or cut from) a specific stripe.
func (m *BlockMetaData) SetBagStripeIndex(chainLength, bagStripeIndex uint16) {
	m.packedWord.StoreRelease(pack(chainLength, bagStripeIndex))
}

// CompareAndSwapPackedWord performs an AcqRel CAS of the whole packed
// word from {oldChainLength, oldBagStripeIndex} to {newChainLength,
// newBagStripeIndex}. The bag's push, pop and try_to_cut paths do not
// use it; they store the packed word with SetBagStripeIndex.
func (m *BlockMetaData) CompareAndSwapPackedWord(oldChainLength, oldBagStripeIndex, newChainLength, newBagStripeIndex uint16) bool {
	return m.packedWord.CompareAndSwapStrong(pack(oldChainLength, oldBagStripeIndex), pack(newChainLength, newBagStripeIndex))
}

// AddIfMaximumLengthNotExceeded returns L+extra and true iff that sum
// does not exceed maxChainLen.
func AddIfMaximumLengthNotExceeded(l, extra, maxChainLen uint16) (uint16, bool) {
	sum := uint32(l) + uint32(extra)
	if sum > uint32(maxChainLen) {
		return 0, false
	}
	return uint16(sum), true
}

// Items is the contiguous array of BlockMetaData indexed by
// BlockPointer, one entry per block in the region.
type Items struct {
	records []BlockMetaData
}

// NewItems allocates and zero-initializes n records: every block starts
// with chain_length=0 and bag_stripe_index=NotInBag.
func NewItems(n uint64) *Items {
	records := make([]BlockMetaData, n)
	for i := range records {
		records[i].packedWord.StoreRelaxed(pack(0, NotInBag))
		records[i].nextInBag.StoreRelaxed(blockptr.NullSentinel)
		records[i].nextChain.StoreRelaxed(blockptr.NullSentinel)
	}
	return &Items{records: records}
}

// Len returns the number of records.
func (it *Items) Len() uint64 {
	return uint64(len(it.records))
}

// Get returns the record for p. Panics if p is null or out of range —
// callers are expected to have already checked.
func (it *Items) Get(p blockptr.BlockPointer) *BlockMetaData {
	if p.IsNull() {
		panic("blockmeta: Get on null pointer")
	}
	idx := p.Index()
	if uint64(idx) >= it.Len() {
		panic(fmt.Sprintf("blockmeta: index %d out of range [0,%d)", idx, it.Len()))
	}
	return &it.records[idx]
}
