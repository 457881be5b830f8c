package bag

import (
	"github.com/fenilsonani/pmemalloc/internal/blockmeta"
	"github.com/fenilsonani/pmemalloc/internal/blockptr"
)

// Bags is the length-indexed array of Bag, one per chain length from 1
// to maxChainLen inclusive. Index 0 is unused (chain_length 0 means
// "not a head"). The BlockAllocator owns the only Bags instance for a
// region; Bags owns its Bag elements.
type Bags struct {
	maxChainLen uint16
	byLength    []*Bag // index 0 unused, 1..=maxChainLen populated
}

// NewBags builds every Bag(L) for L in 1..=maxChainLen, each with
// stripeCount stripes.
func NewBags(maxChainLen uint16, stripeCount int) *Bags {
	byLength := make([]*Bag, maxChainLen+1)
	for l := uint16(1); l <= maxChainLen; l++ {
		byLength[l] = NewBag(l, stripeCount)
	}
	return &Bags{maxChainLen: maxChainLen, byLength: byLength}
}

// MaxChainLen returns the configured maximum chain length.
func (bs *Bags) MaxChainLen() uint16 {
	return bs.maxChainLen
}

func (bs *Bags) at(l uint16) *Bag {
	if l < 1 || l > bs.maxChainLen {
		panic("bag: chain length out of range")
	}
	return bs.byLength[l]
}

// Add dispatches to bags[chainLength].Add.
func (bs *Bags) Add(chainLength uint16, block blockptr.BlockPointer, items *blockmeta.Items) {
	bs.at(chainLength).Add(block, items)
}

// Remove dispatches to bags[chainLength].Remove.
func (bs *Bags) Remove(chainLength uint16, items *blockmeta.Items) blockptr.BlockPointer {
	return bs.at(chainLength).Remove(items)
}

// TryToCut dispatches to the bag matching block's currently-recorded
// chain length.
func (bs *Bags) TryToCut(block blockptr.BlockPointer, items *blockmeta.Items) bool {
	chainLength, stripeIdx := items.Get(block).ChainLengthAndBagStripeIndex()
	if stripeIdx == blockmeta.NotInBag || chainLength == 0 || chainLength > bs.maxChainLen {
		return false
	}
	return bs.at(chainLength).TryToCut(block, items)
}

// MaximumFreeChainLength scans from maxChainLen downward and returns
// the first length with a non-empty bag, or 0 if every bag is empty.
// Diagnostic-only; see Bag.IsEmpty.
func (bs *Bags) MaximumFreeChainLength() uint16 {
	for l := bs.maxChainLen; l >= 1; l-- {
		if !bs.at(l).IsEmpty() {
			return l
		}
		if l == 1 {
			break
		}
	}
	return 0
}

// FreeBlockCount sums count(L)*L across every bag — the number of
// blocks currently reachable from the free list. Diagnostic-only.
func (bs *Bags) FreeBlockCount(items *blockmeta.Items) uint64 {
	var total uint64
	for l := uint16(1); l <= bs.maxChainLen; l++ {
		total += uint64(bs.at(l).Count(items)) * uint64(l)
	}
	return total
}
