// Package bag implements Bag(L), the striped lock-free free-list for
// chains of one specific length, and Bags, the length-indexed
// dispatcher over Bag that the allocator owns directly.
package bag

import (
	"github.com/fenilsonani/pmemalloc/internal/blockmeta"
	"github.com/fenilsonani/pmemalloc/internal/blockptr"
	"github.com/fenilsonani/pmemalloc/internal/persist"
)

// Bag is a set of blocks all of identical chain length, internally
// striped into S independent Treiber stacks to reduce cross-core
// contention. A block in stripe s carries bag_stripe_index=s in its
// packed meta word.
type Bag struct {
	chainLength uint16
	stripes     []persist.Uint32 // each holds a BlockPointer index, or NullSentinel
}

// NewBag builds a Bag for the given chain length with stripeCount
// independent stripes, all initially empty.
func NewBag(chainLength uint16, stripeCount int) *Bag {
	if stripeCount < 1 {
		stripeCount = 1
	}
	b := &Bag{
		chainLength: chainLength,
		stripes:     make([]persist.Uint32, stripeCount),
	}
	for i := range b.stripes {
		b.stripes[i].StoreRelaxed(blockptr.NullSentinel)
	}
	return b
}

// StripeCount reports how many stripes this bag was built with.
func (b *Bag) StripeCount() int {
	return len(b.stripes)
}

// IsEmpty is a non-destructive, point-in-time check used only by test
// and diagnostic code (invariant checks, the probe CLI) — never on the
// allocation hot path, since a racing push/pop can make the answer
// stale the instant it's returned.
func (b *Bag) IsEmpty() bool {
	for i := range b.stripes {
		if b.stripes[i].LoadAcquire() != blockptr.NullSentinel {
			return false
		}
	}
	return true
}

// Count walks every stripe counting linked blocks. Diagnostic-only, for
// the same reason as IsEmpty — O(stripe length) and not safe to call
// under concurrent mutation if an exact answer is required.
func (b *Bag) Count(items *blockmeta.Items) int {
	n := 0
	for i := range b.stripes {
		cur := b.stripes[i].LoadAcquire()
		for cur != blockptr.NullSentinel {
			n++
			cur = items.Get(blockptr.New(cur)).GetNextInBag().Index()
		}
	}
	return n
}

// Add pushes block, which must already carry chain_length==b.chainLength
// in the caller's intent, onto a pseudo-randomly chosen stripe.
func (b *Bag) Add(block blockptr.BlockPointer, items *blockmeta.Items) {
	stripe := persist.Random32(len(b.stripes))
	meta := items.Get(block)

	// Set the block's packed word to {chainLength, stripe} before
	// linking, with a release store + pwb, per the add protocol.
	meta.SetBagStripeIndex(b.chainLength, uint16(stripe))

	for {
		head := b.stripes[stripe].LoadAcquire()
		meta.SetNextInBag(blockptr.New(head))
		if b.stripes[stripe].CompareAndSwapStrong(head, block.Index()) {
			persist.Pfence()
			return
		}
		// CAS lost to a concurrent push/pop on this stripe; retry.
	}
}

// Remove pops a block of this bag's chain length, scanning stripes
// starting at the index persist.HyperThreadIndex hands out, which
// rotates between calls and so spreads scans across stripes. Returns
// the null pointer
// if every stripe was observed empty during the scan.
func (b *Bag) Remove(items *blockmeta.Items) blockptr.BlockPointer {
	n := len(b.stripes)
	start := persist.HyperThreadIndex(n)
	for i := 0; i < n; i++ {
		stripe := (start + i) % n
		for {
			headIdx := b.stripes[stripe].LoadAcquire()
			if headIdx == blockptr.NullSentinel {
				break // this stripe was empty; move to the next
			}
			head := blockptr.New(headIdx)
			meta := items.Get(head)
			next := meta.GetNextInBag()
			if b.stripes[stripe].CompareAndSwapStrong(headIdx, next.Index()) {
				meta.SetBagStripeIndex(b.chainLength, blockmeta.NotInBag)
				persist.Pfence()
				return head
			}
			// Lost the pop race; re-read this stripe's head and retry.
		}
	}
	return blockptr.Null
}

// TryToCut attempts to unlink a specific block from whichever stripe it
// currently occupies. Used only by the allocator's forward-coalescing
// path, which already knows block's identity but not necessarily its
// exact position in the stripe list. Returns false if block is no
// longer in any bag (a concurrent remove or try_to_cut won the race) or
// if the unlinking CAS loses.
func (b *Bag) TryToCut(block blockptr.BlockPointer, items *blockmeta.Items) bool {
	meta := items.Get(block)

	chainLength, stripeIdx := meta.ChainLengthAndBagStripeIndex()
	if stripeIdx == blockmeta.NotInBag || chainLength != b.chainLength {
		return false
	}
	stripe := int(stripeIdx)
	if stripe >= len(b.stripes) {
		return false
	}

	headIdx := b.stripes[stripe].LoadAcquire()
	if headIdx == blockptr.NullSentinel {
		return false
	}
	if headIdx == block.Index() {
		next := meta.GetNextInBag()
		if b.stripes[stripe].CompareAndSwapStrong(headIdx, next.Index()) {
			meta.SetBagStripeIndex(chainLength, blockmeta.NotInBag)
			persist.Pfence()
			return true
		}
		return false
	}

	// Walk the stripe looking for block, CAS-ing its predecessor's
	// next_in_bag from block to block's successor.
	predIdx := headIdx
	for {
		pred := items.Get(blockptr.New(predIdx))
		curIdx := pred.GetNextInBag().Index()
		if curIdx == blockptr.NullSentinel {
			return false
		}
		if curIdx == block.Index() {
			next := meta.GetNextInBag()
			if !pred.SetNextInBagCAS(curIdx, next.Index()) {
				return false
			}
			meta.SetBagStripeIndex(chainLength, blockmeta.NotInBag)
			persist.Pfence()
			return true
		}
		predIdx = curIdx
	}
}
