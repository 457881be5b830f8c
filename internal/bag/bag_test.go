package bag

import (
	"sync"
	"testing"

	"github.com/fenilsonani/pmemalloc/internal/blockmeta"
	"github.com/fenilsonani/pmemalloc/internal/blockptr"
)

func TestAddRemoveSingleStripe(t *testing.T) {
	items := blockmeta.NewItems(4)
	b := NewBag(2, 1)

	b.Add(blockptr.New(0), items)
	b.Add(blockptr.New(2), items)

	first := b.Remove(items)
	second := b.Remove(items)
	third := b.Remove(items)

	if first.IsNull() || second.IsNull() {
		t.Fatal("expected two non-null removals")
	}
	if first.Equals(second) {
		t.Fatal("expected two distinct blocks")
	}
	if !third.IsNull() {
		t.Fatal("expected the bag to be empty after two removals")
	}
}

func TestRemoveIsLIFOPerStripe(t *testing.T) {
	items := blockmeta.NewItems(4)
	b := NewBag(1, 1)

	b.Add(blockptr.New(0), items)
	b.Add(blockptr.New(1), items)

	// Single stripe Treiber stack: last pushed is first popped.
	if got := b.Remove(items); !got.Equals(blockptr.New(1)) {
		t.Fatalf("Remove() = %v, want New(1)", got)
	}
	if got := b.Remove(items); !got.Equals(blockptr.New(0)) {
		t.Fatalf("Remove() = %v, want New(0)", got)
	}
}

func TestMetaWordAfterAddAndRemove(t *testing.T) {
	items := blockmeta.NewItems(2)
	b := NewBag(3, 1)

	b.Add(blockptr.New(0), items)
	l, stripe := items.Get(blockptr.New(0)).ChainLengthAndBagStripeIndex()
	if l != 3 || stripe != 0 {
		t.Fatalf("after Add: (chainLength,stripe) = (%d,%d), want (3,0)", l, stripe)
	}

	popped := b.Remove(items)
	l, stripe = items.Get(popped).ChainLengthAndBagStripeIndex()
	if stripe != blockmeta.NotInBag {
		t.Fatalf("after Remove: stripe = %d, want NotInBag", stripe)
	}
}

func TestTryToCutSucceedsForMember(t *testing.T) {
	items := blockmeta.NewItems(4)
	b := NewBag(1, 1)
	b.Add(blockptr.New(0), items)
	b.Add(blockptr.New(1), items)
	b.Add(blockptr.New(2), items)

	if !b.TryToCut(blockptr.New(1), items) {
		t.Fatal("expected TryToCut to succeed on a present member")
	}
	_, stripe := items.Get(blockptr.New(1)).ChainLengthAndBagStripeIndex()
	if stripe != blockmeta.NotInBag {
		t.Fatal("cut block should no longer report a bag stripe")
	}

	// The remaining two blocks must still both be reachable.
	first := b.Remove(items)
	second := b.Remove(items)
	if first.IsNull() || second.IsNull() {
		t.Fatal("expected the other two blocks still present")
	}
}

func TestTryToCutFailsForNonMember(t *testing.T) {
	items := blockmeta.NewItems(4)
	b := NewBag(1, 1)
	b.Add(blockptr.New(0), items)

	if b.TryToCut(blockptr.New(3), items) {
		t.Fatal("expected TryToCut to fail for a block never added")
	}
}

func TestTryToCutFailsAfterAlreadyRemoved(t *testing.T) {
	items := blockmeta.NewItems(2)
	b := NewBag(1, 1)
	b.Add(blockptr.New(0), items)
	b.Remove(items)

	if b.TryToCut(blockptr.New(0), items) {
		t.Fatal("expected TryToCut to fail once the block already left the bag")
	}
}

func TestConcurrentAddRemove(t *testing.T) {
	const n = 256
	items := blockmeta.NewItems(n)
	b := NewBag(1, 8)

	var wg sync.WaitGroup
	for i := uint32(0); i < n; i++ {
		wg.Add(1)
		go func(idx uint32) {
			defer wg.Done()
			b.Add(blockptr.New(idx), items)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	for i := 0; i < n; i++ {
		p := b.Remove(items)
		if p.IsNull() {
			t.Fatalf("bag emptied early after %d removals", i)
		}
		if seen[p.Index()] {
			t.Fatalf("block %d removed twice", p.Index())
		}
		seen[p.Index()] = true
	}
	if !b.Remove(items).IsNull() {
		t.Fatal("expected bag to be empty after removing every pushed block")
	}
}
