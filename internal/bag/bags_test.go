package bag

import (
	"testing"

	"github.com/fenilsonani/pmemalloc/internal/blockmeta"
	"github.com/fenilsonani/pmemalloc/internal/blockptr"
)

func TestBagsAddRemoveDispatch(t *testing.T) {
	items := blockmeta.NewItems(8)
	bags := NewBags(4, 1)

	bags.Add(2, blockptr.New(0), items)
	bags.Add(3, blockptr.New(2), items)

	if got := bags.Remove(2, items); !got.Equals(blockptr.New(0)) {
		t.Fatalf("Remove(2) = %v, want New(0)", got)
	}
	if got := bags.Remove(2, items); !got.IsNull() {
		t.Fatalf("Remove(2) second call = %v, want null", got)
	}
	if got := bags.Remove(3, items); !got.Equals(blockptr.New(2)) {
		t.Fatalf("Remove(3) = %v, want New(2)", got)
	}
}

func TestBagsTryToCutUsesBlocksCurrentLength(t *testing.T) {
	items := blockmeta.NewItems(8)
	bags := NewBags(4, 1)
	bags.Add(2, blockptr.New(0), items)

	if !bags.TryToCut(blockptr.New(0), items) {
		t.Fatal("expected TryToCut to find the block in bags[2]")
	}
	if bags.TryToCut(blockptr.New(0), items) {
		t.Fatal("expected a second TryToCut to fail once already cut")
	}
}

func TestMaximumFreeChainLength(t *testing.T) {
	items := blockmeta.NewItems(8)
	bags := NewBags(4, 1)

	if bags.MaximumFreeChainLength() != 0 {
		t.Fatal("expected 0 for an all-empty Bags")
	}

	bags.Add(2, blockptr.New(0), items)
	bags.Add(4, blockptr.New(2), items)

	if got := bags.MaximumFreeChainLength(); got != 4 {
		t.Fatalf("MaximumFreeChainLength() = %d, want 4", got)
	}
}

func TestFreeBlockCount(t *testing.T) {
	items := blockmeta.NewItems(8)
	bags := NewBags(4, 1)

	bags.Add(2, blockptr.New(0), items)
	bags.Add(3, blockptr.New(2), items)

	if got := bags.FreeBlockCount(items); got != 5 {
		t.Fatalf("FreeBlockCount() = %d, want 5", got)
	}
}

func TestAtPanicsOnOutOfRangeLength(t *testing.T) {
	bags := NewBags(4, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for chain length 0")
		}
	}()
	bags.Add(0, blockptr.New(0), blockmeta.NewItems(1))
}
