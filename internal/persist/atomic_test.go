package persist

import "testing"

func TestUint32StoreLoadRoundTrip(t *testing.T) {
	var p Uint32
	p.StoreRelaxed(42)
	if got := p.LoadRelaxed(); got != 42 {
		t.Fatalf("LoadRelaxed() = %d, want 42", got)
	}

	p.StoreRelease(7)
	if got := p.LoadAcquire(); got != 7 {
		t.Fatalf("LoadAcquire() = %d, want 7", got)
	}
}

func TestUint32SwapAcqRel(t *testing.T) {
	var p Uint32
	p.StoreRelaxed(1)
	if old := p.SwapAcqRel(2); old != 1 {
		t.Fatalf("SwapAcqRel returned %d, want 1", old)
	}
	if got := p.LoadRelaxed(); got != 2 {
		t.Fatalf("after swap, LoadRelaxed() = %d, want 2", got)
	}
}

func TestUint32CompareAndSwapStrong(t *testing.T) {
	var p Uint32
	p.StoreRelaxed(10)

	if !p.CompareAndSwapStrong(10, 20) {
		t.Fatal("expected CAS to succeed with a matching old value")
	}
	if p.CompareAndSwapStrong(10, 30) {
		t.Fatal("expected CAS to fail once the old value is stale")
	}
	if got := p.LoadRelaxed(); got != 20 {
		t.Fatalf("LoadRelaxed() = %d, want 20", got)
	}
}

func TestUint32FetchAddAcqRel(t *testing.T) {
	var p Uint32
	p.StoreRelaxed(5)
	if old := p.FetchAddAcqRel(3); old != 5 {
		t.Fatalf("FetchAddAcqRel returned %d, want 5", old)
	}
	if got := p.LoadRelaxed(); got != 8 {
		t.Fatalf("LoadRelaxed() = %d, want 8", got)
	}
}

func TestUint32FetchAndOrAcqRel(t *testing.T) {
	var p Uint32
	p.StoreRelaxed(0b1010)

	if old := p.FetchAndAcqRel(0b1100); old != 0b1010 {
		t.Fatalf("FetchAndAcqRel returned %b, want %b", old, 0b1010)
	}
	if got := p.LoadRelaxed(); got != 0b1000 {
		t.Fatalf("LoadRelaxed() = %b, want %b", got, 0b1000)
	}

	if old := p.FetchOrAcqRel(0b0011); old != 0b1000 {
		t.Fatalf("FetchOrAcqRel returned %b, want %b", old, 0b1000)
	}
	if got := p.LoadRelaxed(); got != 0b1011 {
		t.Fatalf("LoadRelaxed() = %b, want %b", got, 0b1011)
	}
}
