package blockptr

import "testing"

func TestNullSentinel(t *testing.T) {
	if !Null.IsNull() {
		t.Fatal("Null must report IsNull")
	}
	if Null.IsNotNull() {
		t.Fatal("Null must not report IsNotNull")
	}
	if Null.Index() != NullSentinel {
		t.Fatalf("Null.Index() = %d, want %d", Null.Index(), NullSentinel)
	}
}

func TestEquals(t *testing.T) {
	a := New(3)
	b := New(3)
	c := New(4)

	if !a.Equals(b) {
		t.Fatal("equal indices should compare equal")
	}
	if a.Equals(c) {
		t.Fatal("different indices should not compare equal")
	}
}

func TestToMemoryAddress(t *testing.T) {
	p := New(5)
	got := p.ToMemoryAddress(256)
	if got != 5*256 {
		t.Fatalf("ToMemoryAddress = %d, want %d", got, 5*256)
	}
}

func TestToMemoryAddressPanicsOnNull(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on null pointer expansion")
		}
	}()
	Null.ToMemoryAddress(256)
}

func TestFromMemoryAddressRoundTrip(t *testing.T) {
	for _, idx := range []uint32{0, 1, 7, 1000} {
		p := New(idx)
		addr := p.ToMemoryAddress(64)
		got := FromMemoryAddress(addr, 64)
		if !got.Equals(p) {
			t.Fatalf("round trip for index %d produced %v", idx, got)
		}
	}
}

func TestFromMemoryAddressMisalignedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned address")
		}
	}()
	FromMemoryAddress(65, 64)
}

func TestSubsequentChainStartAddress(t *testing.T) {
	p := New(2)
	got := p.SubsequentChainStartAddress(64, 3)
	want := p.ToMemoryAddress(64) + 3*64
	if got != want {
		t.Fatalf("SubsequentChainStartAddress = %d, want %d", got, want)
	}
}

func TestString(t *testing.T) {
	if Null.String() != "BlockPointer(null)" {
		t.Fatalf("unexpected Null.String(): %s", Null.String())
	}
	if New(7).String() != "BlockPointer(7)" {
		t.Fatalf("unexpected New(7).String(): %s", New(7).String())
	}
}
