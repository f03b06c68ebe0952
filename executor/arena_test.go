package executor

import "testing"

func TestArenaAppendGrowsContiguously(t *testing.T) {
	a := NewArena(false)
	r1 := a.Append([]byte{1, 2, 3})
	r2 := a.Append([]byte{4, 5})
	if r1.End != r2.Start {
		t.Fatalf("ranges not contiguous: %+v then %+v", r1, r2)
	}
	if a.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", a.Len())
	}
}

func TestArenaWriteAtNonOverlappingSucceeds(t *testing.T) {
	a := NewArena(false)
	if err := a.WriteAt(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteAt(0): %v", err)
	}
	if err := a.WriteAt(4, []byte{5, 6}); err != nil {
		t.Fatalf("WriteAt(4): %v", err)
	}
	if got := a.Bytes(); len(got) != 6 {
		t.Fatalf("Bytes() len = %d, want 6", len(got))
	}
}

func TestArenaWriteAtOverlapReturnsError(t *testing.T) {
	a := NewArena(false)
	if err := a.WriteAt(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("first WriteAt: %v", err)
	}
	err := a.WriteAt(2, []byte{9, 9})
	if err == nil {
		t.Fatal("expected an aliasing hazard error for overlapping ranges")
	}
	if _, ok := err.(*AliasingHazardError); !ok {
		t.Fatalf("err = %T, want *AliasingHazardError", err)
	}
}

func TestArenaWriteAtStrictPanicsOnOverlap(t *testing.T) {
	a := NewArena(true)
	if err := a.WriteAt(0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("first WriteAt: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected strict mode to panic on an aliasing hazard")
		}
	}()
	a.WriteAt(1, []byte{9})
}

func TestArenaResetClearsRangesAndBuffer(t *testing.T) {
	a := NewArena(false)
	a.Append([]byte{1, 2, 3})
	a.Reset()
	if a.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", a.Len())
	}
	if err := a.WriteAt(0, []byte{9, 9, 9}); err != nil {
		t.Fatalf("WriteAt after Reset: %v", err)
	}
}

func TestByteRangeOverlapsBoundaryCases(t *testing.T) {
	a := byteRange{Start: 0, End: 4}
	b := byteRange{Start: 4, End: 8}
	if a.overlaps(b) {
		t.Fatal("adjacent, non-overlapping ranges must not be flagged")
	}
	c := byteRange{Start: 2, End: 6}
	if !a.overlaps(c) {
		t.Fatal("expected overlapping ranges to be detected")
	}
}
