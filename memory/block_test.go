package memory

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
)

// layout returns the block's records as "[start,end) state" strings.
func layout(b *Block) []string {
	var out []string
	for _, a := range b.Allocations() {
		out = append(out, a.String())
	}
	return out
}

func mustValidate(t *testing.T, b *Block) {
	t.Helper()
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

// carve claims consecutive ranges of the given sizes from a fresh block.
func carve(t *testing.T, sizes ...uint64) (*Block, []*Allocation) {
	t.Helper()
	var total uint64
	for _, s := range sizes {
		total += s
	}
	b := newBlock(newFakeDevice(), &fakeMemory{}, total, 0, 0)
	allocs := make([]*Allocation, len(sizes))
	for i, s := range sizes {
		allocs[i] = b.TryFindMemory(s, 1)
		if allocs[i] == nil {
			t.Fatalf("TryFindMemory(%d) = nil", s)
		}
	}
	mustValidate(t, b)
	return b, allocs
}

func TestBlockFreshIsSingleFreeRecord(t *testing.T) {
	b := newBlock(newFakeDevice(), &fakeMemory{}, 1024, 0, 0)
	mustValidate(t, b)

	want := []string{"[0,1024) free"}
	if diff := cmp.Diff(want, layout(b)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	if got := b.Free(); got != 1024 {
		t.Errorf("Free() = %d, want 1024", got)
	}
}

func TestBlockTryFindMemorySplits(t *testing.T) {
	b := newBlock(newFakeDevice(), &fakeMemory{}, 1024, 0, 0)

	a := b.TryFindMemory(100, 1)
	if a == nil {
		t.Fatal("TryFindMemory(100) = nil")
	}
	mustValidate(t, b)

	if a.Offset() != 0 || a.Size() != 100 || !a.InUse() {
		t.Errorf("allocation = %v, want [0,100) used", a)
	}
	want := []string{"[0,100) used", "[100,1024) free"}
	if diff := cmp.Diff(want, layout(b)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	if got := b.Free(); got != 924 {
		t.Errorf("Free() = %d, want 924", got)
	}
}

func TestBlockTryFindMemoryBestFit(t *testing.T) {
	// used 4 | free 10 | used 4 | free 50 | used 4 | free 12 | used 4
	b, allocs := carve(t, 4, 10, 4, 50, 4, 12, 4)
	for _, i := range []int{1, 3, 5} {
		if err := b.FreeAllocation(allocs[i]); err != nil {
			t.Fatalf("FreeAllocation(%v) = %v", allocs[i], err)
		}
	}
	mustValidate(t, b)

	a := b.TryFindMemory(11, 1)
	if a == nil {
		t.Fatal("TryFindMemory(11) = nil")
	}
	mustValidate(t, b)

	if a.Offset() != 72 {
		t.Errorf("Offset() = %d, want 72 (the 12-byte record)", a.Offset())
	}
	want := []string{
		"[0,4) used", "[4,14) free", "[14,18) used", "[18,68) free",
		"[68,72) used", "[72,83) used", "[83,84) free", "[84,88) used",
	}
	if diff := cmp.Diff(want, layout(b)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestBlockTryFindMemoryExactFitInPlace(t *testing.T) {
	b, allocs := carve(t, 8, 32, 8)
	if err := b.FreeAllocation(allocs[1]); err != nil {
		t.Fatalf("FreeAllocation() = %v", err)
	}
	before := len(b.Allocations())

	a := b.TryFindMemory(32, 1)
	if a == nil {
		t.Fatal("TryFindMemory(32) = nil")
	}
	mustValidate(t, b)
	if got := len(b.Allocations()); got != before {
		t.Errorf("record count = %d, want %d (no split)", got, before)
	}
	if b.Free() != 0 {
		t.Errorf("Free() = %d, want 0", b.Free())
	}
}

func TestBlockTryFindMemoryAlignment(t *testing.T) {
	b := newBlock(newFakeDevice(), &fakeMemory{}, 1024, 0, 0)
	if b.TryFindMemory(10, 1) == nil {
		t.Fatal("TryFindMemory(10, 1) = nil")
	}

	a := b.TryFindMemory(64, 256)
	if a == nil {
		t.Fatal("TryFindMemory(64, 256) = nil")
	}
	mustValidate(t, b)

	if a.Offset() != 256 {
		t.Errorf("Offset() = %d, want 256", a.Offset())
	}
	want := []string{"[0,10) used", "[10,256) free", "[256,320) used", "[320,1024) free"}
	if diff := cmp.Diff(want, layout(b)); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	if got, want := b.Free(), uint64(1024-10-64); got != want {
		t.Errorf("Free() = %d, want %d", got, want)
	}
}

func TestBlockTryFindMemoryNoFit(t *testing.T) {
	tests := []struct {
		name      string
		size      uint64
		alignment uint64
	}{
		{"larger than block", 2048, 1},
		{"zero size", 0, 1},
		{"fragmented", 40, 1},
		{"alignment pushes past end", 20, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// used 4 | free 30 | used 4 | free 30
			b, allocs := carve(t, 4, 30, 4, 30)
			_ = b.FreeAllocation(allocs[1])
			_ = b.FreeAllocation(allocs[3])

			if a := b.TryFindMemory(tt.size, tt.alignment); a != nil {
				t.Errorf("TryFindMemory(%d, %d) = %v, want nil", tt.size, tt.alignment, a)
			}
			mustValidate(t, b)
		})
	}
}

func TestBlockFreeAllocationCoalesces(t *testing.T) {
	tests := []struct {
		name  string
		order []int
	}{
		{"left to right", []int{0, 1, 2}},
		{"right to left", []int{2, 1, 0}},
		{"middle last", []int{0, 2, 1}},
		{"middle first", []int{1, 0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, allocs := carve(t, 16, 32, 64)
			for _, i := range tt.order {
				if err := b.FreeAllocation(allocs[i]); err != nil {
					t.Fatalf("FreeAllocation(%d) = %v", i, err)
				}
				mustValidate(t, b)
			}
			want := []string{"[0,112) free"}
			if diff := cmp.Diff(want, layout(b)); diff != "" {
				t.Errorf("layout mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBlockFreeAllocationErrors(t *testing.T) {
	b, allocs := carve(t, 16, 16)
	other, _ := carve(t, 16)

	if err := other.FreeAllocation(allocs[0]); !errors.Is(err, ErrForeignAllocation) {
		t.Errorf("FreeAllocation(foreign) = %v, want %v", err, ErrForeignAllocation)
	}
	if err := b.FreeAllocation(allocs[0]); err != nil {
		t.Fatalf("FreeAllocation() = %v", err)
	}
	if err := b.FreeAllocation(allocs[0]); !errors.Is(err, ErrDoubleFree) {
		t.Errorf("FreeAllocation(twice) = %v, want %v", err, ErrDoubleFree)
	}
}

func TestBlockMapRefCount(t *testing.T) {
	dev := newFakeDevice()
	mem, _ := dev.AllocateMemory(256, 1)
	b := newBlock(dev, mem, 256, 1, 1)
	a := b.TryFindMemory(64, 1)
	c := b.TryFindMemory(64, 1)

	da, err := a.Map()
	if err != nil {
		t.Fatalf("Map() = %v", err)
	}
	dc, err := c.Map()
	if err != nil {
		t.Fatalf("Map() = %v", err)
	}
	if dev.mapCalls != 1 {
		t.Errorf("device MapMemory calls = %d, want 1", dev.mapCalls)
	}
	if len(da) != 64 || len(dc) != 64 {
		t.Errorf("mapped lengths = %d, %d, want 64, 64", len(da), len(dc))
	}

	da[0] = 0xAB
	if got := dev.memories[mem.(*fakeMemory).id][0]; got != 0xAB {
		t.Errorf("write through mapping = %#x, want 0xab", got)
	}

	if err := a.Unmap(); err != nil {
		t.Fatalf("Unmap() = %v", err)
	}
	if dev.unmapCalls != 0 {
		t.Errorf("device UnmapMemory calls = %d, want 0 while still mapped", dev.unmapCalls)
	}
	if err := c.Unmap(); err != nil {
		t.Fatalf("Unmap() = %v", err)
	}
	if dev.unmapCalls != 1 {
		t.Errorf("device UnmapMemory calls = %d, want 1", dev.unmapCalls)
	}
	if err := b.Unmap(); !errors.Is(err, ErrNotMapped) {
		t.Errorf("Unmap(unmapped) = %v, want %v", err, ErrNotMapped)
	}
}
