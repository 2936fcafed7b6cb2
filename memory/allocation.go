package memory

import "fmt"

// Allocation is a contiguous range of a Block, either free or in use.
// Allocations are created and merged only by their owning Block.
type Allocation struct {
	offset uint64
	size   uint64
	inUse  bool
	block  *Block
}

// Offset returns the byte offset of the range within its block.
func (a *Allocation) Offset() uint64 { return a.offset }

// Size returns the length of the range in bytes.
func (a *Allocation) Size() uint64 { return a.size }

// InUse reports whether the range is claimed by a resource.
func (a *Allocation) InUse() bool { return a.inUse }

// Block returns the owning block.
func (a *Allocation) Block() *Block { return a.block }

// End returns the first byte past the range.
func (a *Allocation) End() uint64 { return a.offset + a.size }

// Map maps the owning block and returns the bytes of this range.
// Every successful Map must be paired with Unmap.
func (a *Allocation) Map() ([]byte, error) {
	data, err := a.block.Map()
	if err != nil {
		return nil, err
	}
	return data[a.offset:a.End():a.End()], nil
}

// Unmap releases one reference on the owning block's mapping.
func (a *Allocation) Unmap() error {
	return a.block.Unmap()
}

// String returns a short description such as "[0,256) used".
func (a *Allocation) String() string {
	state := "free"
	if a.inUse {
		state = "used"
	}
	return fmt.Sprintf("[%d,%d) %s", a.offset, a.End(), state)
}
